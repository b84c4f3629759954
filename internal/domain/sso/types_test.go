package sso

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLaunch_Fallback(t *testing.T) {
	ok := Launch{Trace: []LaunchState{LaunchIdle, LaunchResolvingToken, LaunchLaunched}}
	fb := Launch{Trace: []LaunchState{LaunchIdle, LaunchResolvingToken, LaunchFailed, LaunchLaunched}}

	assert.False(t, ok.Fallback())
	assert.True(t, fb.Fallback())
	assert.False(t, Launch{}.Fallback())
}
