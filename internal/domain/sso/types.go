package sso

// Package sso holds the types of the cross-application hand-off.

// Application describes a launchable external application.
type Application struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	RequiresAuth bool   `json:"requires_auth"`
}

// LaunchState is a step of a single application launch.
type LaunchState string

const (
	LaunchIdle           LaunchState = "idle"
	LaunchResolvingToken LaunchState = "resolving-token"
	LaunchLaunched       LaunchState = "launched"
	LaunchFailed         LaunchState = "failed"
)

// Launch records the outcome of opening an application.
// Trace lists the states visited in order; a fallback launch visits LaunchFailed
// before LaunchLaunched.
type Launch struct {
	Application   Application
	URL           string
	TokenAttached bool
	Trace         []LaunchState
}

// Fallback reports whether the token exchange failed and the bare URL was opened.
func (l Launch) Fallback() bool {
	for _, s := range l.Trace {
		if s == LaunchFailed {
			return true
		}
	}
	return false
}
