package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	apperrors "github.com/peopleops/hrportal/internal/errors"
	"github.com/peopleops/hrportal/internal/mocks"
)

func TestResolver_NoCredentialSkipsBackend(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserResolver(ctrl) // no expectations: any call fails the test

	res := NewResolver(ResolverOptions{Users: users}).Resolve(context.Background(), "")
	assert.Equal(t, domainauth.StateAnonymous, res.State)
	assert.Nil(t, res.User)
	assert.False(t, res.Failed)
	assert.Equal(t, ReasonNoCredential, res.Reason)
}

func TestResolver_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserResolver(ctrl)
	want := domainauth.User{ID: "7", Role: domainauth.RoleEmployee}
	users.EXPECT().CurrentUser(gomock.Any(), domainauth.Credential("good")).Return(want, nil)

	res := NewResolver(ResolverOptions{Users: users}).Resolve(context.Background(), "good")
	assert.Equal(t, domainauth.StateAuthenticated, res.State)
	require.NotNil(t, res.User)
	assert.Equal(t, want, *res.User)
}

func TestResolver_ExpiredTokenResolvesAnonymous(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserResolver(ctrl)
	users.EXPECT().
		CurrentUser(gomock.Any(), domainauth.Credential("expired-token")).
		Return(domainauth.User{}, apperrors.FromStatus(401, "token expired"))

	res := NewResolver(ResolverOptions{Users: users}).Resolve(context.Background(), "expired-token")
	assert.Equal(t, domainauth.StateAnonymous, res.State)
	assert.Nil(t, res.User)
	assert.True(t, res.Failed)
	assert.True(t, apperrors.IsUnauthorized(res.Err))
}

func TestResolver_TimeoutBoundsCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserResolver(ctrl)
	users.EXPECT().CurrentUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domainauth.Credential) (domainauth.User, error) {
			<-ctx.Done()
			return domainauth.User{}, ctx.Err()
		})

	start := time.Now()
	res := NewResolver(ResolverOptions{Users: users, Timeout: 20 * time.Millisecond}).
		Resolve(context.Background(), "slow")
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, domainauth.StateAnonymous, res.State)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}
