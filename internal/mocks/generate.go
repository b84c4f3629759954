// Package mocks provides gomock implementations of the hexagonal ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	users := mocks.NewMockUserResolver(ctrl)
//	users.EXPECT().CurrentUser(gomock.Any(), auth.Credential("tok")).Return(user, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/peopleops/hrportal/internal/ports TokenStore,UserResolver,SSOBackend,Navigator,Opener,AuthProvider
