package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/peopleops/hrportal/config"
	mockauth "github.com/peopleops/hrportal/internal/mocks/auth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildAuthService_LoginMethods(t *testing.T) {
	tests := []struct {
		name         string
		auth         config.AuthConfig
		withBackend  bool
		wantErr      bool
		wantRedirect bool
		wantPassword bool
	}{
		{
			name:         "password only",
			auth:         config.AuthConfig{Mode: config.AuthModeNone, PasswordEnabled: true},
			withBackend:  true,
			wantPassword: true,
		},
		{
			name: "mock with static token",
			auth: config.AuthConfig{
				Mode: config.AuthModeMock,
				DevAuth: config.DevAuthConfig{
					Email: "employee@hrportal.local",
					Token: "dev-token",
				},
			},
			wantRedirect: true,
		},
		{
			name: "mock without token or minter keeps password login",
			auth: config.AuthConfig{
				Mode:            config.AuthModeMock,
				PasswordEnabled: true,
				DevAuth:         config.DevAuthConfig{Email: "employee@hrportal.local"},
			},
			withBackend:  true,
			wantPassword: true,
		},
		{
			name: "incomplete oauth with password disabled",
			auth: config.AuthConfig{
				Mode:  config.AuthModeOAuth,
				OAuth: config.OAuthConfig{ClientID: "hrportal"},
			},
			withBackend: true,
			wantErr:     true,
		},
		{
			name:    "password enabled without backend",
			auth:    config.AuthConfig{Mode: config.AuthModeNone, PasswordEnabled: true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AuthConfig{Auth: tt.auth, Logger: discardLogger()}
			if tt.withBackend {
				cfg.Backend = &mockauth.FakeSSOBackend{}
			}

			svc, err := BuildAuthService(context.Background(), cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error when no login method is available")
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildAuthService() error = %v", err)
			}
			if got := svc.RedirectEnabled(); got != tt.wantRedirect {
				t.Errorf("RedirectEnabled() = %v, want %v", got, tt.wantRedirect)
			}
			if got := svc.PasswordEnabled(); got != tt.wantPassword {
				t.Errorf("PasswordEnabled() = %v, want %v", got, tt.wantPassword)
			}
		})
	}
}
