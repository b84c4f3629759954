package bootstrap

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/peopleops/hrportal/config"
	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
)

func TestBuildRequestStores(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	tests := []struct {
		name       string
		deps       StorageDeps
		wantServer bool
		wantErr    bool
	}{
		{name: "default is cookie", deps: StorageDeps{}},
		{name: "cookie", deps: StorageDeps{Storage: config.StorageConfig{Mode: config.StorageModeCookie}}},
		{
			name: "redis",
			deps: StorageDeps{
				Storage:     config.StorageConfig{Mode: config.StorageModeRedis, RedisPrefix: "test:", SlotTTL: time.Hour},
				RedisClient: rdb,
			},
			wantServer: true,
		},
		{
			name:    "redis without client",
			deps:    StorageDeps{Storage: config.StorageConfig{Mode: config.StorageModeRedis}},
			wantErr: true,
		},
		{
			name:       "postgres",
			deps:       StorageDeps{Storage: config.StorageConfig{Mode: config.StorageModePostgres, SlotTTL: time.Hour}, DB: db},
			wantServer: true,
		},
		{
			name:    "postgres without database",
			deps:    StorageDeps{Storage: config.StorageConfig{Mode: config.StorageModePostgres}},
			wantErr: true,
		},
		{
			name:    "unknown mode",
			deps:    StorageDeps{Storage: config.StorageConfig{Mode: "sqlite"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.deps.Logger = discardLogger()
			stores, err := BuildRequestStores(tt.deps)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %T", stores)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildRequestStores() error = %v", err)
			}
			_, isServer := stores.(tokenstore.ServerSlots)
			if isServer != tt.wantServer {
				t.Fatalf("got %T, want server-side slots = %v", stores, tt.wantServer)
			}

			pair := stores.ForRequest(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
			if pair.Primary == nil || pair.SSO == nil {
				t.Fatal("both slots must be bound")
			}
		})
	}
}

func TestCookieOptions(t *testing.T) {
	opts := CookieOptions(config.HTTPConfig{
		CookieDomain: "hr.example.com",
		CookieSecure: true,
		CookieMaxAge: time.Hour,
	})
	want := tokenstore.CookieOptions{Domain: "hr.example.com", Path: "/", Secure: true, MaxAge: time.Hour}
	if opts != want {
		t.Fatalf("CookieOptions() = %+v, want %+v", opts, want)
	}
}
