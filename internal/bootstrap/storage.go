package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/peopleops/hrportal/config"
	"github.com/peopleops/hrportal/internal/adapters/postgres"
	redisadapter "github.com/peopleops/hrportal/internal/adapters/redis"
	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
	httpx "github.com/peopleops/hrportal/internal/http"
)

// StorageDeps contains what the credential slot stores may need.
type StorageDeps struct {
	Storage     config.StorageConfig
	Cookies     tokenstore.CookieOptions
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildRequestStores selects where each request keeps its two credential slots.
//
//nolint:ireturn // the storage mode picks the implementation at runtime.
func BuildRequestStores(deps StorageDeps) (tokenstore.RequestStores, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch deps.Storage.Mode {
	case config.StorageModeCookie, "":
		logger.Info("credential storage selected", "mode", config.StorageModeCookie)
		return tokenstore.CookieSlots{Options: deps.Cookies}, nil

	case config.StorageModeRedis:
		if deps.RedisClient == nil {
			return nil, errors.New("redis storage selected but redis is not connected")
		}
		logger.Info("credential storage selected", "mode", config.StorageModeRedis, "prefix", deps.Storage.RedisPrefix)
		return tokenstore.ServerSlots{
			Backend: redisadapter.NewSlotStore(deps.RedisClient, redisadapter.SlotStoreOptions{
				Prefix: deps.Storage.RedisPrefix,
				TTL:    deps.Storage.SlotTTL,
			}),
			Options: deps.Cookies,
			Logger:  logger,
		}, nil

	case config.StorageModePostgres:
		if deps.DB == nil {
			return nil, errors.New("postgres storage selected but the database is not connected")
		}
		logger.Info("credential storage selected", "mode", config.StorageModePostgres)
		return tokenstore.ServerSlots{
			Backend: postgres.NewSlotStore(deps.DB, postgres.SlotStoreOptions{TTL: deps.Storage.SlotTTL}),
			Options: deps.Cookies,
			Logger:  logger,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage mode %q", deps.Storage.Mode)
	}
}

// SlotBackendCheck pings the store behind server-side slots. Cookie storage
// has no backend and returns nil.
func SlotBackendCheck(mode config.StorageMode, db *sql.DB, rc redis.UniversalClient) httpx.ReadinessCheck {
	switch mode {
	case config.StorageModeRedis:
		if rc != nil {
			return func(ctx context.Context) error { return rc.Ping(ctx).Err() }
		}
	case config.StorageModePostgres:
		if db != nil {
			return db.PingContext
		}
	}
	return nil
}

// CookieOptions derives credential cookie attributes from HTTP config.
func CookieOptions(h config.HTTPConfig) tokenstore.CookieOptions {
	return tokenstore.CookieOptions{
		Domain: h.CookieDomain,
		Path:   "/",
		Secure: h.CookieSecure,
		MaxAge: h.CookieMaxAge,
	}
}
