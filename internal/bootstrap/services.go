package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/peopleops/hrportal/config"
	"github.com/peopleops/hrportal/internal/adapters/backend"
	"github.com/peopleops/hrportal/internal/adapters/devbackend"
	"github.com/peopleops/hrportal/internal/adapters/postgres"
	"github.com/peopleops/hrportal/internal/adapters/reaper"
	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
	"github.com/peopleops/hrportal/internal/adapters/usercache"
	httpx "github.com/peopleops/hrportal/internal/http"
	"github.com/peopleops/hrportal/internal/observability/metrics"
	"github.com/peopleops/hrportal/internal/ports"
	"github.com/peopleops/hrportal/internal/service"
	"github.com/peopleops/hrportal/internal/service/session"
	"github.com/peopleops/hrportal/internal/service/ssobridge"
)

const shutdownWaitTimeout = 10 * time.Second

// ServiceDeps contains dependencies for creating services.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB               // Optional: postgres storage and the reaper
	RedisClient redis.UniversalClient // Optional: redis storage
	Metrics     metrics.Sink
	Tracer      trace.TracerProvider // Optional: defaults to the global provider
	Logger      *slog.Logger
}

// ServiceContainer holds every long-lived component of the portal.
type ServiceContainer struct {
	Backend   *backend.Client
	Users     ports.UserResolver
	Resolver  *session.Resolver
	Factory   session.Factory
	Directory *ssobridge.Directory
	Bridge    *ssobridge.Bridge
	Auth      *service.AuthService
	Stores    tokenstore.RequestStores
	// Ready pings the server-side slot backend; nil for cookie storage.
	Ready httpx.ReadinessCheck
	// DevBackend is set when the devbackend service runs in-process.
	DevBackend *devbackend.Server
	// Slots is set when a database is connected; the reaper purges it.
	Slots *postgres.SlotStore
}

// NewServices wires the backend client, session resolution, the SSO bridge
// and the login service from configuration.
func NewServices(ctx context.Context, deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service dependencies require a config")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &ServiceContainer{}

	if cfg.IsDevBackendEnabled() {
		dev, err := devbackend.New(devbackend.Config{
			Secret:       []byte(cfg.DevBackend.Secret),
			TokenTTL:     cfg.DevBackend.TokenTTL,
			Users:        devbackend.DefaultUsers(cfg.DevBackend.SeedPassword),
			Applications: devbackend.DefaultApplications(cfg.DevBackend.NarukuURL),
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("dev backend: %w", err)
		}
		c.DevBackend = dev
	}

	client, err := backend.New(backend.Config{
		BaseURL:  cfg.Backend.URL,
		Timeout:  cfg.Backend.Timeout,
		UserPath: cfg.Backend.UserPath,
		RoleExpr: cfg.Backend.RoleExpr,

		TracerProvider: deps.Tracer,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	c.Backend = client

	c.Users = usercache.New(client, usercache.Config{
		TTL:     cfg.Session.CacheTTL,
		Entries: cfg.Session.CacheEntries,
	})
	c.Resolver = session.NewResolver(session.ResolverOptions{
		Users:          c.Users,
		Timeout:        cfg.Session.ResolveTimeout,
		ClearOnFailure: cfg.Session.ClearOnFailure,
		Logger:         logger,
		Metrics:        deps.Metrics,
	})
	c.Factory = session.Factory{Resolver: c.Resolver, Logger: logger, Metrics: deps.Metrics}

	c.Directory = ssobridge.NewDirectory(ssobridge.DirectoryOptions{
		Backend: client,
		Timeout: cfg.Backend.DirectoryTimeout,
		TTL:     cfg.Backend.DirectoryTTL,
		Entries: cfg.Backend.DirectoryEntries,
		Logger:  logger,
		Metrics: deps.Metrics,
	})
	c.Bridge = ssobridge.NewBridge(ssobridge.BridgeOptions{
		Directory:       c.Directory,
		Backend:         client,
		ExchangeTimeout: cfg.Backend.ExchangeTimeout,
		Logger:          logger,
		Metrics:         deps.Metrics,
	})

	authCfg := AuthConfig{
		Auth:    cfg.Auth,
		Backend: client,
		Logger:  logger,
		Metrics: deps.Metrics,
	}
	if c.DevBackend != nil {
		authCfg.Minter = c.DevBackend
	}
	if c.Auth, err = BuildAuthService(ctx, authCfg); err != nil {
		return nil, err
	}

	if c.Stores, err = BuildRequestStores(StorageDeps{
		Storage:     cfg.Storage,
		Cookies:     CookieOptions(cfg.HTTP),
		DB:          deps.DB,
		RedisClient: deps.RedisClient,
		Logger:      logger,
	}); err != nil {
		return nil, err
	}

	c.Ready = SlotBackendCheck(cfg.Storage.Mode, deps.DB, deps.RedisClient)

	if deps.DB != nil {
		c.Slots = postgres.NewSlotStore(deps.DB, postgres.SlotStoreOptions{TTL: cfg.Storage.SlotTTL})
	}
	return c, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Metrics  *Metrics
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts every enabled service and blocks until
// SIGINT/SIGTERM or the first service failure, then stops the rest.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil || cfg.Services == nil {
		return errors.New("service orchestration config is incomplete")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	if cfg.Config.IsDevBackendEnabled() && cfg.Services.DevBackend != nil {
		srv := NewHTTPServer(cfg.Config.DevBackend.Addr, cfg.Services.DevBackend.Handler(), cfg.Config.HTTP)
		g.Go(func() error { return serveUntilDone(gctx, srv, "dev backend", logger) })
	}

	if cfg.Config.IsHTTPServerEnabled() {
		handler, err := BuildHTTPHandler(HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Metrics:  cfg.Metrics,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		srv := NewHTTPServer(cfg.Config.HTTP.Addr, handler, cfg.Config.HTTP)
		g.Go(func() error { return serveUntilDone(gctx, srv, "HTTP server", logger) })
	}

	if cfg.Config.IsReaperEnabled() {
		runner, err := newReaper(cfg, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := runner.Run(gctx); err != nil {
				return fmt.Errorf("reaper: %w", err)
			}
			logger.Info("reaper stopped")
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		logger.Error("service error", "error", err)
	}
	return err
}

func newReaper(cfg *ServiceOrchestrationConfig, logger *slog.Logger) (*reaper.Runner, error) {
	if cfg.Services.Slots == nil {
		return nil, errors.New("reaper requires a database connection")
	}
	var sink metrics.Sink
	if cfg.Metrics != nil {
		sink = cfg.Metrics.Sink
	}
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Purger:   cfg.Services.Slots,
		Interval: cfg.Config.Reaper.Interval,
		Logger:   logger,
		Metrics:  sink,
	})
	if err != nil {
		return nil, fmt.Errorf("create reaper: %w", err)
	}
	return runner, nil
}

// serveUntilDone runs srv until it fails or ctx ends, then shuts it down gracefully.
func serveUntilDone(ctx context.Context, srv *http.Server, name string, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting "+name, "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s: %w", name, err)
	case <-ctx.Done():
		logger.Info("shutting down " + name)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownWaitTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown %s: %w", name, err)
		}
		logger.Info(name + " stopped")
		return nil
	}
}
