package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/redis/go-redis/v9"

	"github.com/peopleops/hrportal/config"
	"github.com/peopleops/hrportal/internal/migrate"
)

// DatabaseConfig describes the stores holding server-side credential slots.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	// Storage names the slot keyspace reported once redis answers.
	Storage config.StorageConfig
	Logger  *slog.Logger
}

func (c DatabaseConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// postgresDSN builds the pgx DSN; url.URL escapes credentials.
func postgresDSN(c config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectDB opens the credential slot database with the configured pool
// limits and fails unless it answers a ping within ConnectTimeout.
func ConnectDB(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	c := cfg.DBConfig
	c.Sanitize()

	db, err := sql.Open("pgx", postgresDSN(c))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)

	if err = ping(ctx, c.ConnectTimeout, db.PingContext, db.Close); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.logger().InfoContext(ctx, "database connected",
		"host", c.Host,
		"port", c.Port,
		"database", c.Name,
		"max_open_conns", c.MaxOpenConns)
	return db, nil
}

// ConnectRedis connects to the slot keyspace through a single node, a
// sentinel group or a cluster.
//
//nolint:ireturn // the topology picks the concrete client at runtime.
func ConnectRedis(ctx context.Context, cfg DatabaseConfig) (redis.UniversalClient, error) {
	rc := cfg.RedisConfig
	rc.Sanitize()

	opts, topology, err := redisOptions(rc)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(opts)

	pingRedis := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err = ping(ctx, rc.ConnectTimeout, pingRedis, client.Close); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	cfg.logger().InfoContext(ctx, "redis connected",
		"topology", topology,
		"addrs", strings.Join(opts.Addrs, ","),
		"slot_prefix", cfg.Storage.RedisPrefix)
	return client, nil
}

// redisOptions maps config onto UniversalOptions. Addrs never carry
// credentials, so the result is safe to log.
func redisOptions(c config.RedisConfig) (*redis.UniversalOptions, string, error) {
	opts := &redis.UniversalOptions{
		Password:    c.Password,
		DialTimeout: c.ConnectTimeout,
	}

	switch {
	case c.UseCluster:
		if len(c.ClusterNodes) == 0 {
			return nil, "", errors.New("REDIS_USE_CLUSTER requires REDIS_CLUSTER_NODES")
		}
		opts.Addrs = c.ClusterNodes
		opts.IsClusterMode = true
		return opts, "cluster", nil

	case c.UseSentinel:
		if len(c.SentinelNodes) == 0 {
			return nil, "", errors.New("REDIS_USE_SENTINEL requires REDIS_SENTINEL_NODES")
		}
		if c.SentinelMasterName == "" {
			return nil, "", errors.New("REDIS_USE_SENTINEL requires REDIS_SENTINEL_MASTER_NAME")
		}
		opts.Addrs = c.SentinelNodes
		opts.MasterName = c.SentinelMasterName
		opts.SentinelPassword = c.SentinelPassword
		return opts, "sentinel", nil
	}

	if c.URI == "" {
		return nil, "", errors.New("REDIS_URI is required")
	}
	if !strings.HasPrefix(c.URI, "redis://") && !strings.HasPrefix(c.URI, "rediss://") {
		opts.Addrs = []string{c.URI}
		return opts, "single", nil
	}
	parsed, err := redis.ParseURL(c.URI)
	if err != nil {
		return nil, "", fmt.Errorf("parse redis url: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	opts.DB = parsed.DB
	opts.TLSConfig = parsed.TLSConfig
	return opts, "single", nil
}

// ping bounds check by timeout and closes the handle when it fails.
func ping(
	ctx context.Context,
	timeout time.Duration,
	check func(context.Context) error,
	closeFn func() error,
) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := check(ctx)
	if err == nil {
		return nil
	}
	if cerr := closeFn(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close: %w", cerr))
	}
	return err
}

// RunMigrations applies the embedded credential slot migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}

	return nil
}
