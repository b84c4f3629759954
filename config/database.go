package config

import (
	"fmt"
	"strings"
	"time"
)

// StorageMode selects where the web session keeps its credential slots.
type StorageMode string

const (
	// StorageModeCookie keeps each slot in its own HttpOnly cookie.
	StorageModeCookie StorageMode = "cookie"
	// StorageModeRedis keeps slots in Redis keyed by a session id cookie.
	StorageModeRedis StorageMode = "redis"
	// StorageModePostgres keeps slots in the credential_slots table.
	StorageModePostgres StorageMode = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for StorageMode.
func (m *StorageMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "cookie", "redis", "postgres":
		*m = StorageMode(v)
		return nil
	default:
		return fmt.Errorf("invalid StorageMode: %q (valid options: cookie, redis, postgres)", v)
	}
}

// StorageConfig configures the credential slot store.
type StorageConfig struct {
	Mode StorageMode `env:"TOKEN_STORAGE" envDefault:"cookie"`
	// SlotTTL bounds how long an idle browser keeps its server-side slots.
	SlotTTL time.Duration `env:"TOKEN_SLOT_TTL" envDefault:"12h"`
	// RedisPrefix namespaces slot keys.
	RedisPrefix string `env:"TOKEN_REDIS_PREFIX" envDefault:"hrportal:slot:"`
}

// Sanitize applies guardrails to storage values.
func (s *StorageConfig) Sanitize() {
	if s.Mode == "" {
		s.Mode = StorageModeCookie
	}
	if s.SlotTTL <= 0 {
		s.SlotTTL = 12 * time.Hour
	}
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"hrportal"`
	Password string `env:"PASSWORD"                envDefault:"hrportal"`
	Name     string `env:"NAME"                    envDefault:"hrportal"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
	// Slot lookups are short single-row queries; a small pool is enough.
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT"   envDefault:"5s"`
}

// Sanitize keeps the pool usable when values are zero or inconsistent.
func (c *DBConfig) Sanitize() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`

	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`
}

// Sanitize trims node lists and applies the connect timeout default.
func (c *RedisConfig) Sanitize() {
	c.URI = strings.TrimSpace(c.URI)
	c.SentinelNodes = trimNodes(c.SentinelNodes)
	c.ClusterNodes = trimNodes(c.ClusterNodes)
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

func trimNodes(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, n := range raw {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
