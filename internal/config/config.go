// Package config provides application configuration loaded from an optional
// TOML file, a .env file and environment variables (highest precedence).
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/oraculo/protocol/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                 string        `toml:"port"`                   // e.g. "8080"
	BackofficePort       string        `toml:"backoffice_port"`        // e.g. "8081"
	Env                  string        `toml:"env"`                    // "development" | "production"
	ReadTimeout          time.Duration `toml:"read_timeout"`           // default 10s
	WriteTimeout         time.Duration `toml:"write_timeout"`          // default 10s
	BackofficeAllowedIPs string        `toml:"backoffice_allowed_ips"` // comma-separated IPs; "" = allow all
	RateLimitPerMinute   int           `toml:"rate_limit_per_minute"`  // per-caller write limit, default 60
	AllowedOrigins       []string      `toml:"allowed_origins"`        // CORS + WS origins in production
}

// DBConfig holds storage settings.
type DBConfig struct {
	Driver          string        `toml:"driver"` // "postgres" | "memory"
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`    // default 25
	MaxIdleConns    int           `toml:"max_idle_conns"`    // default 10
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"` // default 5m
	AutoMigrate     bool          `toml:"auto_migrate"`
}

// JWTConfig holds bearer-token settings.
type JWTConfig struct {
	AccessSecret string        `toml:"access_secret"` // must be set
	AccessTTL    time.Duration `toml:"access_ttl"`    // default 15m
	Issuer       string        `toml:"issuer"`
}

// RedisConfig holds the event bus and scheduler lock settings. An empty Addr
// disables Redis.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Channel  string `toml:"channel"` // default "oraculo:events"
}

// SchedulerConfig tunes the background governance caller.
type SchedulerConfig struct {
	Interval  time.Duration `toml:"interval"`   // default 30s
	BatchSize int           `toml:"batch_size"` // default 50
	LockTTL   time.Duration `toml:"lock_ttl"`   // default 25s
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server    ServerConfig          `toml:"server"`
	DB        DBConfig              `toml:"database"`
	JWT       JWTConfig             `toml:"jwt"`
	Redis     RedisConfig           `toml:"redis"`
	Scheduler SchedulerConfig       `toml:"scheduler"`
	Protocol  domain.ProtocolConfig `toml:"protocol"`
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// Validate checks that all required configuration values are present and valid.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}

	switch c.DB.Driver {
	case "postgres":
		if c.IsProd() && c.DB.DSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
		}
	case "memory":
		if c.IsProd() {
			errs = append(errs, errors.New("DATABASE_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or memory, got %q", c.DB.Driver))
	}

	if c.Scheduler.Interval <= 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_INTERVAL must be positive, got %s", c.Scheduler.Interval))
	}

	if err := c.Protocol.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once.
// Panics if loading fails; call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		_ = godotenv.Load() // .env is optional
		instance, loadErr = Load(os.Getenv("ORACULO_CONFIG_FILE"))
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Loader
// ──────────────────────────────────────────────────────────────────────────────

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:               "8080",
			BackofficePort:     "8081",
			Env:                "development",
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       10 * time.Second,
			RateLimitPerMinute: 60,
		},
		DB: DBConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
			Issuer:    "oraculo",
		},
		Redis: RedisConfig{
			Channel: "oraculo:events",
		},
		Scheduler: SchedulerConfig{
			Interval:  30 * time.Second,
			BatchSize: 50,
			LockTTL:   25 * time.Second,
		},
		Protocol: domain.DefaultProtocolConfig(),
	}
}

// Load builds a Config from the defaults, the TOML file at path (skipped when
// path is empty) and environment overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if cfg.DB.DSN == "" && cfg.DB.Driver == "postgres" {
		// Build DSN from individual components for convenience in dev
		cfg.DB.DSN = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "oraculo"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	// ── Server ────────────────────────────────────────────────────────────────
	setStr(&cfg.Server.Port, "SERVER_PORT")
	setStr(&cfg.Server.BackofficePort, "BACKOFFICE_PORT")
	setStr(&cfg.Server.Env, "ENVIRONMENT")
	setDuration(&cfg.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	setStr(&cfg.Server.BackofficeAllowedIPs, "BACKOFFICE_ALLOWED_IPS")
	if v := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	// ── Database ──────────────────────────────────────────────────────────────
	setStr(&cfg.DB.Driver, "DATABASE_DRIVER")
	setStr(&cfg.DB.DSN, "DATABASE_DSN")
	setDuration(&cfg.DB.ConnMaxLifetime, "DB_CONN_MAX_LIFETIME")

	// ── JWT ───────────────────────────────────────────────────────────────────
	setStr(&cfg.JWT.AccessSecret, "JWT_ACCESS_SECRET")
	setDuration(&cfg.JWT.AccessTTL, "JWT_ACCESS_TTL")
	setStr(&cfg.JWT.Issuer, "JWT_ISSUER")

	// ── Redis ─────────────────────────────────────────────────────────────────
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setStr(&cfg.Redis.Channel, "REDIS_CHANNEL")

	// ── Scheduler ─────────────────────────────────────────────────────────────
	setDuration(&cfg.Scheduler.Interval, "SCHEDULER_INTERVAL")
	setDuration(&cfg.Scheduler.LockTTL, "SCHEDULER_LOCK_TTL")

	// ── Protocol ──────────────────────────────────────────────────────────────
	p := &cfg.Protocol
	setStr((*string)(&p.Authority), "PROTOCOL_AUTHORITY")
	setStr((*string)(&p.Treasury), "PROTOCOL_TREASURY")
	setStr((*string)(&p.GovernanceMint), "PROTOCOL_GOVERNANCE_MINT")
	setStr((*string)(&p.SettlementMint), "PROTOCOL_SETTLEMENT_MINT")

	var errs []error
	for key, dst := range map[string]*int{
		"SERVER_RATE_LIMIT_PER_MINUTE": &cfg.Server.RateLimitPerMinute,
		"DB_MAX_OPEN_CONNS":            &cfg.DB.MaxOpenConns,
		"DB_MAX_IDLE_CONNS":            &cfg.DB.MaxIdleConns,
		"REDIS_DB":                     &cfg.Redis.DB,
		"SCHEDULER_BATCH_SIZE":         &cfg.Scheduler.BatchSize,
	} {
		errs = append(errs, setInt(dst, key))
	}
	for key, dst := range map[string]*uint64{
		"PROTOCOL_MIN_LIQUIDITY":  &p.MinLiquidity,
		"PROTOCOL_PROPOSAL_STAKE": &p.ProposalStake,
		"PROTOCOL_QUORUM":         &p.Quorum,
	} {
		errs = append(errs, setUint64(dst, key))
	}
	if v := os.Getenv("PROTOCOL_SUPERMAJORITY_PERCENT"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			errs = append(errs, fmt.Errorf("PROTOCOL_SUPERMAJORITY_PERCENT: invalid integer %q", v))
		} else {
			p.SupermajorityPercent = uint8(n)
		}
	}
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DB_AUTO_MIGRATE: invalid bool %q", v))
		} else {
			cfg.DB.AutoMigrate = b
		}
	}
	return errors.Join(errs...)
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func setUint64(dst *uint64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid unsigned integer %q", key, v)
	}
	*dst = n
	return nil
}

// setDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Leaves dst unchanged if the variable is unset or unparseable.
func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
