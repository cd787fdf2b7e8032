package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"candidash/cmd/identity"
	"candidash/cmd/internal/auth/api"
	"candidash/cmd/internal/auth/retention"
	"candidash/cmd/internal/auth/session"
	"candidash/cmd/security/password"
	"candidash/cmd/security/token"
)

// Store backends accepted by CANDIDASH_STORE.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// ConfigFileEnvKey names an optional YAML file used as the base layer.
const ConfigFileEnvKey = "CANDIDASH_CONFIG_FILE"

// Config contains all runtime configuration. Defaults, then the YAML file,
// then environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	CORSAllowedOrigins []string

	// Store selects the refresh record backend. Empty means postgres when
	// DatabaseURL is set and memory otherwise.
	Store string

	DatabaseURL    string
	DBSchema       string
	DBMaxConns     int32
	DBMinConns     int32
	MigrateOnStart bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// If true, /readyz returns 503 unless the store backend is reachable
	// and persistent.
	ReadinessRequireDB bool

	// SigningSecret is only ever read from the environment.
	SigningSecret     string
	SigningSecretFile string

	Password  password.Config
	Session   session.Config
	Auth      authapi.Config
	Retention retention.Config
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:  "0.0.0.0:8080",
		LogLevel:  "info",
		LogFormat: "json",

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,

		CORSAllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},

		DBSchema:       identity.DefaultSchema,
		DBMaxConns:     10,
		MigrateOnStart: true,

		RedisPrefix: "candidash:",

		Password:  password.DefaultConfig(),
		Session:   session.DefaultConfig(),
		Auth:      authapi.DefaultConfig(),
		Retention: retention.DefaultConfig(),
	}
}

// LoadConfig builds the runtime Config from defaults, the optional YAML file
// named by CANDIDASH_CONFIG_FILE, and CANDIDASH_* environment variables.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnvKey)); path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path.
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := applyYAML(&cfg, raw); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = EnvString("CANDIDASH_HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = EnvString("CANDIDASH_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = EnvString("CANDIDASH_LOG_FORMAT", cfg.LogFormat)

	cfg.ReadHeaderTimeout = EnvDuration("CANDIDASH_HTTP_READ_HEADER_TIMEOUT", cfg.ReadHeaderTimeout)
	cfg.ReadTimeout = EnvDuration("CANDIDASH_HTTP_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = EnvDuration("CANDIDASH_HTTP_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.IdleTimeout = EnvDuration("CANDIDASH_HTTP_IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.ShutdownTimeout = EnvDuration("CANDIDASH_HTTP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.MaxHeaderBytes = EnvInt("CANDIDASH_HTTP_MAX_HEADER_BYTES", cfg.MaxHeaderBytes)
	cfg.CORSAllowedOrigins = EnvList("CANDIDASH_CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)

	cfg.Store = strings.ToLower(EnvString("CANDIDASH_STORE", cfg.Store))

	cfg.DatabaseURL = EnvString("CANDIDASH_DATABASE_URL", cfg.DatabaseURL)
	cfg.DBSchema = EnvString("CANDIDASH_DB_SCHEMA", cfg.DBSchema)
	cfg.DBMaxConns = EnvInt32("CANDIDASH_DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.DBMinConns = EnvInt32("CANDIDASH_DB_MIN_CONNS", cfg.DBMinConns)
	cfg.MigrateOnStart = EnvBool("CANDIDASH_DB_MIGRATE", cfg.MigrateOnStart)

	cfg.RedisAddr = EnvString("CANDIDASH_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = EnvString("CANDIDASH_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = EnvInt("CANDIDASH_REDIS_DB", cfg.RedisDB)
	cfg.RedisPrefix = EnvString("CANDIDASH_REDIS_PREFIX", cfg.RedisPrefix)

	cfg.ReadinessRequireDB = EnvBool("CANDIDASH_READINESS_REQUIRE_DB", cfg.ReadinessRequireDB)
	cfg.SigningSecret = os.Getenv(token.SecretEnvKey)
	cfg.SigningSecretFile = EnvString(token.SecretFileEnvKey, cfg.SigningSecretFile)

	var err error
	if cfg.Password, err = password.FromEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Session, err = session.LoadConfigFromEnv(cfg.Session); err != nil {
		return Config{}, err
	}
	if cfg.Auth, err = authapi.LoadConfigFromEnv(cfg.Auth); err != nil {
		return Config{}, err
	}
	if cfg.Retention, err = retention.LoadConfigFromEnv(cfg.Retention); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints and resolves the default store.
func (c *Config) Validate() error {
	if c.Store == "" {
		c.Store = StoreMemory
		if c.DatabaseURL != "" {
			c.Store = StorePostgres
		}
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: CANDIDASH_STORE=postgres requires CANDIDASH_DATABASE_URL")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("config: CANDIDASH_STORE=redis requires CANDIDASH_REDIS_ADDR")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if !identity.ValidSchemaName(c.DBSchema) {
		return fmt.Errorf("config: invalid db schema %q", c.DBSchema)
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Retention.Validate()
}

// fileConfig is the YAML shape. Zero values leave the current setting alone.
type fileConfig struct {
	HTTP struct {
		Addr               string        `yaml:"addr"`
		ReadHeaderTimeout  time.Duration `yaml:"read_header_timeout"`
		ReadTimeout        time.Duration `yaml:"read_timeout"`
		WriteTimeout       time.Duration `yaml:"write_timeout"`
		IdleTimeout        time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
		CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	} `yaml:"http"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Store string `yaml:"store"`

	Database struct {
		URL                 string `yaml:"url"`
		Schema              string `yaml:"schema"`
		MaxConns            int32  `yaml:"max_conns"`
		MinConns            int32  `yaml:"min_conns"`
		Migrate             *bool  `yaml:"migrate"`
		RequireForReadiness *bool  `yaml:"require_for_readiness"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Session struct {
		Issuer              string         `yaml:"issuer"`
		AccessTTL           time.Duration  `yaml:"access_ttl"`
		RefreshTTL          time.Duration  `yaml:"refresh_ttl"`
		ClockSkew           *time.Duration `yaml:"clock_skew"`
		ReuseRevokesLineage *bool          `yaml:"reuse_revokes_lineage"`
		SigningSecretFile   string         `yaml:"signing_secret_file"`
	} `yaml:"session"`

	Cookie struct {
		Name     string `yaml:"name"`
		Path     string `yaml:"path"`
		Domain   string `yaml:"domain"`
		Secure   *bool  `yaml:"secure"`
		SameSite string `yaml:"samesite"`
	} `yaml:"cookie"`

	Retention struct {
		Window   *time.Duration `yaml:"window"`
		Interval time.Duration  `yaml:"interval"`
	} `yaml:"retention"`
}

func applyYAML(cfg *Config, raw []byte) error {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	setString(&cfg.HTTPAddr, fc.HTTP.Addr)
	setDuration(&cfg.ReadHeaderTimeout, fc.HTTP.ReadHeaderTimeout)
	setDuration(&cfg.ReadTimeout, fc.HTTP.ReadTimeout)
	setDuration(&cfg.WriteTimeout, fc.HTTP.WriteTimeout)
	setDuration(&cfg.IdleTimeout, fc.HTTP.IdleTimeout)
	setDuration(&cfg.ShutdownTimeout, fc.HTTP.ShutdownTimeout)
	if len(fc.HTTP.CORSAllowedOrigins) > 0 {
		cfg.CORSAllowedOrigins = fc.HTTP.CORSAllowedOrigins
	}

	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFormat, fc.Log.Format)
	setString(&cfg.Store, strings.ToLower(fc.Store))

	setString(&cfg.DatabaseURL, fc.Database.URL)
	setString(&cfg.DBSchema, fc.Database.Schema)
	if fc.Database.MaxConns > 0 {
		cfg.DBMaxConns = fc.Database.MaxConns
	}
	if fc.Database.MinConns > 0 {
		cfg.DBMinConns = fc.Database.MinConns
	}
	setBool(&cfg.MigrateOnStart, fc.Database.Migrate)
	setBool(&cfg.ReadinessRequireDB, fc.Database.RequireForReadiness)

	setString(&cfg.RedisAddr, fc.Redis.Addr)
	setString(&cfg.RedisPassword, fc.Redis.Password)
	if fc.Redis.DB > 0 {
		cfg.RedisDB = fc.Redis.DB
	}
	setString(&cfg.RedisPrefix, fc.Redis.Prefix)

	setString(&cfg.Session.Issuer, fc.Session.Issuer)
	setDuration(&cfg.Session.AccessTTL, fc.Session.AccessTTL)
	setDuration(&cfg.Session.RefreshTTL, fc.Session.RefreshTTL)
	if fc.Session.ClockSkew != nil {
		cfg.Session.ClockSkew = *fc.Session.ClockSkew
	}
	setBool(&cfg.Session.ReuseRevokesLineage, fc.Session.ReuseRevokesLineage)
	setString(&cfg.SigningSecretFile, fc.Session.SigningSecretFile)

	setString(&cfg.Auth.RefreshCookieName, fc.Cookie.Name)
	setString(&cfg.Auth.CookiePath, fc.Cookie.Path)
	setString(&cfg.Auth.CookieDomain, fc.Cookie.Domain)
	setBool(&cfg.Auth.CookieSecure, fc.Cookie.Secure)
	if fc.Cookie.SameSite != "" {
		ss, err := authapi.ParseSameSite(fc.Cookie.SameSite)
		if err != nil {
			return err
		}
		cfg.Auth.CookieSameSite = ss
	}

	if fc.Retention.Window != nil {
		cfg.Retention.Window = *fc.Retention.Window
	}
	setDuration(&cfg.Retention.Interval, fc.Retention.Interval)
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
