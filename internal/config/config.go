package config

import (
	"bytes"
	"fmt"
	neturl "net/url"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration for both tiers, loaded from YAML.
type AppConfig struct {
	Env            string
	Secret         string
	InternalSecret string
	Timezone       string
	Session        SessionConfig
	Edge           EdgeConfig
	Identity       IdentityConfig
	Database       DatabaseRuntimeConfig
	DSN            string
	Redis          RedisRuntimeConfig
	RedisURL       string
	LoginRateLimit RateLimitConfig
	Paths          RuntimePathsConfig
}

type SessionConfig struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

type EdgeConfig struct {
	Port             int
	IdentityBaseURL  string
	IdentityTimeout  time.Duration
	AllowedOrigins   []string
	CookieName       string
	CookieSecure     bool
	AccountCacheTTL  time.Duration
	AccountCacheSize int
	SweepOnBoot      bool
}

type IdentityConfig struct {
	Port        int
	AutoMigrate bool
}

type DatabaseRuntimeConfig struct {
	DSN       string
	Host      string
	Port      int
	User      string
	Password  string
	Name      string
	Charset   string
	ParseTime bool
	Loc       string
	Params    map[string]string
}

type RedisRuntimeConfig struct {
	Enable   bool
	URL      string
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	TLS      bool
}

type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

type RuntimePathsConfig struct {
	Logs string
}

type rawAppConfig struct {
	Env            string            `yaml:"env"`
	Secret         string            `yaml:"secret"`
	JWTSecret      string            `yaml:"jwt_secret"`
	InternalSecret string            `yaml:"internal_secret"`
	Timezone       string            `yaml:"timezone"`
	TZ             string            `yaml:"tz"`
	Session        rawSessionConfig  `yaml:"session"`
	Edge           rawEdgeConfig     `yaml:"edge"`
	Identity       rawIdentityConfig `yaml:"identity"`
	Database       rawDatabaseConfig `yaml:"database"`
	DSN            string            `yaml:"dsn"`
	DatabaseURL    string            `yaml:"database_url"`
	Redis          rawRedisConfig    `yaml:"redis"`
	RedisURL       string            `yaml:"redis_url"`
	LoginRateLimit rawRateLimit      `yaml:"login_rate_limit"`
	Paths          rawPathsConfig    `yaml:"paths"`
	LogDir         string            `yaml:"log_dir"`
}

type rawSessionConfig struct {
	DefaultTTLSeconds int `yaml:"default_ttl_seconds"`
	MaxTTLSeconds     int `yaml:"max_ttl_seconds"`
}

type rawEdgeConfig struct {
	Port                  int      `yaml:"port"`
	IdentityBaseURL       string   `yaml:"identity_base_url"`
	IdentityTimeoutMS     int      `yaml:"identity_timeout_ms"`
	AllowedOrigins        []string `yaml:"allowed_origins"`
	CookieName            string   `yaml:"cookie_name"`
	CookieSecure          *bool    `yaml:"cookie_secure"`
	AccountCacheTTLSecond *int     `yaml:"account_cache_ttl_seconds"`
	AccountCacheSize      int      `yaml:"account_cache_size"`
	SweepOnBoot           *bool    `yaml:"sweep_on_boot"`
}

type rawIdentityConfig struct {
	Port        int   `yaml:"port"`
	AutoMigrate *bool `yaml:"auto_migrate"`
}

type rawDatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	DBName    string            `yaml:"db_name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	Enable   *bool  `yaml:"enable"`
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
	TLS      *bool  `yaml:"tls"`
}

type rawRateLimit struct {
	Max           int `yaml:"max"`
	WindowSeconds int `yaml:"window_seconds"`
}

type rawPathsConfig struct {
	Logs string `yaml:"logs"`
}

// Load reads the YAML file at configPath, applies defaults and environment
// overrides, and validates the result.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML content into an AppConfig. Unknown keys are rejected.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	}

	applyRawAppConfig(&cfg, raw)
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Env: defaultEnv,
		Session: SessionConfig{
			DefaultTTL: defaultSessionTTL,
			MaxTTL:     defaultMaxSessionTTL,
		},
		Edge: EdgeConfig{
			Port:             defaultEdgePort,
			IdentityBaseURL:  defaultIdentityBaseURL,
			IdentityTimeout:  defaultIdentityTimeout,
			CookieName:       defaultCookieName,
			AccountCacheTTL:  defaultAccountCacheTTL,
			AccountCacheSize: defaultAccountCacheSize,
			SweepOnBoot:      true,
		},
		Identity: IdentityConfig{
			Port:        defaultIdentityPort,
			AutoMigrate: true,
		},
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		LoginRateLimit: RateLimitConfig{
			Max:    defaultLoginRateMax,
			Window: defaultLoginRateWindow,
		},
	}
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.Secret = v
	}
	if v := strings.TrimSpace(raw.Secret); v != "" {
		cfg.Secret = v
	}
	if v := strings.TrimSpace(raw.InternalSecret); v != "" {
		cfg.InternalSecret = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}

	if raw.Session.DefaultTTLSeconds > 0 {
		cfg.Session.DefaultTTL = seconds(raw.Session.DefaultTTLSeconds)
	}
	if raw.Session.MaxTTLSeconds > 0 {
		cfg.Session.MaxTTL = seconds(raw.Session.MaxTTLSeconds)
	}

	cfg.Edge = applyRawEdgeConfig(cfg.Edge, raw.Edge)

	if raw.Identity.Port != 0 {
		cfg.Identity.Port = raw.Identity.Port
	}
	if raw.Identity.AutoMigrate != nil {
		cfg.Identity.AutoMigrate = *raw.Identity.AutoMigrate
	}

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)

	if raw.LoginRateLimit.Max != 0 {
		cfg.LoginRateLimit.Max = raw.LoginRateLimit.Max
	}
	if raw.LoginRateLimit.WindowSeconds > 0 {
		cfg.LoginRateLimit.Window = seconds(raw.LoginRateLimit.WindowSeconds)
	}

	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}

	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
	cfg.Env = normalizeEnv(cfg.Env)
}

func applyRawEdgeConfig(current EdgeConfig, raw rawEdgeConfig) EdgeConfig {
	cfg := current
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.IdentityBaseURL); v != "" {
		cfg.IdentityBaseURL = v
	}
	if raw.IdentityTimeoutMS > 0 {
		cfg.IdentityTimeout = time.Duration(raw.IdentityTimeoutMS) * time.Millisecond
	}
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}
	if v := strings.TrimSpace(raw.CookieName); v != "" {
		cfg.CookieName = v
	}
	if raw.CookieSecure != nil {
		cfg.CookieSecure = *raw.CookieSecure
	}
	if raw.AccountCacheTTLSecond != nil {
		cfg.AccountCacheTTL = seconds(*raw.AccountCacheTTLSecond)
	}
	if raw.AccountCacheSize > 0 {
		cfg.AccountCacheSize = raw.AccountCacheSize
	}
	if raw.SweepOnBoot != nil {
		cfg.SweepOnBoot = *raw.SweepOnBoot
	}
	cfg.IdentityBaseURL = normalizeBaseURL(cfg.IdentityBaseURL)
	return cfg
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Database.URL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DatabaseURL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.Host); v != "" {
		cfg.Host = v
	}
	if raw.Database.Port != 0 {
		cfg.Port = raw.Database.Port
	}
	if v := strings.TrimSpace(raw.Database.Username); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Database.DBName); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.Charset); v != "" {
		cfg.Charset = v
	}
	if raw.Database.ParseTime != nil {
		cfg.ParseTime = *raw.Database.ParseTime
	}
	if v := strings.TrimSpace(raw.Database.Loc); v != "" {
		cfg.Loc = v
	}
	if raw.Database.Params != nil {
		cfg.Params = copyStringMap(raw.Database.Params)
	}

	return normalizeDatabaseConfig(cfg)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
		cfg.Enable = true
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
		cfg.Enable = true
	}
	if raw.Redis.Enable != nil {
		cfg.Enable = *raw.Redis.Enable
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		cfg.Password = v
	}
	if raw.Redis.DB != nil {
		cfg.DB = *raw.Redis.DB
	}
	if raw.Redis.TLS != nil {
		cfg.TLS = *raw.Redis.TLS
	}

	return normalizeRedisConfig(cfg)
}

func applyEnv(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvAuthSecret)); v != "" {
		cfg.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvIdentityBase)); v != "" {
		cfg.Edge.IdentityBaseURL = normalizeBaseURL(v)
	}
}

func (c *AppConfig) validate() error {
	if err := validatePort("edge.port", c.Edge.Port); err != nil {
		return err
	}
	if err := validatePort("identity.port", c.Identity.Port); err != nil {
		return err
	}
	if err := validatePort("database.port", c.Database.Port); err != nil {
		return err
	}
	if err := validatePort("redis.port", c.Redis.Port); err != nil {
		return err
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", c.Redis.DB)
	}
	if c.Session.MaxTTL < c.Session.DefaultTTL {
		return fmt.Errorf("session.max_ttl_seconds (%s) is below session.default_ttl_seconds (%s)",
			c.Session.MaxTTL, c.Session.DefaultTTL)
	}
	if c.LoginRateLimit.Max < 0 {
		return fmt.Errorf("invalid login_rate_limit.max %d, expected >= 0", c.LoginRateLimit.Max)
	}
	u, err := neturl.Parse(c.Edge.IdentityBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid edge.identity_base_url %q, expected http(s)://host[:port]", c.Edge.IdentityBaseURL)
	}
	if _, err := mysql.ParseDSN(c.DSN); err != nil {
		return fmt.Errorf("invalid database dsn: %w", err)
	}
	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s %d, expected 1-65535", name, port)
	}
	return nil
}

// IsDev reports whether the configured environment is development.
func (c *AppConfig) IsDev() bool { return c.Env == "development" }

// EdgeAddr returns the edge listen address.
func (c *AppConfig) EdgeAddr() string { return fmt.Sprintf(":%d", c.Edge.Port) }

// IdentityAddr returns the identity listen address.
func (c *AppConfig) IdentityAddr() string { return fmt.Sprintf(":%d", c.Identity.Port) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
