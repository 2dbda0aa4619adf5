package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	// EnvAuthSecret overrides the token signing secret.
	EnvAuthSecret = "SVH_AUTH_SECRET"
	// EnvIdentityBase overrides edge.identity_base_url.
	EnvIdentityBase = "SVH_DB_API_BASE"

	defaultEnv              = "development"
	defaultEdgePort         = 8000
	defaultIdentityPort     = 8001
	defaultIdentityBaseURL  = "http://127.0.0.1:8001"
	defaultIdentityTimeout  = 5 * time.Second
	defaultCookieName       = "session_token"
	defaultSessionTTL       = time.Hour
	defaultMaxSessionTTL    = 7 * 24 * time.Hour
	defaultAccountCacheTTL  = 30 * time.Second
	defaultAccountCacheSize = 1024
	defaultLoginRateMax     = 10
	defaultLoginRateWindow  = time.Minute
	defaultDBHost           = "127.0.0.1"
	defaultDBPort           = 3306
	defaultDBUser           = "root"
	defaultDBPassword       = "password"
	defaultDBName           = "svh"
	defaultDBCharset        = "utf8mb4"
	defaultDBLoc            = "UTC"
	defaultRedisHost        = "localhost"
	defaultRedisPort        = 6379
	defaultRedisDB          = 0
	defaultLogsSubdir       = "logs"
)
