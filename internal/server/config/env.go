package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable name read by parseEnv.
const EnvPrefix = "TA_"

// envConfig lists the settings that may come from TA_* variables. The
// OAUTH_* entries apply to the first configured provider.
type envConfig struct {
	EndpointAddrHTTP            string        `env:"HTTP_ADDR"`
	DatabaseDriver              string        `env:"DB_DRIVER"`
	DatabaseDSN                 string        `env:"DB_DSN"`
	SecretKey                   string        `env:"SECRET_KEY"`
	AccessTokenValidityDuration time.Duration `env:"ACCESS_TOKEN_TTL"`
	BcryptCost                  int           `env:"BCRYPT_COST"`
	FrontendURL                 string        `env:"FRONTEND_URL"`
	FrontendRedirectPath        string        `env:"FRONTEND_REDIRECT_PATH"`
	SessionCookieName           string        `env:"SESSION_COOKIE"`
	SessionTTL                  time.Duration `env:"SESSION_TTL"`
	SecureCookies               bool          `env:"SECURE_COOKIES"`
	SessionBackend              string        `env:"SESSION_BACKEND"`
	RedisURL                    string        `env:"REDIS_URL"`
	LogBackend                  string        `env:"LOG_BACKEND"`
	LogsRoot                    string        `env:"LOGS_ROOT"`
	S3Bucket                    string        `env:"S3_BUCKET"`
	S3Prefix                    string        `env:"S3_PREFIX"`
	S3Region                    string        `env:"S3_REGION"`
	S3BaseEndpoint              string        `env:"S3_BASE_ENDPOINT"`
	S3AccessKey                 string        `env:"S3_ACCESS_KEY"`
	S3SecretKey                 string        `env:"S3_SECRET_KEY"`
	CORSAllowedOrigins          []string      `env:"CORS_ORIGINS" envSeparator:","`
	LogFormat                   string        `env:"LOG_FORMAT"`
	LogLevel                    string        `env:"LOG_LEVEL"`

	OAuthClientID     string `env:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string `env:"OAUTH_CLIENT_SECRET"`
	OAuthRedirectURL  string `env:"OAUTH_REDIRECT_URI"`
}

// parseEnv overlays TA_* variables from environ (KEY=VALUE pairs). Unset
// variables leave the current values in place.
func parseEnv(config *Config, environ []string) error {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	e := envConfig{
		EndpointAddrHTTP:            config.EndpointAddrHTTP,
		DatabaseDriver:              config.DatabaseDriver,
		DatabaseDSN:                 config.DatabaseDSN,
		SecretKey:                   config.SecretKey,
		AccessTokenValidityDuration: config.AccessTokenValidityDuration,
		BcryptCost:                  config.BcryptCost,
		FrontendURL:                 config.FrontendURL,
		FrontendRedirectPath:        config.FrontendRedirectPath,
		SessionCookieName:           config.SessionCookieName,
		SessionTTL:                  config.SessionTTL,
		SecureCookies:               config.SecureCookies,
		SessionBackend:              config.SessionBackend,
		RedisURL:                    config.RedisURL,
		LogBackend:                  config.LogBackend,
		LogsRoot:                    config.LogsRoot,
		S3Bucket:                    config.S3Bucket,
		S3Prefix:                    config.S3Prefix,
		S3Region:                    config.S3Region,
		S3BaseEndpoint:              config.S3BaseEndpoint,
		S3AccessKey:                 config.S3AccessKey,
		S3SecretKey:                 config.S3SecretKey,
		CORSAllowedOrigins:          config.CORSAllowedOrigins,
		LogFormat:                   config.LogFormat,
		LogLevel:                    config.LogLevel,
	}

	if err := env.ParseWithOptions(&e, env.Options{Prefix: EnvPrefix, Environment: vars}); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}

	config.EndpointAddrHTTP = e.EndpointAddrHTTP
	config.DatabaseDriver = e.DatabaseDriver
	config.DatabaseDSN = e.DatabaseDSN
	config.SecretKey = e.SecretKey
	config.AccessTokenValidityDuration = e.AccessTokenValidityDuration
	config.BcryptCost = e.BcryptCost
	config.FrontendURL = e.FrontendURL
	config.FrontendRedirectPath = e.FrontendRedirectPath
	config.SessionCookieName = e.SessionCookieName
	config.SessionTTL = e.SessionTTL
	config.SecureCookies = e.SecureCookies
	config.SessionBackend = e.SessionBackend
	config.RedisURL = e.RedisURL
	config.LogBackend = e.LogBackend
	config.LogsRoot = e.LogsRoot
	config.S3Bucket = e.S3Bucket
	config.S3Prefix = e.S3Prefix
	config.S3Region = e.S3Region
	config.S3BaseEndpoint = e.S3BaseEndpoint
	config.S3AccessKey = e.S3AccessKey
	config.S3SecretKey = e.S3SecretKey
	config.CORSAllowedOrigins = e.CORSAllowedOrigins
	config.LogFormat = e.LogFormat
	config.LogLevel = e.LogLevel

	if len(config.Providers) > 0 {
		first := &config.Providers[0]
		setString(&first.ClientID, e.OAuthClientID)
		setString(&first.ClientSecret, e.OAuthClientSecret)
		setString(&first.RedirectURL, e.OAuthRedirectURL)
	}
	return nil
}
