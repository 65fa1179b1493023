package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gainsborouo/ta-source/internal/flagx"
	"github.com/gainsborouo/ta-source/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "10h" and integer nanoseconds are accepted. Zero
// values mean "not set" and leave the current setting untouched.
type JsonConfig struct {
	EndpointAddrHTTP            string           `json:"endpoint_addr_http"`
	DatabaseDriver              string           `json:"database_driver"`
	DatabaseDSN                 string           `json:"database_dsn"`
	SecretKey                   string           `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration   `json:"access_token_validity_duration"`
	BcryptCost                  int              `json:"bcrypt_cost"`
	FrontendURL                 string           `json:"frontend_url"`
	FrontendRedirectPath        string           `json:"frontend_redirect_path"`
	SessionCookieName           string           `json:"session_cookie_name"`
	SessionTTL                  timex.Duration   `json:"session_ttl"`
	SecureCookies               *bool            `json:"secure_cookies"`
	SessionBackend              string           `json:"session_backend"`
	RedisURL                    string           `json:"redis_url"`
	LogBackend                  string           `json:"log_backend"`
	LogsRoot                    string           `json:"logs_root"`
	S3Bucket                    string           `json:"s3_bucket"`
	S3Prefix                    string           `json:"s3_prefix"`
	S3Region                    string           `json:"s3_region"`
	S3BaseEndpoint              string           `json:"s3_base_endpoint"`
	S3AccessKey                 string           `json:"s3_access_key"`
	S3SecretKey                 string           `json:"s3_secret_key"`
	CORSAllowedOrigins          []string         `json:"cors_allowed_origins"`
	LogFormat                   string           `json:"log_format"`
	LogLevel                    string           `json:"log_level"`
	Providers                   []ProviderConfig `json:"providers"`
}

// parseJson overlays values from the JSON file named by -c/-config in args
// (or TA_CONFIG). Without either, nothing is loaded.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	c.applyTo(config)
	return nil
}

func (c *JsonConfig) applyTo(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDriver, c.DatabaseDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	setString(&config.FrontendURL, c.FrontendURL)
	setString(&config.FrontendRedirectPath, c.FrontendRedirectPath)
	setString(&config.SessionCookieName, c.SessionCookieName)
	if c.SessionTTL.Duration != 0 {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if c.SecureCookies != nil {
		config.SecureCookies = *c.SecureCookies
	}
	setString(&config.SessionBackend, c.SessionBackend)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogsRoot, c.LogsRoot)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Prefix, c.S3Prefix)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	if c.CORSAllowedOrigins != nil {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)
	if c.Providers != nil {
		config.Providers = c.Providers
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
