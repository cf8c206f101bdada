package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	OIDC          auth.OIDCConfig
	SAML          auth.SAMLConfig
	Media         MediaConfig
	Settings      SettingsConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Size of the in-process cache over published public content
	PublicCacheSize int
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// AuthConfig holds session and provisioning settings
type AuthConfig struct {
	SessionTTL    time.Duration
	SecureCookies bool
	PostLoginURL  string
	DefaultRole   string

	// GroupMappings maps identity-provider group names to role names,
	// parsed from "group=role,group=role".
	GroupMappings []auth.GroupMapping
}

// MediaConfig holds S3 object storage settings for uploaded assets
type MediaConfig struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UsePathStyle  bool
	PublicBaseURL string
	MaxUploadSize int64
}

// SettingsConfig locates the hot-reloaded site settings file
type SettingsConfig struct {
	Path string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("CAMPUSCMS_HOST", "0.0.0.0"),
			Port:            getEnv("CAMPUSCMS_PORT", "8080"),
			ReadTimeout:     getEnvDuration("CAMPUSCMS_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("CAMPUSCMS_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("CAMPUSCMS_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("CAMPUSCMS_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("CAMPUSCMS_HEALTH_PORT", "9090"),
			PublicCacheSize: getEnvInt("CAMPUSCMS_PUBLIC_CACHE_SIZE", 512),
		},
		Database: DatabaseConfig{
			URL:          getEnv("CAMPUSCMS_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("CAMPUSCMS_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("CAMPUSCMS_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("CAMPUSCMS_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:        getEnv("CAMPUSCMS_REDIS_URL", ""),
			Password:   getEnv("CAMPUSCMS_REDIS_PASSWORD", ""),
			DB:         getEnvInt("CAMPUSCMS_REDIS_DB", 0),
			MaxRetries: getEnvInt("CAMPUSCMS_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("CAMPUSCMS_REDIS_POOL_SIZE", 10),
		},
		Auth: AuthConfig{
			SessionTTL:    getEnvDuration("CAMPUSCMS_SESSION_TTL", auth.DefaultSessionTTL),
			SecureCookies: getEnvBool("CAMPUSCMS_SECURE_COOKIES", true),
			PostLoginURL:  getEnv("CAMPUSCMS_POST_LOGIN_URL", "/"),
			DefaultRole:   getEnv("CAMPUSCMS_DEFAULT_ROLE", "viewer"),
			GroupMappings: parseGroupMappings(getEnv("CAMPUSCMS_GROUP_MAPPINGS", "")),
		},
		OIDC: auth.OIDCConfig{
			IssuerURL:    getEnv("CAMPUSCMS_OIDC_ISSUER", ""),
			ClientID:     getEnv("CAMPUSCMS_OIDC_CLIENT_ID", ""),
			ClientSecret: getEnv("CAMPUSCMS_OIDC_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("CAMPUSCMS_OIDC_REDIRECT_URL", ""),
			Scopes:       splitNonEmpty(getEnv("CAMPUSCMS_OIDC_SCOPES", "openid,profile,email")),
			GroupsClaim:  getEnv("CAMPUSCMS_OIDC_GROUPS_CLAIM", "groups"),
		},
		SAML: auth.SAMLConfig{
			EntityID:      getEnv("CAMPUSCMS_SAML_ENTITY_ID", ""),
			SSOURL:        getEnv("CAMPUSCMS_SAML_SSO_URL", ""),
			Certificate:   getEnv("CAMPUSCMS_SAML_CERTIFICATE", ""),
			BaseURL:       getEnv("CAMPUSCMS_SAML_BASE_URL", ""),
			EmailAttr:     getEnv("CAMPUSCMS_SAML_EMAIL_ATTR", "email"),
			FirstNameAttr: getEnv("CAMPUSCMS_SAML_FIRST_NAME_ATTR", "firstName"),
			LastNameAttr:  getEnv("CAMPUSCMS_SAML_LAST_NAME_ATTR", "lastName"),
			GroupsAttr:    getEnv("CAMPUSCMS_SAML_GROUPS_ATTR", "groups"),
		},
		Media: MediaConfig{
			Endpoint:      getEnv("CAMPUSCMS_S3_ENDPOINT", ""),
			Region:        getEnv("CAMPUSCMS_S3_REGION", "us-east-1"),
			Bucket:        getEnv("CAMPUSCMS_S3_BUCKET", ""),
			AccessKey:     getEnv("CAMPUSCMS_S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("CAMPUSCMS_S3_SECRET_KEY", ""),
			UsePathStyle:  getEnvBool("CAMPUSCMS_S3_USE_PATH_STYLE", false),
			PublicBaseURL: getEnv("CAMPUSCMS_MEDIA_PUBLIC_URL", ""),
			MaxUploadSize: getEnvInt64("CAMPUSCMS_MEDIA_MAX_UPLOAD_BYTES", 25<<20),
		},
		Settings: SettingsConfig{
			Path: getEnv("CAMPUSCMS_SETTINGS_PATH", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:           parseLogLevel(getEnv("CAMPUSCMS_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("CAMPUSCMS_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("CAMPUSCMS_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("CAMPUSCMS_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("CAMPUSCMS_OTEL_SERVICE_NAME", "campuscms"),
			OTelServiceVersion: getEnv("CAMPUSCMS_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("CAMPUSCMS_OTEL_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// OIDCEnabled reports whether OIDC single sign-on is configured
func (c *Config) OIDCEnabled() bool {
	return c.OIDC.IssuerURL != ""
}

// SAMLEnabled reports whether SAML single sign-on is configured
func (c *Config) SAMLEnabled() bool {
	return c.SAML.SSOURL != ""
}

// MediaEnabled reports whether S3 media storage is configured
func (c *Config) MediaEnabled() bool {
	return c.Media.Bucket != ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.OIDCEnabled() {
		if err := c.OIDC.Validate(); err != nil {
			return fmt.Errorf("invalid OIDC configuration: %w", err)
		}
	}
	if c.SAMLEnabled() {
		if err := c.SAML.Validate(); err != nil {
			return fmt.Errorf("invalid SAML configuration: %w", err)
		}
	}
	if !c.OIDCEnabled() && !c.SAMLEnabled() {
		return fmt.Errorf("at least one sign-on provider (OIDC or SAML) must be configured")
	}

	if c.MediaEnabled() {
		if c.Media.Endpoint == "" && c.Media.Region == "" {
			return fmt.Errorf("S3 endpoint or region is required when media storage is configured")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseGroupMappings parses "group=role,group=role"; malformed entries
// are dropped
func parseGroupMappings(raw string) []auth.GroupMapping {
	var mappings []auth.GroupMapping
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		mappings = append(mappings, auth.GroupMapping{
			Group: strings.TrimSpace(parts[0]),
			Role:  strings.TrimSpace(parts[1]),
		})
	}
	return mappings
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
