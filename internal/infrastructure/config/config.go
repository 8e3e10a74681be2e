package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Curtain Lights.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Security    SecurityConfig    `yaml:"security"`
	Govee       GoveeConfig       `yaml:"govee"`
	Celebration CelebrationConfig `yaml:"celebration"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Tenants     []TenantConfig    `yaml:"tenants"`
}

// ServiceConfig identifies this deployment.
type ServiceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
// Tokens are issued by the identity service; this service only verifies them.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// GoveeConfig contains the device vendor API settings.
type GoveeConfig struct {
	BaseURL        string               `yaml:"base_url"`
	APIKey         string               `yaml:"api_key"`
	RequestTimeout time.Duration        `yaml:"request_timeout"`
	RateLimit      GoveeRateLimitConfig `yaml:"rate_limit"`
	Retry          GoveeRetryConfig     `yaml:"retry"`
}

// GoveeRateLimitConfig is the vendor-imposed command ceiling.
// The ceiling is shared by every caller of the API key.
type GoveeRateLimitConfig struct {
	Ceiling int           `yaml:"ceiling"`
	Window  time.Duration `yaml:"window"`
}

// GoveeRetryConfig lists the delays before each retry of a transient failure.
// The number of retries is len(Backoff).
type GoveeRetryConfig struct {
	Backoff []time.Duration `yaml:"backoff"`
}

// CelebrationConfig contains celebration engine settings.
type CelebrationConfig struct {
	// RestoreTimeout bounds the restore phase after playback ends.
	RestoreTimeout time.Duration `yaml:"restore_timeout"`
}

// SchedulerConfig contains trigger scheduler settings.
type SchedulerConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Interval           time.Duration `yaml:"interval"`
	CalendarLookahead  time.Duration `yaml:"calendar_lookahead"`
	CalendarBaseURL    string        `yaml:"calendar_base_url"`
	YouTubeBaseURL     string        `yaml:"youtube_base_url"`
	MaxConcurrentPolls int           `yaml:"max_concurrent_polls"`
	PushDedupeSize     int           `yaml:"push_dedupe_size"`
}

// TenantConfig describes one tenant and its single target device.
type TenantConfig struct {
	ID       string               `yaml:"id"`
	Name     string               `yaml:"name"`
	Device   TenantDeviceConfig   `yaml:"device"`
	Calendar TenantCalendarConfig `yaml:"calendar"`
	YouTube  TenantYouTubeConfig  `yaml:"youtube"`
}

// TenantDeviceConfig identifies the vendor device a tenant celebrates on.
type TenantDeviceConfig struct {
	ID    string `yaml:"id"`
	Model string `yaml:"model"`
}

// TenantCalendarConfig enables the calendar source for a tenant.
// AccessToken is refreshed by the OAuth layer and written here (or via env).
type TenantCalendarConfig struct {
	Enabled     bool    `yaml:"enabled"`
	CalendarID  string  `yaml:"calendar_id"`
	AccessToken string  `yaml:"access_token"`
	Amount      float64 `yaml:"amount"`
}

// TenantYouTubeConfig enables the subscriber source for a tenant.
type TenantYouTubeConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ChannelID   string `yaml:"channel_id"`
	AccessToken string `yaml:"access_token"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CURTAIN_SECTION_KEY
// For example: CURTAIN_DATABASE_PATH, CURTAIN_GOVEE_API_KEY
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:       "curtainlights",
			Name:     "Curtain Lights",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/curtainlights.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "curtainlights",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "curtainlights",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
		Govee: GoveeConfig{
			BaseURL:        "https://developer-api.govee.com",
			RequestTimeout: 5 * time.Second,
			RateLimit: GoveeRateLimitConfig{
				Ceiling: 10,
				Window:  time.Minute,
			},
			Retry: GoveeRetryConfig{
				Backoff: []time.Duration{250 * time.Millisecond, 750 * time.Millisecond},
			},
		},
		Celebration: CelebrationConfig{
			RestoreTimeout: 90 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:            true,
			Interval:           time.Minute,
			CalendarLookahead:  10 * time.Minute,
			CalendarBaseURL:    "https://www.googleapis.com/calendar/v3",
			YouTubeBaseURL:     "https://www.googleapis.com/youtube/v3",
			MaxConcurrentPolls: 4,
			PushDedupeSize:     10000,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CURTAIN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CURTAIN_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("CURTAIN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CURTAIN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CURTAIN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("CURTAIN_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("CURTAIN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("CURTAIN_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	if v := os.Getenv("CURTAIN_GOVEE_API_KEY"); v != "" {
		cfg.Govee.APIKey = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set CURTAIN_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if c.Govee.APIKey == "" {
		errs = append(errs, "govee.api_key is required (set CURTAIN_GOVEE_API_KEY environment variable)")
	}
	if c.Govee.RateLimit.Ceiling < 1 {
		errs = append(errs, "govee.rate_limit.ceiling must be at least 1")
	}
	if c.Govee.RateLimit.Window <= 0 {
		errs = append(errs, "govee.rate_limit.window must be positive")
	}
	if c.Govee.RequestTimeout <= 0 {
		errs = append(errs, "govee.request_timeout must be positive")
	}

	// A restore that finds the bucket drained must be able to wait for
	// tokens to come back.
	if c.Celebration.RestoreTimeout <= 0 {
		errs = append(errs, "celebration.restore_timeout must be positive")
	} else if c.Celebration.RestoreTimeout < c.Govee.RateLimit.Window {
		errs = append(errs, "celebration.restore_timeout must be at least govee.rate_limit.window")
	}

	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		errs = append(errs, "scheduler.interval must be positive")
	}

	errs = append(errs, c.validateTenants()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateTenants checks tenant entries for duplicates and missing device targets.
func (c *Config) validateTenants() []string {
	var errs []string
	seen := make(map[string]bool, len(c.Tenants))
	for i, t := range c.Tenants {
		if t.ID == "" {
			errs = append(errs, fmt.Sprintf("tenants[%d].id is required", i))
			continue
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Sprintf("tenants[%d].id %q is duplicated", i, t.ID))
		}
		seen[t.ID] = true
		if t.Device.ID == "" || t.Device.Model == "" {
			errs = append(errs, fmt.Sprintf("tenants[%d].device requires id and model", i))
		}
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
