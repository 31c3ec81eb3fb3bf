package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic media bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Media     MediaConfig     `yaml:"media"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetentionDays bounds the local event history. 0 keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
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

// JWTConfig contains JWT settings. When Secret is empty the API is served
// without authentication (trusted LAN deployments).
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// MediaConfig contains the device session engine settings.
//
// All intervals are whole seconds except RoundPauseMS.
type MediaConfig struct {
	// PollInterval is the user-tunable default poll interval.
	PollInterval int `yaml:"poll_interval"`

	// FastPollInterval is the floor used right after a user command.
	FastPollInterval int `yaml:"fast_poll_interval"`

	// QuietPeriod is how long after the last command polling stays fast.
	QuietPeriod int `yaml:"quiet_period"`

	// FailureThreshold is the number of consecutive failed cycles before a
	// device is marked offline and handed to recovery.
	FailureThreshold int `yaml:"failure_threshold"`

	RequestTimeout int `yaml:"request_timeout"`
	KeyClearDelay  int `yaml:"key_clear_delay"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
}

// DiscoveryConfig contains SSDP search settings.
type DiscoveryConfig struct {
	ServiceType  string `yaml:"service_type"`
	RoundTrip    int    `yaml:"round_trip"`
	Rounds       int    `yaml:"rounds"`
	RoundPauseMS int    `yaml:"round_pause_ms"`
	NonStrict    bool   `yaml:"non_strict"`
	LocalAddr    string `yaml:"local_addr"`
	// Interval between routine background scans. 0 disables them.
	ScanInterval int `yaml:"scan_interval"`
}

// RecoveryConfig contains re-discovery timing for unreachable devices.
type RecoveryConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	ShortDelay   int `yaml:"short_delay"`
	LongDelay    int `yaml:"long_delay"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_MEDIA_POLL_INTERVAL
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
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:                 "./data/mediabridge.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-media",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
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
			JWT: JWTConfig{Issuer: "graylogic-media"},
		},
		Media: MediaConfig{
			PollInterval:     10,
			FastPollInterval: 2,
			QuietPeriod:      30,
			FailureThreshold: 3,
			RequestTimeout:   3,
			KeyClearDelay:    2,
			Discovery: DiscoveryConfig{
				ServiceType:  "roku:ecp",
				RoundTrip:    3,
				Rounds:       3,
				RoundPauseMS: 500,
				ScanInterval: 300,
			},
			Recovery: RecoveryConfig{
				InitialDelay: 15,
				ShortDelay:   30,
				LongDelay:    120,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Malformed integers are ignored.
	overrideInt("GRAYLOGIC_MEDIA_POLL_INTERVAL", &cfg.Media.PollInterval)
	overrideInt("GRAYLOGIC_MEDIA_FAILURE_THRESHOLD", &cfg.Media.FailureThreshold)
	if v := os.Getenv("GRAYLOGIC_MEDIA_SERVICE_TYPE"); v != "" {
		cfg.Media.Discovery.ServiceType = v
	}
	if v := os.Getenv("GRAYLOGIC_MEDIA_LOCAL_ADDR"); v != "" {
		cfg.Media.Discovery.LocalAddr = v
	}
}

func overrideInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetentionDays < 0 {
		errs = append(errs, "database.history_retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// An empty secret disables auth; a short one is always a mistake.
	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	errs = append(errs, c.Media.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (m *MediaConfig) validate() []string {
	var errs []string

	if m.FastPollInterval < 1 {
		errs = append(errs, "media.fast_poll_interval must be at least 1")
	}
	if m.PollInterval < m.FastPollInterval {
		errs = append(errs, "media.poll_interval must not be below media.fast_poll_interval")
	}
	if m.QuietPeriod < 0 {
		errs = append(errs, "media.quiet_period must not be negative")
	}
	if m.FailureThreshold < 1 {
		errs = append(errs, "media.failure_threshold must be at least 1")
	}
	if m.RequestTimeout < 1 || m.RequestTimeout > 10 {
		errs = append(errs, "media.request_timeout must be between 1 and 10")
	}
	if m.KeyClearDelay < 1 {
		errs = append(errs, "media.key_clear_delay must be at least 1")
	}
	if m.Discovery.ServiceType == "" {
		errs = append(errs, "media.discovery.service_type is required")
	}
	if m.Discovery.Rounds < 1 {
		errs = append(errs, "media.discovery.rounds must be at least 1")
	}
	if m.Discovery.RoundTrip < 1 {
		errs = append(errs, "media.discovery.round_trip must be at least 1")
	}
	if m.Recovery.InitialDelay < 1 || m.Recovery.ShortDelay < 1 || m.Recovery.LongDelay < 1 {
		errs = append(errs, "media.recovery delays must be at least 1")
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

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// PollIntervalDuration returns the default poll interval.
func (m MediaConfig) PollIntervalDuration() time.Duration { return seconds(m.PollInterval) }

// FastPollIntervalDuration returns the fast poll floor.
func (m MediaConfig) FastPollIntervalDuration() time.Duration { return seconds(m.FastPollInterval) }

// QuietPeriodDuration returns the quiet period after a user command.
func (m MediaConfig) QuietPeriodDuration() time.Duration { return seconds(m.QuietPeriod) }

// RequestTimeoutDuration returns the per-request device timeout.
func (m MediaConfig) RequestTimeoutDuration() time.Duration { return seconds(m.RequestTimeout) }

// KeyClearDelayDuration returns how long a pressed key stays reported.
func (m MediaConfig) KeyClearDelayDuration() time.Duration { return seconds(m.KeyClearDelay) }

// RoundPause returns the pause between discovery rounds.
func (d DiscoveryConfig) RoundPause() time.Duration {
	return time.Duration(d.RoundPauseMS) * time.Millisecond
}

// RoundTripDuration returns the per-round response window.
func (d DiscoveryConfig) RoundTripDuration() time.Duration { return seconds(d.RoundTrip) }

// ScanIntervalDuration returns the routine scan interval (0 when disabled).
func (d DiscoveryConfig) ScanIntervalDuration() time.Duration { return seconds(d.ScanInterval) }

// InitialDelayDuration returns the wait before the first recovery search.
func (r RecoveryConfig) InitialDelayDuration() time.Duration { return seconds(r.InitialDelay) }

// ShortDelayDuration returns the recovery interval for ordinary devices.
func (r RecoveryConfig) ShortDelayDuration() time.Duration { return seconds(r.ShortDelay) }

// LongDelayDuration returns the recovery interval used while a device that
// is routinely powered down is pending.
func (r RecoveryConfig) LongDelayDuration() time.Duration { return seconds(r.LongDelay) }
