package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Termination policies for the message-wait phase.
const (
	// TerminationCount ends the wait once run.message_threshold messages arrived.
	TerminationCount = "count"

	// TerminationUnbounded waits until the message timeout or a shutdown signal.
	TerminationUnbounded = "unbounded"
)

// Config is the root configuration structure for the Chimp relay.
// Values come from defaults, an optional YAML file, CHIMP_* environment
// variables and finally command-line flags (applied by cmd/chimp).
type Config struct {
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Run         RunConfig         `yaml:"run"`
	Actuator    ActuatorConfig    `yaml:"actuator"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Speech      SpeechConfig      `yaml:"speech"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	History     HistoryConfig     `yaml:"history"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// MQTTConfig contains broker connection settings.
type MQTTConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Port      int    `yaml:"port"`
	ClientID  string `yaml:"client_id"`
	CertFile  string `yaml:"cert_file"`
	KeyFile   string `yaml:"key_file"`
	CAFile    string `yaml:"ca_file"`
	KeepAlive int    `yaml:"keep_alive"`

	// QuiesceMS is how long Disconnect waits for in-flight work (milliseconds).
	QuiesceMS uint `yaml:"quiesce_ms"`
}

// RunConfig controls one relay run: what to subscribe to, when to stop
// waiting for messages, and how long each blocking step may take.
type RunConfig struct {
	Topic            string `yaml:"topic"`
	QoS              int    `yaml:"qos"`
	Termination      string `yaml:"termination"`
	MessageThreshold int64  `yaml:"message_threshold"`

	// Timeouts in seconds.
	ConnectTimeout   int `yaml:"connect_timeout"`
	SubscribeTimeout int `yaml:"subscribe_timeout"`
	MessageTimeout   int `yaml:"message_timeout"`
	StopTimeout      int `yaml:"stop_timeout"`
}

// ActuatorConfig contains indicator light settings.
type ActuatorConfig struct {
	Enabled bool        `yaml:"enabled"`
	Chip    string      `yaml:"chip"`
	Line    int         `yaml:"line"`
	Blink   BlinkConfig `yaml:"blink"`
}

// BlinkConfig is the pattern played for every received message.
type BlinkConfig struct {
	OnMS   int `yaml:"on_ms"`
	OffMS  int `yaml:"off_ms"`
	Repeat int `yaml:"repeat"`
}

// CredentialsConfig contains settings for exchanging the device certificate
// for temporary cloud credentials through a role alias.
type CredentialsConfig struct {
	Endpoint  string `yaml:"endpoint"`
	RoleAlias string `yaml:"role_alias"`
	ThingName string `yaml:"thing_name"`

	// Timeout for a single HTTPS attempt, in seconds.
	Timeout int `yaml:"timeout"`
}

// SpeechConfig contains text-to-speech settings.
type SpeechConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	VoiceID   string `yaml:"voice_id"`
	Format    string `yaml:"format"`
	Text      string `yaml:"text"`
	Announce  bool   `yaml:"announce"`
	QueueSize int    `yaml:"queue_size"`
}

// InfluxDBConfig contains InfluxDB connection settings for delivery telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// HistoryConfig contains SQLite settings for the run and delivery history.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	QueueSize   int    `yaml:"queue_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, when path is not empty
//  3. Environment variables (override file values)
//
// Validation is left to the caller because command-line flags are applied
// after Load.
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded configuration
//   - error: If the file cannot be read or parsed
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Port:      8883,
			ClientID:  "chimp",
			CertFile:  "../../../certs/iot-certificate.pem.crt",
			KeyFile:   "../../../certs/iot-private.pem.key",
			KeepAlive: 30,
			QuiesceMS: 250,
		},
		Run: RunConfig{
			Topic:            "chimp/topic",
			QoS:              1,
			Termination:      TerminationCount,
			MessageThreshold: 4,
			ConnectTimeout:   100,
			SubscribeTimeout: 100,
			MessageTimeout:   100,
			StopTimeout:      100,
		},
		Actuator: ActuatorConfig{
			Enabled: true,
			Chip:    "gpiochip0",
			Line:    17,
			Blink: BlinkConfig{
				OnMS:   100,
				OffMS:  100,
				Repeat: 10,
			},
		},
		Credentials: CredentialsConfig{
			Timeout: 10,
		},
		Speech: SpeechConfig{
			Region:    "eu-west-1",
			VoiceID:   "Joanna",
			Format:    "mp3",
			QueueSize: 8,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		History: HistoryConfig{
			Path:        "./data/chimp.db",
			WALMode:     true,
			BusyTimeout: 5,
			QueueSize:   64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CHIMP_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("CHIMP_MQTT_ENDPOINT"); v != "" {
		cfg.MQTT.Endpoint = v
	}
	if v := os.Getenv("CHIMP_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.ClientID = v
	}
	if v := os.Getenv("CHIMP_MQTT_CERT_FILE"); v != "" {
		cfg.MQTT.CertFile = v
	}
	if v := os.Getenv("CHIMP_MQTT_KEY_FILE"); v != "" {
		cfg.MQTT.KeyFile = v
	}
	if v := os.Getenv("CHIMP_MQTT_CA_FILE"); v != "" {
		cfg.MQTT.CAFile = v
	}

	// Run
	if v := os.Getenv("CHIMP_RUN_TOPIC"); v != "" {
		cfg.Run.Topic = v
	}
	if v := os.Getenv("CHIMP_RUN_MESSAGE_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Run.MessageThreshold = n
		}
	}

	// Credentials
	if v := os.Getenv("CHIMP_CREDENTIALS_ENDPOINT"); v != "" {
		cfg.Credentials.Endpoint = v
	}
	if v := os.Getenv("CHIMP_CREDENTIALS_ROLE_ALIAS"); v != "" {
		cfg.Credentials.RoleAlias = v
	}

	// InfluxDB
	if v := os.Getenv("CHIMP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("CHIMP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Endpoint == "" {
		errs = append(errs, "mqtt.endpoint is required (use --endpoint or CHIMP_MQTT_ENDPOINT)")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 1 and 65535")
	}
	if c.MQTT.CertFile == "" || c.MQTT.KeyFile == "" {
		errs = append(errs, "mqtt.cert_file and mqtt.key_file are required for mutual TLS")
	}

	// Run validation
	if c.Run.Topic == "" {
		errs = append(errs, "run.topic is required")
	}
	if c.Run.QoS < 0 || c.Run.QoS > 2 {
		errs = append(errs, "run.qos must be 0, 1, or 2")
	}
	switch c.Run.Termination {
	case TerminationCount:
		if c.Run.MessageThreshold < 1 {
			errs = append(errs, "run.message_threshold must be at least 1 for count termination")
		}
	case TerminationUnbounded:
	default:
		errs = append(errs, fmt.Sprintf("run.termination must be %q or %q", TerminationCount, TerminationUnbounded))
	}
	if c.Run.ConnectTimeout <= 0 || c.Run.SubscribeTimeout <= 0 ||
		c.Run.MessageTimeout <= 0 || c.Run.StopTimeout <= 0 {
		errs = append(errs, "run timeouts must be positive")
	}

	// Actuator validation
	if c.Actuator.Blink.Repeat < 0 || c.Actuator.Blink.OnMS < 0 || c.Actuator.Blink.OffMS < 0 {
		errs = append(errs, "actuator.blink values cannot be negative")
	}

	// Speech needs credentials from the role alias
	if c.Speech.Enabled {
		if c.Credentials.Endpoint == "" || c.Credentials.RoleAlias == "" {
			errs = append(errs, "speech requires credentials.endpoint and credentials.role_alias")
		}
		if c.Speech.Region == "" {
			errs = append(errs, "speech.region is required")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// History validation
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerURL returns the paho broker URL for the configured endpoint.
func (c MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("ssl://%s:%d", c.Endpoint, c.Port)
}

// GetConnectTimeout returns the connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Run.ConnectTimeout) * time.Second
}

// GetSubscribeTimeout returns the subscribe/unsubscribe timeout as a Duration.
func (c *Config) GetSubscribeTimeout() time.Duration {
	return time.Duration(c.Run.SubscribeTimeout) * time.Second
}

// GetMessageTimeout returns the message-wait timeout as a Duration.
func (c *Config) GetMessageTimeout() time.Duration {
	return time.Duration(c.Run.MessageTimeout) * time.Second
}

// GetStopTimeout returns the stop timeout as a Duration.
func (c *Config) GetStopTimeout() time.Duration {
	return time.Duration(c.Run.StopTimeout) * time.Second
}
