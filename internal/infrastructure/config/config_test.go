package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mqtt:
  endpoint: "abc123-ats.iot.eu-west-1.amazonaws.com"
  client_id: "chimp-kitchen"
run:
  topic: "chimp/kitchen"
  message_threshold: 2
actuator:
  line: 27
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Endpoint != "abc123-ats.iot.eu-west-1.amazonaws.com" {
		t.Errorf("MQTT.Endpoint = %q, want %q", cfg.MQTT.Endpoint, "abc123-ats.iot.eu-west-1.amazonaws.com")
	}

	if cfg.Run.Topic != "chimp/kitchen" {
		t.Errorf("Run.Topic = %q, want %q", cfg.Run.Topic, "chimp/kitchen")
	}

	if cfg.Run.MessageThreshold != 2 {
		t.Errorf("Run.MessageThreshold = %d, want 2", cfg.Run.MessageThreshold)
	}

	if cfg.Actuator.Line != 27 {
		t.Errorf("Actuator.Line = %d, want 27", cfg.Actuator.Line)
	}

	// Values not in the file keep their defaults
	if cfg.MQTT.Port != 8883 {
		t.Errorf("MQTT.Port = %d, want 8883", cfg.MQTT.Port)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}

	if cfg.Run.Topic != "chimp/topic" {
		t.Errorf("Run.Topic = %q, want %q", cfg.Run.Topic, "chimp/topic")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.MQTT.Endpoint = "broker.example.com"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing endpoint",
			mutate:  func(c *Config) { c.MQTT.Endpoint = "" },
			wantErr: "mqtt.endpoint",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.MQTT.Port = 0 },
			wantErr: "mqtt.port",
		},
		{
			name:    "missing key file",
			mutate:  func(c *Config) { c.MQTT.KeyFile = "" },
			wantErr: "mqtt.cert_file",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.Run.QoS = 3 },
			wantErr: "run.qos",
		},
		{
			name:    "zero threshold with count termination",
			mutate:  func(c *Config) { c.Run.MessageThreshold = 0 },
			wantErr: "run.message_threshold",
		},
		{
			name: "zero threshold with unbounded termination",
			mutate: func(c *Config) {
				c.Run.Termination = TerminationUnbounded
				c.Run.MessageThreshold = 0
			},
		},
		{
			name:    "unknown termination",
			mutate:  func(c *Config) { c.Run.Termination = "forever" },
			wantErr: "run.termination",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Run.StopTimeout = -1 },
			wantErr: "timeouts",
		},
		{
			name:    "speech without role alias",
			mutate:  func(c *Config) { c.Speech.Enabled = true },
			wantErr: "credentials.role_alias",
		},
		{
			name: "speech with credentials",
			mutate: func(c *Config) {
				c.Speech.Enabled = true
				c.Credentials.Endpoint = "c.credentials.iot.eu-west-1.amazonaws.com"
				c.Credentials.RoleAlias = "chimp-polly"
			},
		},
		{
			name:    "influxdb without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name: "history without path",
			mutate: func(c *Config) {
				c.History.Enabled = true
				c.History.Path = ""
			},
			wantErr: "history.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Run: RunConfig{
			ConnectTimeout:   10,
			SubscribeTimeout: 20,
			MessageTimeout:   30,
			StopTimeout:      40,
		},
	}

	if got := cfg.GetConnectTimeout().Seconds(); got != 10 {
		t.Errorf("GetConnectTimeout() = %v, want 10", got)
	}

	if got := cfg.GetSubscribeTimeout().Seconds(); got != 20 {
		t.Errorf("GetSubscribeTimeout() = %v, want 20", got)
	}

	if got := cfg.GetMessageTimeout().Seconds(); got != 30 {
		t.Errorf("GetMessageTimeout() = %v, want 30", got)
	}

	if got := cfg.GetStopTimeout().Seconds(); got != 40 {
		t.Errorf("GetStopTimeout() = %v, want 40", got)
	}
}

func TestMQTTConfig_BrokerURL(t *testing.T) {
	cfg := MQTTConfig{Endpoint: "broker.example.com", Port: 8883}

	if got := cfg.BrokerURL(); got != "ssl://broker.example.com:8883" {
		t.Errorf("BrokerURL() = %q, want %q", got, "ssl://broker.example.com:8883")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("CHIMP_MQTT_ENDPOINT", "env.example.com")
	t.Setenv("CHIMP_MQTT_CLIENT_ID", "env-client")
	t.Setenv("CHIMP_RUN_TOPIC", "env/topic")
	t.Setenv("CHIMP_RUN_MESSAGE_THRESHOLD", "9")
	t.Setenv("CHIMP_CREDENTIALS_ROLE_ALIAS", "env-alias")
	t.Setenv("CHIMP_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("CHIMP_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Endpoint != "env.example.com" {
		t.Errorf("MQTT.Endpoint = %q, want %q", cfg.MQTT.Endpoint, "env.example.com")
	}

	if cfg.MQTT.ClientID != "env-client" {
		t.Errorf("MQTT.ClientID = %q, want %q", cfg.MQTT.ClientID, "env-client")
	}

	if cfg.Run.Topic != "env/topic" {
		t.Errorf("Run.Topic = %q, want %q", cfg.Run.Topic, "env/topic")
	}

	if cfg.Run.MessageThreshold != 9 {
		t.Errorf("Run.MessageThreshold = %d, want 9", cfg.Run.MessageThreshold)
	}

	if cfg.Credentials.RoleAlias != "env-alias" {
		t.Errorf("Credentials.RoleAlias = %q, want %q", cfg.Credentials.RoleAlias, "env-alias")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.MQTT.Port != 8883 {
		t.Errorf("Default MQTT.Port = %d, want 8883", cfg.MQTT.Port)
	}

	if cfg.Run.Topic != "chimp/topic" {
		t.Errorf("Default Run.Topic = %q, want %q", cfg.Run.Topic, "chimp/topic")
	}

	if cfg.Run.Termination != TerminationCount {
		t.Errorf("Default Run.Termination = %q, want %q", cfg.Run.Termination, TerminationCount)
	}

	if cfg.Actuator.Line != 17 {
		t.Errorf("Default Actuator.Line = %d, want 17", cfg.Actuator.Line)
	}

	// Endpoint has no default; Validate must reject the bare defaults
	if err := cfg.Validate(); err == nil {
		t.Error("Default().Validate() = nil, want endpoint error")
	}
}
