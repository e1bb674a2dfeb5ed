// Package config handles loading and validating Chimp relay configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Overriding with CHIMP_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Command-line flags are applied on top of the loaded Config by cmd/chimp,
// so callers run Validate after the flags have been merged.
//
// Security Considerations:
//   - The device private key is referenced by path, never embedded
//   - InfluxDB tokens should be set via CHIMP_INFLUXDB_TOKEN
//
// Usage:
//
//	cfg, err := config.Load("configs/chimp.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.MQTT.Endpoint = endpointFlag
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
