// Package config handles loading and validating the media bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and engine timing bounds
//   - Default value handling
//
// The media section carries the session engine tuning. Only poll_interval is
// expected to be changed by installers; the rest have working defaults.
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
//     set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/mediabridge.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Media.PollInterval)
package config
