// Package config handles loading and validating backlightd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Every optional integration (capture, database, MQTT, InfluxDB, HTTP) is
// disabled by default; a bare install only serves the bus methods.
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	path, explicit := config.ResolvePath(flagValue)
//	load := config.LoadIfExists
//	if explicit {
//	    load = config.Load
//	}
//	cfg, err := load(path)
package config
