// Package config handles loading and validating hapt configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The Home Assistant token and MQTT/InfluxDB credentials should be set via
//     environment variables (HAPT_HOMEASSISTANT_TOKEN etc.)
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("/etc/hapt/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Hostapd.CtrlDir)
package config
