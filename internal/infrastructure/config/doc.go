// Package config handles loading and validating Tether process configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with TETHER_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Broker credentials default to the shared Tether account. Deployments
// that expose the broker should override them through the environment.
//
// Usage:
//
//	cfg, err := config.Load("tether.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
