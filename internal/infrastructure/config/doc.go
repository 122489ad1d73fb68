// Package config handles loading and validating the hOn bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The account password should be set via HON_PASSWORD, not the file
//   - The config file should have restricted permissions (0600)
//
// Durations (session_timeout, context_ttl, interval, ...) are written as
// Go duration strings: "6h", "10s", "5m".
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Account.Email)
package config
