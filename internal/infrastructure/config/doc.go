// Package config handles loading and validating lanwake configuration.
//
// Loading order:
//  1. Built-in defaults
//  2. YAML file values
//  3. Environment variables (LANWAKE_SECTION_KEY)
//
// Validate reports every problem at once rather than stopping at the first.
//
// Security Considerations:
//   - Secrets (MQTT password, InfluxDB token, JWT secret) should come from
//     environment variables
//   - When security.jwt.secret is empty the HTTP API is unauthenticated;
//     bind api.host to a trusted interface in that case
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Monitor.Interval)
package config
