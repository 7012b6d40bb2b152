// Package config loads, normalizes, and validates the TOML configuration
// shared by the daemon, the CLI, and worker processes.
package config
