// Package config loads, normalizes, and validates the TOML configuration
// shared by the daemon and the CLI.
//
// Secrets (Telegram token, generator API key) may also be supplied through
// the environment or an optional .env file; environment values win over the
// config file so deployments can keep credentials out of it.
package config
