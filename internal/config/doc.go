// Package config provides centralized configuration management for the
// remittance runtime, combining a JSON configuration file with environment
// variables for secrets such as API keys and signing keys.
package config
