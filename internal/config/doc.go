// Package config loads and validates application settings from defaults,
// an optional config file and PM_-prefixed environment variables.
package config
