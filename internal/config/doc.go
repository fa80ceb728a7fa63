// Package config handles loading, parsing, and validation of application
// configuration from environment variables and optional config files.
// All settings are grouped into logical structs and validated before the
// workers start.
package config
