// Package config loads relay and client settings from the environment,
// optionally seeded from a dotenv file.
package config
