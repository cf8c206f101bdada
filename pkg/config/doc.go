// Package config loads application configuration from CAMPUSCMS_-prefixed
// environment variables and validates it before the server starts.
package config
