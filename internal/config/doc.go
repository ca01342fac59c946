// Package config loads, normalizes, and validates Capstan configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CAPSTAN_GITHUB_CLIENT_ID. The Config type centralizes every knob the CLI
// needs: the OAuth app identity, the allowlisted operator login, the target
// repository coordinates, and local state directories.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical endpoint URLs, and clear validation errors.
package config
