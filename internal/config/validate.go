package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGitHub(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGitHub() error {
	if c.GitHub.ClientID == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/capstan/config.toml"
		}
		return fmt.Errorf("github.client_id is required. Set CAPSTAN_GITHUB_CLIENT_ID env var or edit %s (create with 'capstan config init')", defaultPath)
	}
	if c.GitHub.AllowedLogin == "" {
		return errors.New("github.allowed_login must name the single account permitted to sign in")
	}
	if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
		return errors.New("github.owner and github.repo must identify the pipeline repository")
	}
	if c.GitHub.StatusPath == "" {
		return errors.New("github.status_path must point at the pipeline status document")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
