package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeGitHub(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	stateDir, err := expandPath(valueOrDefault(c.Paths.StateDir, defaultStateDir))
	if err != nil {
		return fmt.Errorf("state_dir: %w", err)
	}
	c.Paths.StateDir = stateDir

	logDir, err := expandPath(valueOrDefault(c.Paths.LogDir, defaultLogDir))
	if err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}
	c.Paths.LogDir = logDir
	return nil
}

func (c *Config) normalizeGitHub() error {
	gh := &c.GitHub
	gh.ClientID = strings.TrimSpace(gh.ClientID)
	if gh.ClientID == "" {
		gh.ClientID = strings.TrimSpace(os.Getenv("CAPSTAN_GITHUB_CLIENT_ID"))
	}
	gh.AllowedLogin = strings.TrimSpace(gh.AllowedLogin)
	gh.Owner = strings.TrimSpace(gh.Owner)
	gh.Repo = strings.TrimSpace(gh.Repo)
	gh.Branch = valueOrDefault(gh.Branch, defaultBranch)
	gh.StatusPath = strings.Trim(valueOrDefault(gh.StatusPath, defaultStatusPath), "/")
	gh.APIBaseURL = strings.TrimRight(valueOrDefault(gh.APIBaseURL, defaultAPIBaseURL), "/")
	gh.OAuthBaseURL = strings.TrimRight(valueOrDefault(gh.OAuthBaseURL, defaultOAuthBaseURL), "/")
	gh.Scope = valueOrDefault(gh.Scope, defaultScope)
	if gh.RequestTimeout <= 0 {
		gh.RequestTimeout = defaultRequestTimeout
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(valueOrDefault(c.Logging.Level, defaultLogLevel))
	c.Logging.Format = strings.ToLower(valueOrDefault(c.Logging.Format, defaultLogFormat))
}

func valueOrDefault(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
