package config

const (
	defaultStateDir       = "~/.local/share/capstan"
	defaultLogDir         = "~/.local/share/capstan/logs"
	defaultBranch         = "main"
	defaultStatusPath     = "db/index.json"
	defaultAPIBaseURL     = "https://api.github.com"
	defaultOAuthBaseURL   = "https://github.com"
	defaultRequestTimeout = 15
	defaultScope          = "repo"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		GitHub: GitHub{
			Branch:         defaultBranch,
			StatusPath:     defaultStatusPath,
			APIBaseURL:     defaultAPIBaseURL,
			OAuthBaseURL:   defaultOAuthBaseURL,
			RequestTimeout: defaultRequestTimeout,
			Scope:          defaultScope,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
