package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"capstan/internal/auth"
	"capstan/internal/config"
	"capstan/internal/dispatch"
	"capstan/internal/github"
	"capstan/internal/journal"
	"capstan/internal/logging"
	"capstan/internal/session"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// newAuthenticator wires the device-flow authenticator against the
// file-backed session store.
func (c *commandContext) newAuthenticator() (*auth.Authenticator, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	store := session.NewFileStore(cfg.SessionStatePath())
	client := github.NewClient(cfg)
	verifier := auth.NewVerifier(client, cfg.GitHub.AllowedLogin)
	return auth.NewAuthenticator(client, verifier, store, logger), nil
}

// signedIn resumes stored authentication state and fails unless the session
// is signed in.
func (c *commandContext) signedIn(ctx context.Context) (*auth.Authenticator, error) {
	a, err := c.newAuthenticator()
	if err != nil {
		return nil, err
	}
	if err := a.Resume(ctx); err != nil {
		return nil, err
	}
	if !a.Session().SignedIn() {
		return nil, auth.ErrAuthenticationRequired
	}
	return a, nil
}

// newOrchestrator builds a dispatch orchestrator for the signed-in session.
// The dispatch client carries the per-install identifier, and trigger
// attempts are recorded in the local journal. The returned closer owns the
// journal handle.
func (c *commandContext) newOrchestrator(a *auth.Authenticator) (*dispatch.Orchestrator, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, nil, err
	}

	client := github.NewClient(cfg, github.WithClientIdentifier(a.ClientID()))

	closer := func() {}
	opts := []dispatch.Option{}
	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		// A broken journal must not block dispatching.
		logger.Warn("open dispatch journal", logging.Error(err))
	} else {
		opts = append(opts, dispatch.WithRecorder(store))
		closer = func() { _ = store.Close() }
	}

	return dispatch.New(client, a, logger, opts...), closer, nil
}

func (c *commandContext) openJournal() (*journal.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return journal.Open(cfg.JournalPath())
}
