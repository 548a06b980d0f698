package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/tutorllm/tutorllm/internal/api"
	"github.com/tutorllm/tutorllm/internal/chat"
	"github.com/tutorllm/tutorllm/internal/config"
	"github.com/tutorllm/tutorllm/internal/identity"
	"github.com/tutorllm/tutorllm/internal/log"
	"github.com/tutorllm/tutorllm/internal/observability"
)

// app bundles the assembled dependencies shared by all commands.
type app struct {
	cfg     *config.Config
	logger  log.Logger
	client  *api.Client
	ident   *identity.FileStore
	profile identity.Profile // zero value when not signed in

	shutdownTracing func(context.Context) error
}

// newApp loads configuration and assembles the client stack. Every command
// goes through here so flags, env, and config file behave identically.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	shutdown := func(context.Context) error { return nil }
	if cfg.TracingEnabled {
		shutdown, err = observability.Setup(ctx, observability.Config{
			Endpoint: cfg.TracingEndpoint,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
	}

	client, err := api.New(api.Config{
		BaseURL: cfg.ServerURL,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API client: %w", err)
	}

	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	store := identity.NewFileStore(dir)

	a := &app{
		cfg:             cfg,
		logger:          logger,
		client:          client,
		ident:           store,
		shutdownTracing: shutdown,
	}

	profile, err := store.Profile()
	switch {
	case err == nil:
		a.profile = profile
	case errors.Is(err, identity.ErrNotSignedIn):
		// Anonymous use is fully supported; chats just aren't persisted.
	default:
		logger.Warn("reading identity cache failed, continuing anonymous", "error", err)
	}

	return a, nil
}

// engine builds the chat session engine on top of the app's client stack.
func (a *app) engine() (*chat.Engine, error) {
	return chat.New(chat.Config{
		Backend:        a.client,
		Identity:       a.ident,
		Logger:         a.logger,
		StreamTimeout:  a.cfg.StreamTimeout,
		UploadTimeout:  a.cfg.UploadTimeout,
		HistoryLimiter: rate.NewLimiter(rate.Limit(a.cfg.HistoryRefreshPerSec), 3),
	})
}

// close flushes tracing. Safe to call with a short deadline on exit.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.Warn("flushing traces failed", "error", err)
	}
}

// email returns the signed-in email, or "" when anonymous.
func (a *app) email() string {
	return a.profile.Email
}
