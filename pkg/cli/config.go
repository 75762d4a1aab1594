package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/weeknote/pkg/model"
	"github.com/m-mizutani/weeknote/pkg/service/backend"
	"github.com/m-mizutani/weeknote/pkg/utils/logging"
	"github.com/m-mizutani/weeknote/pkg/workflow"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Store
	store        string
	apiKey       string
	projectID    string
	databaseID   string
	authEndpoint string
	sessionCache string

	// Gemini
	geminiAPIKey string
	geminiModel  string

	// Logging
	logLevel  string
	logFormat string
	envFile   string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Store backend (firestore, memory)",
			Value:       backend.StoreFirestore,
			Sources:     cli.EnvVars(backend.EnvStore),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "firebase-api-key",
			Usage:       "Firebase web API key",
			Sources:     cli.EnvVars(backend.EnvFirebaseAPIKey),
			Destination: &cfg.apiKey,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Firebase project ID",
			Sources:     cli.EnvVars(backend.EnvFirebaseProjectID),
			Destination: &cfg.projectID,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars(backend.EnvFirestoreDatabaseID),
			Destination: &cfg.databaseID,
		},
		&cli.StringFlag{
			Name:        "auth-endpoint",
			Usage:       "Identity Toolkit endpoint, e.g. the auth emulator",
			Sources:     cli.EnvVars(backend.EnvAuthEndpoint),
			Destination: &cfg.authEndpoint,
		},
		&cli.StringFlag{
			Name:        "session-cache",
			Usage:       "Path of the anonymous session cache. Empty disables the cache",
			Value:       backend.DefaultSessionPath(),
			Sources:     cli.EnvVars("WEEKNOTE_SESSION_CACHE"),
			Destination: &cfg.sessionCache,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("WEEKNOTE_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("WEEKNOTE_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "env-file",
			Usage:       "Dotenv file loaded before reading the environment",
			Value:       defaultEnvFile,
			Destination: &cfg.envFile,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars(backend.EnvGeminiAPIKey),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars(backend.EnvGeminiModel),
			Destination: &cfg.geminiModel,
		},
	}
}

func (cfg *config) backendConfig() backend.Config {
	return backend.Config{
		Store:          cfg.store,
		FirebaseAPIKey: cfg.apiKey,
		ProjectID:      cfg.projectID,
		DatabaseID:     cfg.databaseID,
		AuthEndpoint:   cfg.authEndpoint,
		GeminiAPIKey:   cfg.geminiAPIKey,
		GeminiModel:    cfg.geminiModel,
		SessionCache:   cfg.sessionCache,
	}
}

// open configures logging and initializes the backend. A store failure is
// logged and left to the operations that need the store.
func (cfg *config) open(ctx context.Context) (context.Context, *backend.Backend) {
	logger := logging.New(cfg.logLevel, os.Stderr, logging.WithFormat(logging.Format(cfg.logFormat)))
	logging.SetDefault(logger)
	ctx = logging.With(ctx, logger)

	b := backend.New(cfg.backendConfig())
	if err := b.Init(ctx); err != nil {
		logging.From(ctx).Warn("store is not available", "error", err)
	}
	return ctx, b
}

// selectTeam returns a controller with the team active and its first
// snapshots loaded. weekKey is applied when not empty.
func selectTeam(ctx context.Context, b *backend.Backend, teamID model.TeamID, weekKey string, opts ...workflow.Option) (*workflow.Controller, error) {
	c := b.Controller(opts...)
	if _, err := c.SelectTeam(ctx, teamID); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.Ready(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if weekKey != "" {
		c.SetWeekKey(weekKey)
	}
	return c, nil
}
