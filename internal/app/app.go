// Package app wires the pieces both binaries share.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"ai-profile-studio/internal/config"
	"ai-profile-studio/internal/credential"
	"ai-profile-studio/internal/gemini"
	"ai-profile-studio/internal/generation"
	"ai-profile-studio/internal/httpclient"
	"ai-profile-studio/internal/studio"
)

func NewLogger(cfg config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// OpenCredentials opens the credential file and seeds it from
// GEMINI_API_KEY when it is still empty.
func OpenCredentials(cfg config.Config, logger *slog.Logger) (*credential.FileStore, error) {
	path := cfg.CredentialFile
	if path == "" {
		p, err := credential.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	store, err := credential.NewFileStore(path)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	seeded, err := credential.Seed(store, cfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("seed credential: %w", err)
	}
	if seeded {
		logger.Info("credential seeded from environment", "path", store.Path())
	}
	return store, nil
}

// NewStudio builds a studio backed by the Gemini API.
func NewStudio(cfg config.Config, store credential.Store, logger *slog.Logger) (*studio.Studio, error) {
	var httpLogger *slog.Logger
	if cfg.Debug {
		httpLogger = logger.With("component", "http")
	}
	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
		Logger:     httpLogger,
	})

	gen := generation.New(generation.Options{
		NewProvider: gemini.Factory(gemini.Options{
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
			ImageModel: cfg.GeminiImageModel,
			EditModel:  cfg.GeminiEditModel,
			HTTPClient: httpClient,
			Logger:     logger.With("component", "gemini"),
		}),
		Logger: logger.With("component", "generation"),
	})

	return studio.New(studio.Options{
		Credentials: store,
		Generator:   gen,
		Logger:      logger.With("component", "studio"),
	})
}
