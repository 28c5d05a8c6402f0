package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ArticleStock/internal/config"
	"ArticleStock/internal/infrastructure/gitvault"
	"ArticleStock/internal/infrastructure/llm"
	"ArticleStock/internal/infrastructure/ogp"
	"ArticleStock/internal/infrastructure/storage"
	"ArticleStock/internal/infrastructure/telegram"
	"ArticleStock/internal/logging"
	"ArticleStock/internal/usecase"
)

// Application wires configs to adapters and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	store    *storage.SQLiteStore
	bot      *telegram.Client
	pipeline *usecase.Pipeline
	logger   *slog.Logger
}

// New builds a runnable application instance from configuration.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Vault.StateDBPath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	vault, err := gitvault.New(gitvault.Options{
		Path:        cfg.Vault.Path,
		RemoteURL:   cfg.Vault.RemoteURL,
		PushToken:   cfg.Vault.PushToken,
		AuthorName:  cfg.Vault.AuthorName,
		AuthorEmail: cfg.Vault.AuthorEmail,
		Retries:     cfg.Pipeline.PushRetries,
		Backoff:     time.Duration(cfg.Pipeline.PushBackoffSeconds) * time.Second,
	}, store, baseLogger.With("component", "vault"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open vault: %w", err)
	}

	fetcher := ogp.NewFetcher(nil,
		time.Duration(cfg.Pipeline.FetchTimeoutSeconds)*time.Second,
		cfg.Pipeline.FetchMaxBytes,
		baseLogger.With("component", "ogp"))

	enricher := llm.NewGeminiClient(cfg.Gemini, baseLogger.With("component", "gemini"))

	bot := telegram.NewClient(cfg.Telegram, baseLogger.With("component", "telegram"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Fetcher:     fetcher,
		Enricher:    enricher,
		Vault:       vault,
		Store:       store,
		Notifier:    bot,
		Concurrency: cfg.Pipeline.MaxConcurrent,
		Logger:      baseLogger.With("component", "pipeline"),
	})

	return &Application{
		cfg:      cfg,
		store:    store,
		bot:      bot,
		pipeline: pipeline,
		logger:   baseLogger,
	}, nil
}

// Run listens for chat events until the context is cancelled, then drains
// in-flight messages.
func (a *Application) Run(ctx context.Context) error {
	a.logger.Info("listening for messages", "chat_id", a.cfg.Telegram.ChatID)

	err := a.bot.Listen(ctx, a.pipeline)

	a.pipeline.Wait()
	if closeErr := a.store.Close(); closeErr != nil {
		a.logger.Warn("failed to close state store", "error", closeErr)
	}

	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
