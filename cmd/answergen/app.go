package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"answergen/internal/compile"
	"answergen/internal/config"
	"answergen/internal/db"
	"answergen/internal/extract"
	"answergen/internal/llm"
	"answergen/internal/logging"
	"answergen/internal/ocr"
	"answergen/internal/retry"
	"answergen/internal/services"
)

// app holds the wired services shared by every command.
type app struct {
	cfg       config.Config
	conn      *sql.DB
	pipeline  *services.Pipeline
	history   *services.HistoryService
	documents *services.DocumentService
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	provider, err := llm.New(ctx, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if cfg.APIKey() == "" {
		log.Warn().Str("provider", cfg.Provider).Msg("no API key configured; generation requests will fail")
	}

	extractor := extract.New(ocr.NewService(provider), cfg.ScannedPDFOCR)
	generator := services.NewGenerator(provider, services.GeneratorOptions{
		Policy: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			Multiplier:  cfg.RetryMultiplier,
		},
		RequestsPerMinute: cfg.RequestsPerMinute,
		BatchSize:         cfg.BatchSize,
	})
	compiler := compile.New(compile.Options{UnicodeFont: cfg.UnicodeFont})
	history := services.NewHistoryService(conn)

	return &app{
		cfg:       cfg,
		conn:      conn,
		pipeline:  services.NewPipeline(extractor, generator, compiler, history, cfg.OutputDir),
		history:   history,
		documents: services.NewDocumentService(conn, cfg.UploadDir),
	}, nil
}

func (a *app) Close() error {
	return a.conn.Close()
}
