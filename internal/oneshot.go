package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kerbin-io/notarius/internal/blocks"
	"github.com/kerbin-io/notarius/internal/journal"
	"github.com/kerbin-io/notarius/internal/lifecycle"
	"github.com/kerbin-io/notarius/internal/llm"
	"github.com/kerbin-io/notarius/internal/pipeline"
	"github.com/kerbin-io/notarius/internal/reconcile"
	"github.com/kerbin-io/notarius/internal/store"
	"github.com/kerbin-io/notarius/internal/synth"
	"github.com/kerbin-io/notarius/internal/vault"
	"github.com/kerbin-io/notarius/internal/watch"
)

// RunReconcile executes one reconciliation pass and returns.
func RunReconcile(cfg *Config) error {
	logger := newLogger(cfg)

	v, db, err := openVaultAndStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := reconcile.New(db, v, logger).Run()
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	logger.Info("Reconciliation finished",
		slog.Int("created", report.Created),
		slog.Int("removed", report.Removed),
		slog.Int("repaired", report.Repaired))
	return nil
}

// RunScan pushes every file currently sitting in the import zone through the
// full intake pipeline, then returns. It is the manual counterpart of the
// watcher's create events.
func RunScan(ctx context.Context, cfg *Config) error {
	logger := newLogger(cfg)

	v, db, err := openVaultAndStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	coordinator, err := buildCoordinator(cfg, v, db, logger)
	if err != nil {
		return err
	}

	files, err := v.List(cfg.Vault.ImportDir)
	if err != nil {
		return fmt.Errorf("list import zone: %w", err)
	}
	logger.Info("Scan started", slog.Int("files", len(files)))

	for _, f := range files {
		if watch.Ignored(f.Path) {
			continue
		}
		if err := coordinator.Handle(ctx, watch.Event{
			Kind:   watch.KindFile,
			Action: watch.ActionCreated,
			Path:   f.Path,
		}); err != nil {
			logger.Error("scan: file failed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
		}
	}

	snapshot := coordinator.Counters().Snapshot()
	logger.Info("Scan finished",
		slog.Int64("processed", snapshot.Processed),
		slog.Int64("duplicates", snapshot.Duplicates),
		slog.Int64("quarantined", snapshot.Quarantined),
		slog.Int64("errors", snapshot.Errors))
	return nil
}

func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// buildCoordinator wires the processing stack shared by the daemon and the
// one-shot scan.
func buildCoordinator(cfg *Config, v *vault.Vault, db *store.DB, logger *slog.Logger) (*lifecycle.Coordinator, error) {
	j, err := journal.New(filepath.Join(cfg.Vault.Path, cfg.Vault.JournalDir))
	if err != nil {
		return nil, fmt.Errorf("init journal: %w", err)
	}
	provider := llm.NewClient(cfg.Inference.BaseURL, cfg.Inference.Timeout.Std())

	pipe := pipeline.New(db, v, provider, j, pipeline.Settings{
		Model:               cfg.Inference.GenerateModel,
		RetryAttempts:       cfg.Inference.RetryAttempts,
		RetryDelay:          cfg.Inference.RetryDelay.Std(),
		FuzzyTitleThreshold: cfg.Processing.FuzzyTitleThreshold,
	}, logger)
	processor := blocks.NewProcessor(db, provider,
		cfg.Inference.RetryAttempts, cfg.Inference.RetryDelay.Std(), logger)
	orchestrator := synth.New(db, v, provider, processor, synth.Settings{
		Model:          cfg.Inference.GenerateModel,
		EmbedModel:     cfg.Inference.EmbedModel,
		RetryAttempts:  cfg.Inference.RetryAttempts,
		RetryDelay:     cfg.Inference.RetryDelay.Std(),
		BlockWordLimit: cfg.Processing.BlockWordLimit,
		Glossary:       cfg.Processing.Glossary,
		Questions:      cfg.Processing.Questions,
	}, logger)
	return lifecycle.New(db, v, pipe, orchestrator, j,
		cfg.Processing.WordDeltaThreshold, logger), nil
}

func openVaultAndStore(cfg *Config) (*vault.Vault, *store.DB, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create vault dir: %w", err)
	}
	v, err := vault.New(cfg.Vault.Path, VaultLayout(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("init vault: %w", err)
	}
	if err := v.EnsureLayout(); err != nil {
		return nil, nil, fmt.Errorf("ensure vault layout: %w", err)
	}
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}
	return v, db, nil
}
