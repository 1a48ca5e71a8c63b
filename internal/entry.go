// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kerbin-io/notarius/internal/httpapi"
	"github.com/kerbin-io/notarius/internal/locker"
	"github.com/kerbin-io/notarius/internal/queue"
	"github.com/kerbin-io/notarius/internal/reconcile"
	"github.com/kerbin-io/notarius/internal/store"
	"github.com/kerbin-io/notarius/internal/vault"
	"github.com/kerbin-io/notarius/internal/watch"
)

// queueCapacity bounds the number of admitted events awaiting the consumer.
const queueCapacity = 128

// maintenanceInterval is how often stale locks are purged and the debounce
// table is swept.
const maintenanceInterval = time.Minute

// Run starts the engine with the given options and blocks until ctx is
// cancelled or a fatal error occurs.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("watcher_mode", cfg.Watcher.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	v, err := vault.New(cfg.Vault.Path, VaultLayout(cfg))
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}
	if err := v.EnsureLayout(); err != nil {
		return fmt.Errorf("ensure vault layout: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	if err := bootstrapFolders(db, v); err != nil {
		logger.Warn("folder bootstrap failed", slog.String("error", err.Error()))
	}

	coordinator, err := buildCoordinator(cfg, v, db, logger)
	if err != nil {
		return err
	}

	locks := locker.New()
	q := queue.New(queueCapacity, locks, coordinator.LockKey, logger)
	reconciler := reconcile.New(db, v, logger)

	// Initial sync: catch anything that changed while the engine was down.
	if report, err := reconciler.Run(); err != nil {
		logger.Warn("initial reconciliation failed", slog.String("error", err.Error()))
	} else if !report.Zero() {
		logger.Info("initial reconciliation repaired drift",
			slog.Int("created", report.Created),
			slog.Int("removed", report.Removed),
			slog.Int("repaired", report.Repaired))
	}

	// Files already waiting in the import zone predate the watcher's baseline
	// and would otherwise sit there until touched.
	enqueueImportBacklog(v, cfg.Vault.ImportDir, q, logger)

	api := httpapi.New(q, locks, coordinator.Counters(), reconciler, logger)
	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: api.Router(),
	}

	debounce := watch.NewDebouncer(cfg.Watcher.DebounceWindow.Std())

	g, gCtx := errgroup.WithContext(ctx)

	emit := func(ev watch.Event) { q.Enqueue(ev) }
	switch cfg.Watcher.Mode {
	case WatchModeFsnotify:
		notifier := watch.NewNotifier(v.Root(), debounce, logger)
		g.Go(func() error { return notifier.Run(gCtx, emit) })
	default:
		poller := watch.NewPoller(v.Root(), cfg.Watcher.PollInterval.Std(), debounce, logger)
		g.Go(func() error { return poller.Run(gCtx, emit) })
	}

	g.Go(func() error { return q.Consume(gCtx, coordinator.Handle) })

	g.Go(func() error {
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				for _, key := range locks.PurgeExpired(cfg.Processing.LockPurgeTimeout.Std()) {
					logger.Warn("maintenance: purged stale lock, holder likely crashed",
						slog.String("key", key))
				}
				debounce.Sweep()
				enqueueImportBacklog(v, cfg.Vault.ImportDir, q, logger)
			}
		}
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	api.SetReady()
	logger.Info("Engine started", slog.String("vault", v.Root()))

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Engine stopped successfully")
	return nil
}

// VaultLayout maps the configured zone directories onto the vault layout.
func VaultLayout(cfg *Config) vault.Layout {
	return vault.Layout{
		Import:        cfg.Vault.ImportDir,
		Storage:       cfg.Vault.StorageDir,
		Uncategorized: cfg.Vault.UncategorizedDir,
		Duplicates:    cfg.Vault.DuplicatesDir,
		Error:         cfg.Vault.ErrorDir,
		Drafts:        cfg.Vault.DraftsDir,
		Templates:     cfg.Vault.TemplatesDir,
	}
}

// enqueueImportBacklog feeds every file sitting in the import zone into the
// queue as a synthetic create event. Runs at startup, for work that arrived
// while the daemon was down, and on the maintenance tick, for events dropped
// on a lock collision. Admission dedups against anything already in flight.
func enqueueImportBacklog(v *vault.Vault, importDir string, q *queue.Queue, logger *slog.Logger) int {
	files, err := v.List(importDir)
	if err != nil {
		logger.Warn("import backlog scan failed", slog.String("error", err.Error()))
		return 0
	}
	queued := 0
	for _, f := range files {
		if watch.Ignored(f.Path) {
			continue
		}
		if q.Enqueue(watch.Event{
			Kind:   watch.KindFile,
			Action: watch.ActionCreated,
			Path:   f.Path,
		}) {
			queued++
		}
	}
	if queued > 0 {
		logger.Info("import backlog queued", slog.Int("files", queued))
	}
	return queued
}

// bootstrapFolders makes sure every zone directory has a matching folder
// record.
func bootstrapFolders(db *store.DB, v *vault.Vault) error {
	zones := []struct {
		zone vault.Zone
		typ  store.FolderType
	}{
		{vault.ZoneImport, store.FolderDraft},
		{vault.ZoneStorage, store.FolderStorage},
		{vault.ZoneUncategorized, store.FolderUncategorized},
		{vault.ZoneDuplicates, store.FolderDuplicates},
		{vault.ZoneError, store.FolderError},
		{vault.ZoneDrafts, store.FolderDraft},
		{vault.ZoneTemplates, store.FolderTemplates},
	}
	for _, z := range zones {
		dir := v.ZoneDir(z.zone)
		if _, err := db.EnsureFolder(&store.Folder{
			Name: filepath.Base(dir),
			Path: dir,
			Type: z.typ,
		}); err != nil {
			return err
		}
	}
	return nil
}
