package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/kerbin-io/notarius/internal"
	pkgconfig "github.com/kerbin-io/notarius/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func runDaemon(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runReconcile(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunReconcile(cfg)
}

func runScan(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunScan(ctx, cfg)
}

func main() {
	cmd := &cli.Command{
		Name:  "notarius",
		Usage: "Note lifecycle orchestration engine: watches a vault, classifies and files notes, and keeps archive/synthesis pairs in sync",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("NOTARIUS_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the engine daemon (watcher, queue consumer, status HTTP)",
				Action: runDaemon,
			},
			{
				Name:   "reconcile",
				Usage:  "Run one reconciliation pass between the vault and the metadata store, then exit",
				Action: runReconcile,
			},
			{
				Name:   "scan",
				Usage:  "Import every file currently in the import zone, then exit",
				Action: runScan,
			},
		},
		// Bare invocation behaves like "run".
		Action: runDaemon,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
