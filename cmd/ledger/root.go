package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ledger/internal/config"
	"github.com/JonMunkholm/ledger/internal/core"
	"github.com/JonMunkholm/ledger/internal/logging"
	"github.com/JonMunkholm/ledger/internal/storage"
)

// app carries state built once in the root PersistentPreRunE.
type app struct {
	envFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "ledger",
		Short:         "Import bank statements into an auditable transaction ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file to load if present")

	cmd.AddCommand(
		newImportCmd(a),
		newServeCmd(a),
		newMigrateCmd(a),
		newHistoryCmd(a),
		newShowCmd(a),
	)
	return cmd
}

func (a *app) init() error {
	// Overload so the file wins over stale shell exports.
	if err := godotenv.Overload(a.envFile); err != nil {
		slog.Debug("no env file loaded", "path", a.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	a.cfg = cfg
	return nil
}

func (a *app) openLedger(ctx context.Context) (storage.Ledger, error) {
	db := a.cfg.Database
	if err := db.RequireURL(); err != nil {
		return nil, err
	}
	ledger, err := storage.Open(ctx, storage.Config{
		URL:             db.URL,
		MaxConns:        int32(db.MaxConns),
		MinConns:        int32(db.MinConns),
		MaxConnLifetime: db.MaxConnLifetime,
		MaxConnIdleTime: db.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return ledger, nil
}

// newImporter builds an Importer from configuration. A non-zero delimiter
// overrides IMPORT_DELIMITER.
func (a *app) newImporter(store core.Store, delimiter rune) (*core.Importer, error) {
	ic := a.cfg.Import

	aliases, err := core.LoadAliases(ic.AliasesFile)
	if err != nil {
		return nil, err
	}
	if delimiter == 0 {
		delimiter = ic.DelimiterRune()
	}

	return core.NewImporter(store, core.Options{
		Aliases:           aliases,
		DateFormats:       ic.DateFormats,
		Delimiter:         delimiter,
		Workers:           ic.Workers,
		ParallelThreshold: ic.ParallelThreshold,
		MaxFileSize:       a.cfg.Upload.MaxFileSize,
	})
}
