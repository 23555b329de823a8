package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/quillsociety/auditions/internal/db"
	"github.com/quillsociety/auditions/internal/docstore/open"
)

type migrateFlags struct {
	target      open.Config
	collections []string
	batchSize   int
}

func newMigrateCmd() *cobra.Command {
	var f migrateFlags
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every collection from the configured store into another backend",
		Long: `migrate reads each collection from the store named in the config and
writes it into the target store. Documents are copied by id, so running it
again overwrites rather than duplicates.`,
		Example: `  auditions migrate --to-driver postgres --to-postgres-url postgres://localhost/auditions
  auditions migrate --to-driver badger --to-badger-path ./data/badger --collections responses`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), e.cfg.Store, f, e.logger)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.target.Driver, "to-driver", "", "target backend: sqlite, postgres, badger or mongo")
	fl.StringVar(&f.target.SQLitePath, "to-sqlite-path", "", "target SQLite file")
	fl.StringVar(&f.target.PostgresURL, "to-postgres-url", "", "target Postgres URL")
	fl.StringVar(&f.target.BadgerPath, "to-badger-path", "", "target Badger directory")
	fl.StringVar(&f.target.MongoURI, "to-mongo-uri", "", "target MongoDB URI")
	fl.StringVar(&f.target.MongoDatabase, "to-mongo-database", "auditions", "target MongoDB database")
	fl.BoolVar(&f.target.MongoTransactions, "to-mongo-transactions", false, "commit target batches in MongoDB transactions")
	fl.StringSliceVar(&f.collections, "collections", nil, "collections to copy (default all)")
	fl.IntVar(&f.batchSize, "batch", 500, "documents per write batch")
	_ = cmd.MarkFlagRequired("to-driver")
	return cmd
}

func runMigrate(ctx context.Context, source open.Config, f migrateFlags, logger *slog.Logger) error {
	if f.target.Driver == "" || f.target.Driver == "memory" {
		return errors.New("a persistent target driver is required")
	}
	if f.target == source {
		return errors.New("source and target are the same store")
	}
	src, err := open.Open(ctx, source, logger.With("side", "source"))
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()
	dst, err := open.Open(ctx, f.target, logger.With("side", "target"))
	if err != nil {
		return fmt.Errorf("open target: %w", err)
	}
	defer dst.Close()

	logger.Info("starting collection copy", "from", source.Driver, "to", f.target.Driver)
	stats, err := db.CopyCollections(ctx, src, dst, f.collections, f.batchSize, logger)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-20s %d\n", name, stats[name])
	}
	logger.Info("data migration completed successfully")
	return nil
}
