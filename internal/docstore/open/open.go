// Package open builds a docstore.Store for a configured backend.
package open

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quillsociety/auditions/internal/docstore"
	"github.com/quillsociety/auditions/internal/docstore/badger"
	"github.com/quillsociety/auditions/internal/docstore/memory"
	"github.com/quillsociety/auditions/internal/docstore/mongo"
	"github.com/quillsociety/auditions/internal/docstore/postgres"
	"github.com/quillsociety/auditions/internal/docstore/sqlite"
)

// Drivers lists the accepted values of Config.Driver.
var Drivers = []string{"memory", "sqlite", "postgres", "badger", "mongo"}

// Config selects and parameterizes a backend. Only the fields of the chosen
// driver are read.
type Config struct {
	Driver string `yaml:"driver"`

	SQLitePath    string `yaml:"sqlite_path"`
	MigrationsDir string `yaml:"migrations_dir"`

	PostgresURL string `yaml:"postgres_url"`

	BadgerPath     string        `yaml:"badger_path"`
	BadgerGC       time.Duration `yaml:"badger_gc_interval"`
	BadgerSync     bool          `yaml:"badger_sync_writes"`
	BadgerInMemory bool          `yaml:"badger_in_memory"`

	MongoURI          string `yaml:"mongo_uri"`
	MongoDatabase     string `yaml:"mongo_database"`
	MongoTransactions bool   `yaml:"mongo_transactions"`
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (docstore.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	engine, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("document store opened", "driver", driverName(cfg))
	return docstore.New(engine, docstore.WithLogger(logger)), nil
}

func driverName(cfg Config) string {
	d := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if d == "" {
		return "memory"
	}
	return d
}

func openEngine(ctx context.Context, cfg Config, logger *slog.Logger) (docstore.Engine, error) {
	switch driverName(cfg) {
	case "memory":
		return memory.NewEngine(), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath, cfg.MigrationsDir)
	case "postgres":
		return postgres.Open(ctx, cfg.PostgresURL)
	case "badger":
		var bc badger.Config
		if cfg.BadgerInMemory {
			bc = badger.InMemoryConfig()
		} else {
			bc = badger.DefaultConfig(cfg.BadgerPath)
			bc.SyncWrites = cfg.BadgerSync
			if cfg.BadgerGC > 0 {
				bc.GCInterval = cfg.BadgerGC
			}
		}
		bc.Logger = logger.With("component", "badger")
		return badger.Open(bc)
	case "mongo":
		return mongo.Open(ctx, mongo.Config{
			URI:          cfg.MongoURI,
			Database:     cfg.MongoDatabase,
			Transactions: cfg.MongoTransactions,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q (want one of %s)", cfg.Driver, strings.Join(Drivers, ", "))
	}
}
