package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillsociety/auditions/internal/config"
	"github.com/quillsociety/auditions/internal/db"
	"github.com/quillsociety/auditions/internal/docstore/open"
	"github.com/quillsociety/auditions/internal/logging"
	"github.com/quillsociety/auditions/internal/services"
)

var configPath string

// operator is the identity CLI commands act as.
var operator = services.Caller{UserID: "cli", Name: "operator", Role: services.RoleAdmin}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "auditions",
		Short:         "Quill Society audition question bank and review service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("AUDITIONS_CONFIG"), "path to a YAML config file")
	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newMemberCmd(),
		newReportCmd(),
		newTakeCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is what every subcommand starts from.
type env struct {
	cfg    config.Config
	logger *slog.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return &env{cfg: cfg, logger: logger}, nil
}

// openRepo opens the configured document store. The caller closes it.
func (e *env) openRepo(ctx context.Context) (*db.Repository, error) {
	store, err := open.Open(ctx, e.cfg.Store, e.logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db.NewRepository(store, e.logger), nil
}
