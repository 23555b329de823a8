package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/quillsociety/auditions/internal/db"
	"github.com/quillsociety/auditions/internal/docstore/open"
	"github.com/quillsociety/auditions/internal/logging"
	"github.com/quillsociety/auditions/internal/services"
	"github.com/quillsociety/auditions/internal/tui"
)

func newTakeCmd() *cobra.Command {
	var respondent, name string
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take the audition in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if respondent == "" {
				return errors.New("--respondent is required")
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			// Logs would draw over the terminal UI.
			quiet := logging.Discard()
			store, err := open.Open(cmd.Context(), e.cfg.Store, quiet)
			if err != nil {
				return err
			}
			repo := db.NewRepository(store, quiet)
			defer repo.Close()

			caller := services.Caller{UserID: respondent, Name: name, Role: services.RoleStudent}
			return tui.Run(cmd.Context(), services.NewSessionService(repo, quiet), caller)
		},
	}
	cmd.Flags().StringVar(&respondent, "respondent", "", "respondent id")
	cmd.Flags().StringVar(&name, "name", "", "respondent display name")
	return cmd
}
