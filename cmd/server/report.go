package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillsociety/auditions/internal/archive"
	"github.com/quillsociety/auditions/internal/db"
	"github.com/quillsociety/auditions/internal/services"
)

func newReportCmd() *cobra.Command {
	var (
		round       string
		respondents []string
		byName      bool
		responses   bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export a round report or all responses as CSV to the configured archive",
		Example: `  auditions report --round round2 --sort-by-name
  auditions report --responses`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sink, err := archive.Open(ctx, e.cfg.Archive)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer sink.Close()

			return withRepo(ctx, e, func(repo *db.Repository) error {
				reviews := services.NewReviewService(repo, e.logger)
				var (
					data []byte
					name string
				)
				now := time.Now()
				if responses {
					data, err = reviews.ExportResponses(ctx, operator)
					name = archive.ObjectName("responses", "", now, "csv")
				} else {
					r, perr := services.ParseRound(round)
					if perr != nil {
						return perr
					}
					var entries []services.ReportEntry
					entries, err = reviews.CompileReports(ctx, operator, respondents, r, byName)
					if err == nil {
						data, err = services.ExportReportCSV(entries)
					}
					name = archive.ObjectName("report", string(r), now, "csv")
				}
				if err != nil {
					return err
				}
				loc, err := sink.Put(ctx, name, data, "text/csv")
				if err != nil {
					return fmt.Errorf("archive %s: %w", name, err)
				}
				repo.AddAudit(ctx, services.AuditEntry{Actor: operator.UserID, Action: "report.export", Target: loc})
				fmt.Fprintln(cmd.OutOrStdout(), loc)
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&round, "round", "round1", "review round: round1, round2 or round3")
	fl.StringSliceVar(&respondents, "respondent", nil, "respondent ids (default every respondent)")
	fl.BoolVar(&byName, "sort-by-name", false, "order each report by reviewer name")
	fl.BoolVar(&responses, "responses", false, "export every respondent's answers instead of a round report")
	return cmd
}
