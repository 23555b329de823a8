package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillsociety/auditions/internal/db"
	"github.com/quillsociety/auditions/internal/services"
)

func newMemberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage login accounts",
	}
	cmd.AddCommand(newMemberAddCmd(), newMemberListCmd())
	return cmd
}

func newMemberAddCmd() *cobra.Command {
	var email, name, password, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Long:  "Create an account. The password may also be given in AUDITIONS_MEMBER_PASSWORD.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("AUDITIONS_MEMBER_PASSWORD")
			}
			if password == "" {
				return errors.New("--password or AUDITIONS_MEMBER_PASSWORD is required")
			}
			r, ok := services.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), e, func(repo *db.Repository) error {
				m, err := services.NewAuthService(repo, nil).AddMember(cmd.Context(), email, name, password, r)
				if err != nil {
					return err
				}
				repo.AddAudit(cmd.Context(), services.AuditEntry{Actor: operator.UserID, Action: "member.add", Target: m.ID, Note: string(m.Role)})
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) as %s\n", m.Email, m.ID, m.Role)
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&email, "email", "", "login email")
	fl.StringVar(&name, "name", "", "display name")
	fl.StringVar(&password, "password", "", "password")
	fl.StringVar(&role, "role", "member", "student, LCite, member or admin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newMemberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), e, func(repo *db.Repository) error {
				ms, err := services.NewAuthService(repo, nil).ListMembers(cmd.Context(), operator)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, m := range ms {
					fmt.Fprintf(out, "%-12s %-8s %-30s %s\n", m.ID, m.Role, m.Email, m.Name)
				}
				return nil
			})
		},
	}
}

func withRepo(ctx context.Context, e *env, fn func(*db.Repository) error) error {
	repo, err := e.openRepo(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := repo.Close(); cerr != nil {
			e.logger.Warn("failed to close store", "error", cerr)
		}
	}()
	return fn(repo)
}
