package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"inkwell/api/internal/authpw"
	"inkwell/api/internal/store"
)

func newUsersCmd() *cobra.Command {
	var dbURL string
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	cmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database URL, overrides DATABASE_URL")

	var email, password, name string
	create := &cobra.Command{
		Use:   "create-superuser",
		Short: "Create a verified superuser account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, db, err := openStore(ctx, dbURL)
			if err != nil {
				return err
			}
			defer db.Close()

			users := authpw.NewService(store.NewPostgresStore(db), newCLILogger())
			resp, err := users.SignUp(ctx, authpw.SignUpRequest{
				Email:       email,
				Password:    password,
				DisplayName: name,
				Verified:    true,
				Superuser:   true,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created superuser %s (%s)\n", email, resp.UserID)
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "account email")
	create.Flags().StringVar(&password, "password", "", "account password")
	create.Flags().StringVar(&name, "name", "", "display name")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, db, err := openStore(ctx, dbURL)
			if err != nil {
				return err
			}
			defer db.Close()

			users, err := store.NewPostgresStore(db).ListUsers(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EMAIL\tNAME\tROLE\tACTIVE\tVERIFIED")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", u.Email, u.DisplayName, u.Role(), u.IsActive, u.IsVerified)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(create, list)
	cmd.AddCommand(
		flagCommand("activate", "Reactivate an account", &dbURL, func(s *store.PostgresStore, cmd *cobra.Command, email string) error {
			return s.SetUserActive(cmd.Context(), email, true)
		}),
		flagCommand("deactivate", "Deactivate an account", &dbURL, func(s *store.PostgresStore, cmd *cobra.Command, email string) error {
			return s.SetUserActive(cmd.Context(), email, false)
		}),
		flagCommand("promote", "Grant superuser", &dbURL, func(s *store.PostgresStore, cmd *cobra.Command, email string) error {
			return s.SetUserSuperuser(cmd.Context(), email, true)
		}),
		flagCommand("demote", "Revoke superuser", &dbURL, func(s *store.PostgresStore, cmd *cobra.Command, email string) error {
			return s.SetUserSuperuser(cmd.Context(), email, false)
		}),
	)
	return cmd
}

// flagCommand builds a subcommand that flips one account flag by email.
func flagCommand(use, short string, dbURL *string, apply func(*store.PostgresStore, *cobra.Command, string) error) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openStore(cmd.Context(), *dbURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := apply(store.NewPostgresStore(db), cmd, email); err != nil {
				return fmt.Errorf("%s %s: %w", use, email, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", use, email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
