package cmd

import (
	"fmt"

	"github.com/ksred/klear-journal/internal/auth"
	"github.com/spf13/cobra"
)

func newUserAddCmd(opts *rootOptions) *cobra.Command {
	var (
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "useradd <username>",
		Short: "Create a user account with empty trade settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.open()
			if err != nil {
				return err
			}
			defer svc.close()

			user, err := svc.Auth.Register(cmd.Context(), auth.Registration{
				Username: args[0],
				Email:    email,
				Password: password,
			})
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (required)")
	cmd.MarkFlagRequired("password")

	return cmd
}

func newPurgeKeysCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-keys",
		Short: "Delete expired idempotency keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.open()
			if err != nil {
				return err
			}
			defer svc.close()

			n, err := svc.Journal.PurgeExpiredKeys(cmd.Context())
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired keys\n", n)
			return nil
		},
	}
}
