package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"igfeed/pkg/auth"
	"igfeed/pkg/instagram"
	"igfeed/pkg/ui"
)

func (c *cli) authCmd() *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored Instagram credentials",
		Long: `Manage the usernames and passwords igfeed logs in with.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables IGFEED_USERNAME and IGFEED_PASSWORD (read only)

Never share your credentials or config files!`,
	}

	storeCmd := &cobra.Command{
		Use:   "store [username]",
		Short: "Store credentials for an account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var username string
			if len(args) > 0 {
				username = instagram.SanitizeUsername(args[0])
			}
			account, err := promptAccount(cmd, username)
			if err != nil {
				return err
			}

			manager, err := c.credentials()
			if err != nil {
				return err
			}
			if err := manager.Store(account); err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("✓ Credentials for %s stored", account.Username))
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := c.credentials()
			if err != nil {
				return err
			}
			accounts, err := manager.List()
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				ui.PrintWarning("No stored accounts. Run 'igfeed auth store' to add one.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USERNAME\tPASSWORD\tUPDATED")
			for _, account := range accounts {
				masked := auth.SanitizeAccount(account)
				updated := "-"
				if !masked.LastModified.IsZero() {
					updated = masked.LastModified.Format(time.DateTime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", masked.Username, masked.Password, updated)
			}
			return w.Flush()
		},
	}

	removeCmd := &cobra.Command{
		Use:     "remove <username>",
		Aliases: []string{"rm"},
		Short:   "Remove stored credentials",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := c.credentials()
			if err != nil {
				return err
			}
			username := instagram.SanitizeUsername(args[0])
			if err := manager.Delete(username); err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("✓ Credentials for %s removed", username))
			return nil
		},
	}

	authCmd.AddCommand(storeCmd, listCmd, removeCmd)
	return authCmd
}
