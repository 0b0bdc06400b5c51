package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"igfeed/pkg/auth"
	errs "igfeed/pkg/errors"
	"igfeed/pkg/instagram"
	"igfeed/pkg/ui"
)

func (c *cli) loginCmd() *cobra.Command {
	var save, notify bool

	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Log in and save the session",
		Long: `Log in with a username and password and save the resulting session.

Credentials are taken from the credential store (see 'igfeed auth'), from
IGFEED_USERNAME and IGFEED_PASSWORD, or asked for interactively.

When Instagram asks for a security code, igfeed waits for it. Hand it over
from another terminal with 'igfeed code set <username> <code>', or through
the other sources listed in challenge.code_sources.`,
		Example: `  # Log in with the stored default account
  igfeed login

  # Log in and remember the password you type
  igfeed login myusername --save

  # Get a desktop notification when a security code is sent
  igfeed login --notify`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runLogin(cmd, args, save, notify)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "store typed credentials for later logins")
	cmd.Flags().BoolVar(&notify, "notify", false, "send a desktop notification when a security code is needed")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.sessionStore()
			if err != nil {
				return err
			}
			if err := store.Delete(); err != nil {
				return err
			}
			ui.PrintSuccess("✓ Logged out")
			return nil
		},
	}
}

func (c *cli) runLogin(cmd *cobra.Command, args []string, save, notify bool) error {
	var username string
	if len(args) > 0 {
		username = instagram.SanitizeUsername(args[0])
	}

	manager, err := c.credentials()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	account, err := storedAccount(manager, username)
	if err != nil {
		return err
	}
	typed := account == nil
	if typed {
		if account, err = promptAccount(cmd, username); err != nil {
			return err
		}
	}

	sources, err := auth.CodeSourceFromConfig(c.fs, c.cfg.Challenge, c.log)
	if err != nil {
		return err
	}
	t, err := c.transport()
	if err != nil {
		return err
	}

	identity := instagram.CodeIdentity(account.Username)
	var notifier *ui.Notifier
	if notify {
		notifier = ui.NewNotifier()
	}
	tracker := ui.NewChallengeTracker(func(cc *instagram.ChallengeContext) {
		auth.ShowCodeDeliveryGuide(cmd.ErrOrStderr(), cc, identity, c.cfg.Challenge.CodeSources)
		if notifier != nil {
			notifier.SendNotification("igfeed", fmt.Sprintf("Security code needed for %s", account.Username))
		}
	})
	opts := instagram.ChallengeOptionsFromConfig(c.cfg.Challenge)
	opts.Observer = tracker.Observe

	ep := c.endpoints()
	establisher := instagram.NewEstablisher(t, ep, instagram.NewChallengeResolver(t, ep, sources, opts, c.log), c.log)

	ui.PrintInfo("Logging in as", account.Username)
	sess, err := establisher.Establish(cmd.Context(), account.Credentials())
	if err != nil {
		if errors.Is(err, errs.ErrChallengeTimeout) {
			auth.ShowQuickCodeHint(cmd.ErrOrStderr(), identity)
			if notifier != nil {
				notifier.SendError("igfeed", "Timed out waiting for the security code")
			}
		}
		return err
	}

	store, err := c.sessionStore()
	if err != nil {
		return err
	}
	if err := store.Save(sess, account.Username); err != nil {
		return err
	}

	if typed && save {
		if err := manager.Store(account); err != nil {
			ui.PrintWarning("Could not store credentials", err)
		}
	}

	ui.PrintSuccess(fmt.Sprintf("✓ Logged in as %s", account.Username))
	ui.PrintInfo("Session", store.Path())
	return nil
}

// storedAccount looks username (or the default account) up, returning nil when nothing is stored
func storedAccount(manager *auth.Manager, username string) (*auth.Account, error) {
	var (
		account *auth.Account
		err     error
	)
	if username == "" {
		account, err = manager.RetrieveDefault()
	} else {
		account, err = manager.Retrieve(username)
	}

	if errors.Is(err, auth.ErrCredentialsNotFound) {
		return nil, nil
	}
	return account, err
}
