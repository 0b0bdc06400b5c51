package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"igfeed/pkg/auth"
	"igfeed/pkg/config"
	errs "igfeed/pkg/errors"
	"igfeed/pkg/instagram"
	"igfeed/pkg/retry"
	"igfeed/pkg/session"
	"igfeed/pkg/ui"
)

func (c *cli) endpoints() instagram.Endpoints {
	return instagram.NewEndpoints(c.cfg.Instagram.WebBaseURL, c.cfg.Instagram.APIBaseURL)
}

func (c *cli) transport() (*instagram.Transport, error) {
	return instagram.NewTransport(instagram.OptionsFromConfig(c.cfg.Instagram, c.cfg.RateLimit), c.log)
}

func (c *cli) vault() (*auth.Vault, error) {
	return auth.OpenVault(c.fs, config.ConfigDir())
}

func (c *cli) credentials() (*auth.Manager, error) {
	v, err := c.vault()
	if err != nil {
		return nil, err
	}
	return auth.NewManager(c.fs, config.ConfigDir(), v)
}

func (c *cli) sessionStore() (*session.FileStore, error) {
	opts := []session.FileOption{session.WithFs(c.fs)}
	if c.cfg.Session.Encrypt {
		v, err := c.vault()
		if err != nil {
			return nil, err
		}
		opts = append(opts, session.WithSealer(v))
	}
	return session.NewFileStore(c.cfg.Session.File, c.log, opts...), nil
}

// savedSession loads the session written by login. With required unset a missing session is not an error.
func (c *cli) savedSession(required bool) (*session.Session, error) {
	store, err := c.sessionStore()
	if err != nil {
		return nil, err
	}
	snap, err := store.Load()
	if err != nil {
		return nil, err
	}

	saved, ok := snap.Get()
	if !ok {
		if required {
			return nil, errs.NewFetch(errs.ReasonUnauthenticated, "no saved session, run 'igfeed login' first")
		}
		return nil, nil
	}

	c.log.DebugWithFields("session loaded", map[string]interface{}{
		"username": saved.Username,
		"saved_at": saved.SavedAt,
	})
	return saved.Restore(), nil
}

func (c *cli) feeds() (*instagram.Feeds, error) {
	t, err := c.transport()
	if err != nil {
		return nil, err
	}
	return instagram.NewFeeds(t, c.endpoints(), c.log), nil
}

// fetch runs op under the configured retry policy and prints its result on stdout
func fetch[T any](cmd *cobra.Command, c *cli, op func(ctx context.Context) (T, error)) error {
	ctx := cmd.Context()
	result, err := retry.DoWithResult(func() (T, error) {
		return op(ctx)
	}, retry.FromConfig(ctx, c.cfg.Retry, c.log))
	if err != nil {
		return err
	}
	return ui.PrintJSON(cmd.OutOrStdout(), result)
}

func prompt(cmd *cobra.Command, reader *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// readPassword reads without echo on a terminal and falls back to a plain line otherwise
func readPassword(cmd *cobra.Command, reader *bufio.Reader) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && isTerminal(f) {
		fmt.Fprint(cmd.ErrOrStderr(), "🔑 Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return prompt(cmd, reader, "🔑 Password: ")
}

// promptAccount asks for whatever part of the credentials is missing
func promptAccount(cmd *cobra.Command, username string) (*auth.Account, error) {
	reader := bufio.NewReader(cmd.InOrStdin())

	if username == "" {
		input, err := prompt(cmd, reader, "📱 Instagram username: ")
		if err != nil {
			return nil, err
		}
		username = instagram.SanitizeUsername(input)
	}
	if !instagram.IsValidUsername(username) {
		return nil, fmt.Errorf("invalid username %q", username)
	}

	password, err := readPassword(cmd, reader)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}

	return &auth.Account{Username: username, Password: password}, nil
}
