package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cobra"
	"igfeed/internal/batch"
	"igfeed/pkg/instagram"
	"igfeed/pkg/retry"
	"igfeed/pkg/session"
	"igfeed/pkg/storage"
	"igfeed/pkg/ui"
	"igfeed/pkg/ui/tui"
)

func (c *cli) profileCmd() *cobra.Command {
	var (
		useJSON   bool
		userID    int64
		workers   int
		outputDir string
		useTUI    bool
	)

	cmd := &cobra.Command{
		Use:   "profile [username...]",
		Short: "Print user profiles",
		Long: `Print the profile of one or more users.

By default the public profile page is read, with the saved session when there
is one. With --json the private JSON API is asked instead; it needs the numeric
user id and a saved session.

Several usernames are fetched concurrently. With --output every profile is
written to <dir>/<username>.json and usernames that already have a file there
are skipped. --tui follows the batch on a full-screen board; pressing q stops it.`,
		Example: `  igfeed profile instagram
  igfeed profile instagram natgeo nasa --workers 3 --output profiles
  igfeed profile instagram natgeo nasa --tui --output profiles
  igfeed profile --json --id 25025320`,
		RunE: func(cmd *cobra.Command, args []string) error {
			feeds, err := c.feeds()
			if err != nil {
				return err
			}

			if useJSON {
				if userID <= 0 {
					return errors.New("--json needs a positive --id")
				}
				sess, err := c.savedSession(true)
				if err != nil {
					return err
				}
				return fetch(cmd, c, func(ctx context.Context) (*instagram.UserInfo, error) {
					return feeds.ProfileJSON(ctx, sess, userID)
				})
			}

			if len(args) == 0 {
				return errors.New("a username is required")
			}
			usernames := lo.Uniq(lo.Map(args, func(arg string, _ int) string {
				return instagram.SanitizeUsername(arg)
			}))
			for _, username := range usernames {
				if !instagram.IsValidUsername(username) {
					return fmt.Errorf("invalid username %q", username)
				}
			}
			sess, err := c.savedSession(false)
			if err != nil {
				return err
			}

			if len(usernames) == 1 && outputDir == "" && !useTUI {
				return fetch(cmd, c, func(ctx context.Context) (*instagram.Profile, error) {
					return feeds.ProfileHTML(ctx, sess, usernames[0])
				})
			}
			return c.fetchProfiles(cmd, feeds, sess, usernames, batchOptions{
				workers:   workers,
				outputDir: outputDir,
				tui:       useTUI,
			})
		},
	}

	cmd.Flags().BoolVar(&useJSON, "json", false, "use the JSON API instead of the profile page")
	cmd.Flags().Int64Var(&userID, "id", 0, "numeric user id for --json")
	cmd.Flags().IntVarP(&workers, "workers", "w", 3, "profiles fetched at the same time")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "write each profile to this directory")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "show a live board while fetching several profiles")
	return cmd
}

type batchOptions struct {
	workers   int
	outputDir string
	tui       bool
}

// profileResult is one entry of the batch output
type profileResult struct {
	Username string             `json:"username"`
	Profile  *instagram.Profile `json:"profile,omitempty"`
	Skipped  bool               `json:"skipped,omitempty"`
	Error    string             `json:"error,omitempty"`
}

func (c *cli) fetchProfiles(cmd *cobra.Command, feeds *instagram.Feeds, sess *session.Session, usernames []string, opts batchOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var (
		sink    batch.Sink
		manager *storage.Manager
	)
	if opts.outputDir != "" {
		var err error
		manager, err = storage.NewManager(c.fs, opts.outputDir)
		if err != nil {
			return err
		}
		sink = manager
	}

	tracker := ui.NewStatusTracker(len(usernames))
	var (
		reporter ui.FetchReporter = tracker
		board    *tui.TUI
		boardErr chan error
	)
	if opts.tui {
		if f, ok := cmd.OutOrStdout().(*os.File); ok && isTerminal(f) {
			board = tui.NewTUI(opts.workers, usernames, tea.WithOutput(f), tea.WithContext(ctx))
			reporter = board
			boardErr = make(chan error, 1)
			go func() {
				boardErr <- board.Start()
				cancel()
			}()
			if manager != nil {
				for _, username := range usernames {
					if manager.Has(username) {
						board.Skipped(username)
					}
				}
			}
		} else {
			ui.PrintWarning("--tui needs a terminal, showing plain progress")
		}
	}

	results := batch.Run(ctx, opts.workers, usernames, func(ctx context.Context, username string) (*instagram.Profile, error) {
		reporter.Started(username)
		profile, err := retry.DoWithResult(func() (*instagram.Profile, error) {
			return feeds.ProfileHTML(ctx, sess, username)
		}, retry.FromConfig(ctx, c.cfg.Retry, c.log))
		reporter.Done(username, err)
		return profile, err
	}, sink, c.log)

	failed := lo.CountBy(results, func(r batch.Result[*instagram.Profile]) bool { return r.Err != nil })
	skipped := lo.CountBy(results, func(r batch.Result[*instagram.Profile]) bool { return r.Skipped })

	if board != nil {
		board.Finish()
		if err := <-boardErr; err != nil {
			c.log.WarnWithFields("batch board failed", map[string]interface{}{"error": err.Error()})
		}
		if board.Aborted() {
			ui.PrintWarning("Stopped", "batch interrupted from the board")
		}
		ui.PrintBatchSummary(len(results)-failed-skipped, skipped, failed, tracker.GetElapsedTime())
	} else {
		tracker.Summary(skipped)
	}

	if sink == nil {
		out := lo.Map(results, func(r batch.Result[*instagram.Profile], _ int) profileResult {
			entry := profileResult{Username: r.Key, Profile: r.Value, Skipped: r.Skipped}
			if r.Err != nil {
				entry.Error = r.Err.Error()
			}
			return entry
		})
		if err := ui.PrintJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		ui.PrintInfo("Saved to", opts.outputDir)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d profiles failed", failed, len(usernames))
	}
	return nil
}

func (c *cli) reelsCmd() *cobra.Command {
	var cursor string

	cmd := &cobra.Command{
		Use:   "reels <user-id>",
		Short: "Print one page of a user's reels",
		Example: `  igfeed reels 25025320
  igfeed reels 25025320 --cursor QVFDbm...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			next := mo.EmptyableToOption(cursor)

			sess, err := c.savedSession(true)
			if err != nil {
				return err
			}
			feeds, err := c.feeds()
			if err != nil {
				return err
			}

			return fetch(cmd, c, func(ctx context.Context) (*instagram.ReelsPage, error) {
				page, err := feeds.Reels(ctx, sess, userID, next)
				if err == nil {
					printNextCursor(page.NextCursor())
				}
				return page, err
			})
		},
	}

	cmd.Flags().StringVar(&cursor, "cursor", "", "max_id returned by the previous page")
	return cmd
}

func (c *cli) liveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "live <username>",
		Short: "Print a user's live broadcast",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := instagram.SanitizeUsername(args[0])
			if !instagram.IsValidUsername(username) {
				return fmt.Errorf("invalid username %q", username)
			}

			sess, err := c.savedSession(true)
			if err != nil {
				return err
			}
			feeds, err := c.feeds()
			if err != nil {
				return err
			}

			return fetch(cmd, c, func(ctx context.Context) (*instagram.LiveStream, error) {
				return feeds.Live(ctx, sess, username)
			})
		},
	}
}

func (c *cli) locationCmd() *cobra.Command {
	var cursor string

	cmd := &cobra.Command{
		Use:   "location <id>",
		Short: "Print one page of a location's media",
		Example: `  igfeed location 6889842
  igfeed location 6889842 --cursor 2962285929`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			locationID := args[0]
			if _, err := strconv.ParseUint(locationID, 10, 64); err != nil {
				return fmt.Errorf("invalid location id %q", locationID)
			}

			sess, err := c.savedSession(true)
			if err != nil {
				return err
			}
			feeds, err := c.feeds()
			if err != nil {
				return err
			}

			return fetch(cmd, c, func(ctx context.Context) (*instagram.LocationPage, error) {
				var (
					page *instagram.LocationPage
					err  error
				)
				if cursor == "" {
					page, err = feeds.Location(ctx, sess, locationID)
				} else {
					page, err = feeds.LocationMore(ctx, sess, locationID, cursor)
				}
				if err == nil {
					printNextCursor(page.NextCursor())
				}
				return page, err
			})
		},
	}

	cmd.Flags().StringVar(&cursor, "cursor", "", "end cursor returned by the previous page")
	return cmd
}

func printNextCursor(next mo.Option[string]) {
	if cursor, ok := next.Get(); ok {
		ui.PrintInfo("Next cursor", cursor)
	}
}
