package instagram

import (
	"context"
	"strings"
	"time"

	errs "igfeed/pkg/errors"
	"igfeed/pkg/logger"
	"igfeed/pkg/retry"
)

// CodeSource supplies the verification code for a challenge. An empty code with a nil error means
// the code is not available yet.
type CodeSource interface {
	Code(ctx context.Context, identity string) (string, error)
}

// CodeSourceFunc adapts a function to CodeSource
type CodeSourceFunc func(ctx context.Context, identity string) (string, error)

func (f CodeSourceFunc) Code(ctx context.Context, identity string) (string, error) {
	return f(ctx, identity)
}

// PollOptions bounds a code poll
type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
	// Timeout is the deadline of the whole poll. Zero means Interval * (MaxAttempts+1), the extra
	// interval covering the time spent in the lookups.
	Timeout time.Duration
}

// DefaultPollOptions polls once a second, a thousand times
func DefaultPollOptions() PollOptions {
	return PollOptions{Interval: time.Second, MaxAttempts: 1000}
}

// CodePoller repeatedly asks a CodeSource for a code until one shows up
type CodePoller struct {
	source CodeSource
	opts   PollOptions
	logger logger.Logger
}

// NewCodePoller creates a poller over src
func NewCodePoller(src CodeSource, opts PollOptions, log logger.Logger) *CodePoller {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultPollOptions().MaxAttempts
	}
	if opts.Interval < 0 {
		opts.Interval = 0
	}
	if opts.Timeout <= 0 && opts.Interval > 0 {
		opts.Timeout = opts.Interval * time.Duration(opts.MaxAttempts+1)
	}
	return &CodePoller{source: src, opts: opts, logger: log}
}

// Options returns the effective poll bounds
func (p *CodePoller) Options() PollOptions {
	return p.opts
}

// Poll returns the first non-empty code for identity. It fails with a challenge_timeout auth error
// when the attempts run out, the deadline passes or ctx is cancelled.
func (p *CodePoller) Poll(ctx context.Context, identity string) (string, error) {
	if identity == "" {
		return "", errs.NewAuth(errs.ReasonUnexpected, "no login to poll a verification code for")
	}
	if p.source == nil {
		return "", errs.NewAuth(errs.ReasonUnexpected, "no verification code source configured")
	}

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	log := p.logger.WithField("identity", identity)
	log.InfoWithFields("waiting for verification code", map[string]interface{}{
		"max_attempts": p.opts.MaxAttempts,
		"interval":     p.opts.Interval,
	})

	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		code, err := p.source.Code(ctx, identity)
		code = strings.TrimSpace(code)

		switch {
		case err != nil && ctx.Err() != nil:
			return "", p.timeout(ctx, attempt)
		case err != nil:
			log.WithError(err).WarnWithFields("verification code lookup failed", map[string]interface{}{
				"attempt": attempt,
			})
		case code != "":
			log.InfoWithFields("verification code obtained", map[string]interface{}{
				"attempt": attempt,
			})
			return code, nil
		}

		if attempt%30 == 0 {
			log.DebugWithFields("still waiting for verification code", map[string]interface{}{
				"attempt": attempt,
			})
		}

		if attempt == p.opts.MaxAttempts {
			break
		}
		if err := retry.Wait(ctx, p.opts.Interval); err != nil {
			return "", p.timeout(ctx, attempt)
		}
	}

	return "", errs.NewAuth(errs.ReasonChallengeTimeout,
		"no verification code after %d attempts", p.opts.MaxAttempts)
}

func (p *CodePoller) timeout(ctx context.Context, attempt int) error {
	return errs.NewAuth(errs.ReasonChallengeTimeout,
		"stopped waiting for verification code after %d attempts", attempt).Wrap(ctx.Err())
}
