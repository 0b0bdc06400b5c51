// Package retry provides backoff and retry helpers for caller-side handling of
// transient fetch failures, plus the context-aware Wait used by the challenge
// protocol for its response delay and code polling.
//
// The session and feed packages never retry on their own. A caller decides:
//
//	page, err := retry.DoWithResult(func() (*instagram.LocationPage, error) {
//		return feeds.Location(ctx, sess, id)
//	}, retry.FromConfig(ctx, cfg.Retry, log))
//
// DefaultRetryIf only retries errors that errors.IsRetryable accepts.
package retry
