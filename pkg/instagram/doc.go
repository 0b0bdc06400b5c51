// Package instagram logs an account into Instagram's web front end and fetches data with the
// resulting session.
//
// This package includes:
//   - Transport, an HTTP client with an explicit proxy, optional Chrome TLS fingerprint and
//     response decompression
//   - Establisher, which bootstraps the CSRF token, submits credentials and hands checkpoints
//     to a ChallengeResolver
//   - ChallengeResolver and CodePoller, which request a verification code and wait for it to
//     appear in a CodeSource
//   - Feeds, the data feeds (HTML and JSON profile, reels, live, location) run by one generic executor
//
// Example usage:
//
//	t, err := instagram.NewTransport(instagram.Options{ProxyURL: "socks5://127.0.0.1:1080"}, log)
//	if err != nil {
//	    return err
//	}
//	ep := instagram.DefaultEndpoints()
//	resolver := instagram.NewChallengeResolver(t, ep, codes, instagram.ChallengeOptions{
//	    ResponseDelay: 3 * time.Second,
//	    Poll:          instagram.DefaultPollOptions(),
//	}, log)
//
//	sess, err := instagram.NewEstablisher(t, ep, resolver, log).Establish(ctx, instagram.Credentials{
//	    Username: "user",
//	    Password: "secret",
//	})
//	if err != nil {
//	    if errors.Is(err, errs.ErrInvalidCredentials) {
//	        // Handle wrong password
//	    }
//	    return err
//	}
//
//	feeds := instagram.NewFeeds(t, ep, log)
//	page, err := feeds.Location(ctx, sess, "213385402")
//	for cursor, ok := page.NextCursor().Get(); ok; cursor, ok = page.NextCursor().Get() {
//	    page, err = feeds.LocationMore(ctx, sess, "213385402", cursor)
//	    // Handle page
//	}
//
// Every error returned is a *errors.Error from pkg/errors; non-2xx responses are wrapped
// *StatusError values carrying the response body.
package instagram
