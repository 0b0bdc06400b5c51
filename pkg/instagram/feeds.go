package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/mo"
	errs "igfeed/pkg/errors"
	"igfeed/pkg/extract"
	"igfeed/pkg/logger"
	"igfeed/pkg/session"
)

// Feed names as they appear in logs
const (
	FeedProfileHTML  = "profile_html"
	FeedProfileJSON  = "profile_json"
	FeedReels        = "reels"
	FeedLive         = "live"
	FeedLocation     = "location"
	FeedLocationMore = "location_more"
)

// feed describes one fetch-and-parse operation. runFeed executes every descriptor the same way.
type feed[T any] struct {
	name     string
	resource string
	method   string
	url      string
	form     url.Values
	// xhr adds the CSRF and app id headers of in-page API calls
	xhr            bool
	requireSession bool
	// mapStatus turns a non-2xx response into the feed's error
	mapStatus func(*StatusError) *errs.Error
	parse     func(body []byte) (T, error)
}

// Feeds fetches Instagram resources with an established session
type Feeds struct {
	transport *Transport
	endpoints Endpoints
	logger    logger.Logger
}

// NewFeeds creates the feed family over a transport
func NewFeeds(t *Transport, ep Endpoints, log logger.Logger) *Feeds {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Feeds{transport: t, endpoints: ep, logger: log}
}

func runFeed[T any](ctx context.Context, f *Feeds, sess *session.Session, d feed[T]) (T, error) {
	start := time.Now()
	result, err := execute(ctx, f, sess, d)
	logger.LogFetch(f.logger, d.name, d.resource, err, time.Since(start))
	return result, err
}

func execute[T any](ctx context.Context, f *Feeds, sess *session.Session, d feed[T]) (T, error) {
	var zero T

	if d.requireSession && sess.Empty() {
		return zero, errs.NewFetch(errs.ReasonUnauthenticated, "%s requires an authenticated session", d.name)
	}

	header := http.Header{}
	if d.xhr {
		header.Set("X-Requested-With", "XMLHttpRequest")
		header.Set("X-IG-App-ID", f.transport.AppID())
		if sess != nil {
			if csrf := sess.CSRFToken(); csrf != "" {
				header.Set("X-CSRFToken", csrf)
			}
		}
		header.Set("Accept", "*/*")
	} else {
		header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}

	req := Request{Method: d.method, URL: d.url, Header: header, Form: d.form}
	if !sess.Empty() {
		req.Session = sess
	}

	resp, err := f.transport.Do(ctx, req)
	if err != nil {
		var se *StatusError
		if stderrors.As(err, &se) {
			return zero, d.mapStatus(se).WithCode(se.StatusCode).Wrap(err)
		}
		return zero, errs.NewFetch(errs.ReasonInternal, "internal error: %v", err).Wrap(err)
	}

	return d.parse(resp.Body)
}

// ProfileHTML fetches the public profile page of username and reads the user object embedded in it.
// The session is optional.
func (f *Feeds) ProfileHTML(ctx context.Context, sess *session.Session, username string) (*Profile, error) {
	return runFeed(ctx, f, sess, feed[*Profile]{
		name:     FeedProfileHTML,
		resource: username,
		method:   http.MethodGet,
		url:      f.endpoints.Profile(username),
		mapStatus: func(se *StatusError) *errs.Error {
			if se.StatusCode == http.StatusNotFound {
				return errs.NewFetch(errs.ReasonNotFound, "user %s not found", username)
			}
			return errs.NewFetch(errs.ReasonInternal, "internal error: %s", se.Error())
		},
		parse: parseProfilePage,
	})
}

// ProfileJSON fetches a user's profile from the private API by numeric id
func (f *Feeds) ProfileJSON(ctx context.Context, sess *session.Session, userID int64) (*UserInfo, error) {
	id := strconv.FormatInt(userID, 10)
	return runFeed(ctx, f, sess, feed[*UserInfo]{
		name:           FeedProfileJSON,
		resource:       id,
		method:         http.MethodGet,
		url:            f.endpoints.UserInfo(userID),
		xhr:            true,
		requireSession: true,
		mapStatus:      noDataStatus,
		parse: func(body []byte) (*UserInfo, error) {
			user, err := extract.Lookup(body, "user")
			if err != nil {
				return nil, errs.NewFetch(errs.ReasonNoData, "fetch error: no user in response").Wrap(err)
			}
			var info UserInfo
			if err := json.Unmarshal(user, &info); err != nil {
				return nil, errs.NewParse(errs.ReasonInvalidJSON, "cannot decode user").Wrap(err)
			}
			info.Raw = user
			return &info, nil
		},
	})
}

// Reels fetches one page of a user's clips. Pass the previous page's NextCursor to continue.
func (f *Feeds) Reels(ctx context.Context, sess *session.Session, userID int64, cursor mo.Option[string]) (*ReelsPage, error) {
	id := strconv.FormatInt(userID, 10)

	form := url.Values{}
	form.Set("target_user_id", id)
	form.Set("page_size", strconv.Itoa(ReelsPageSize))
	if maxID, ok := cursor.Get(); ok && maxID != "" {
		form.Set("max_id", maxID)
	}

	return runFeed(ctx, f, sess, feed[*ReelsPage]{
		name:           FeedReels,
		resource:       id,
		method:         http.MethodPost,
		url:            f.endpoints.Reels(),
		form:           form,
		xhr:            true,
		requireSession: true,
		mapStatus:      noDataStatus,
		parse: func(body []byte) (*ReelsPage, error) {
			if isNull(body) {
				return nil, errs.NewFetch(errs.ReasonNoData, "fetch error: empty response")
			}
			var page ReelsPage
			if err := json.Unmarshal(body, &page); err != nil {
				return nil, errs.NewFetch(errs.ReasonNoData, "fetch error: unreadable response").Wrap(err)
			}
			page.Raw = body
			return &page, nil
		},
	})
}

// Live fetches the broadcast status of username. An account that is not live yields a no_live_stream error.
func (f *Feeds) Live(ctx context.Context, sess *session.Session, username string) (*LiveStream, error) {
	return runFeed(ctx, f, sess, feed[*LiveStream]{
		name:           FeedLive,
		resource:       username,
		method:         http.MethodGet,
		url:            f.endpoints.Live(username),
		xhr:            true,
		requireSession: true,
		mapStatus: func(se *StatusError) *errs.Error {
			if se.StatusCode >= 500 {
				return errs.NewFetch(errs.ReasonInternal, "internal error: %s", se.Error())
			}
			return errs.NewFetch(errs.ReasonNoLiveStream, "no live streaming found for %s", username)
		},
		parse: func(body []byte) (*LiveStream, error) {
			if isNull(body) {
				return nil, errs.NewFetch(errs.ReasonNoLiveStream, "no live streaming found for %s", username)
			}
			var live LiveStream
			if err := json.Unmarshal(body, &live); err != nil {
				return nil, errs.NewFetch(errs.ReasonNoLiveStream, "no live streaming found for %s", username).Wrap(err)
			}
			live.Raw = body
			return &live, nil
		},
	})
}

// Location fetches the first page of a location
func (f *Feeds) Location(ctx context.Context, sess *session.Session, locationID string) (*LocationPage, error) {
	return runFeed(ctx, f, sess, feed[*LocationPage]{
		name:           FeedLocation,
		resource:       locationID,
		method:         http.MethodGet,
		url:            f.endpoints.Location(locationID),
		requireSession: true,
		mapStatus:      locationStatus(locationID),
		parse: func(body []byte) (*LocationPage, error) {
			payload, err := extract.Extract(body, extract.SharedData)
			if err != nil {
				return nil, err
			}
			return parseLocation(payload, "entry_data", "LocationsPage", "[0]", "graphql", "location")
		},
	})
}

// LocationMore fetches the page of a location that follows cursor
func (f *Feeds) LocationMore(ctx context.Context, sess *session.Session, locationID, cursor string) (*LocationPage, error) {
	return runFeed(ctx, f, sess, feed[*LocationPage]{
		name:           FeedLocationMore,
		resource:       locationID,
		method:         http.MethodGet,
		url:            f.endpoints.LocationMore(locationID, cursor),
		xhr:            true,
		requireSession: true,
		mapStatus:      locationStatus(locationID),
		parse: func(body []byte) (*LocationPage, error) {
			return parseLocation(body, "graphql", "location")
		},
	})
}

func parseProfilePage(body []byte) (*Profile, error) {
	user, err := lookupEmbedded(body, extract.SharedData, "entry_data", "ProfilePage", "[0]", "graphql", "user")
	if err != nil {
		var fallbackErr error
		user, fallbackErr = lookupEmbedded(body, extract.AdditionalDataLoaded, "graphql", "user")
		if fallbackErr != nil {
			return nil, err
		}
	}

	var profile Profile
	if err := json.Unmarshal(user, &profile); err != nil {
		return nil, errs.NewParse(errs.ReasonInvalidJSON, "cannot decode user").Wrap(err)
	}
	profile.Raw = user
	return &profile, nil
}

func lookupEmbedded(page []byte, anchor extract.Anchor, path ...string) (json.RawMessage, error) {
	payload, err := extract.Extract(page, anchor)
	if err != nil {
		return nil, err
	}
	return extract.Lookup(payload, path...)
}

func parseLocation(payload []byte, path ...string) (*LocationPage, error) {
	raw, err := extract.Lookup(payload, path...)
	if err != nil {
		return nil, err
	}

	var loc Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, errs.NewParse(errs.ReasonInvalidJSON, "cannot decode location").Wrap(err)
	}

	info := loc.EdgeLocationToMedia.PageInfo
	return &LocationPage{
		Location:  loc,
		EndCursor: info.EndCursor,
		HasNext:   info.HasNextPage,
		Raw:       raw,
	}, nil
}

func noDataStatus(se *StatusError) *errs.Error {
	return errs.NewFetch(errs.ReasonNoData, "fetch error: %s", se.Error())
}

func locationStatus(locationID string) func(*StatusError) *errs.Error {
	return func(se *StatusError) *errs.Error {
		if se.StatusCode == http.StatusNotFound {
			return errs.NewFetch(errs.ReasonNotFound, "location %s not found", locationID)
		}
		return errs.NewFetch(errs.ReasonInternal, "internal error: %s", se.Error())
	}
}

func isNull(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
