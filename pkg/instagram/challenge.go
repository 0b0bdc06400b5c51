package instagram

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"igfeed/pkg/config"
	errs "igfeed/pkg/errors"
	"igfeed/pkg/extract"
	"igfeed/pkg/logger"
	"igfeed/pkg/retry"
	"igfeed/pkg/session"
)

// ChallengeState is a step of the checkpoint protocol
type ChallengeState int

const (
	ChallengePending ChallengeState = iota
	ChallengeFetched
	ChallengeCodeSent
	ChallengeCodeObtained
	ChallengeSubmitted
)

func (s ChallengeState) String() string {
	switch s {
	case ChallengePending:
		return "PENDING"
	case ChallengeFetched:
		return "FETCHED"
	case ChallengeCodeSent:
		return "CODE_SENT"
	case ChallengeCodeObtained:
		return "CODE_OBTAINED"
	case ChallengeSubmitted:
		return "SUBMITTED"
	default:
		return "UNKNOWN"
	}
}

// DeliveryChannel is how the service sends the verification code
type DeliveryChannel string

const (
	ChannelSMS   DeliveryChannel = "sms"
	ChannelEmail DeliveryChannel = "email"
)

// choice form values understood by the challenge form
const (
	choiceSMS   = "0"
	choiceEmail = "1"
)

// ChallengeContext is what the challenge page tells us about the pending verification
type ChallengeContext struct {
	URL          string          `json:"url"`
	ForwardURL   string          `json:"forward_url"`
	ReplayURL    string          `json:"replay_url,omitempty"`
	Type         string          `json:"type,omitempty"`
	Choice       string          `json:"choice"`
	Channel      DeliveryChannel `json:"channel"`
	ContactPoint string          `json:"contact_point,omitempty"`
	CSRFToken    string          `json:"-"`
	RolloutHash  string          `json:"-"`
}

// ChallengeEvent is reported to the observer on every state transition. Context is set once the
// challenge page has been read; Identity is set for the code steps.
type ChallengeEvent struct {
	State    ChallengeState
	Context  *ChallengeContext
	Identity string
}

// ChallengeOptions configures a ChallengeResolver
type ChallengeOptions struct {
	// ResponseDelay is waited before each POST, like a person reading the page
	ResponseDelay time.Duration
	Poll          PollOptions
	Observer      func(ChallengeEvent)
}

// ChallengeOptionsFromConfig maps the challenge section of the configuration
func ChallengeOptionsFromConfig(cfg config.ChallengeConfig) ChallengeOptions {
	return ChallengeOptions{
		ResponseDelay: cfg.ResponseDelay,
		Poll: PollOptions{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.MaxPollAttempts,
			Timeout:     cfg.PollTimeout,
		},
	}
}

// ChallengeResolver drives the checkpoint verification for an in-flight session
type ChallengeResolver struct {
	transport *Transport
	endpoints Endpoints
	poller    *CodePoller
	delay     time.Duration
	observer  func(ChallengeEvent)
	logger    logger.Logger
}

// NewChallengeResolver creates a resolver that obtains codes from src
func NewChallengeResolver(t *Transport, ep Endpoints, src CodeSource, opts ChallengeOptions, log logger.Logger) *ChallengeResolver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &ChallengeResolver{
		transport: t,
		endpoints: ep,
		poller:    NewCodePoller(src, opts.Poll, log),
		delay:     opts.ResponseDelay,
		observer:  opts.Observer,
		logger:    log,
	}
}

// Resolve fetches the challenge, asks for a code, waits for it and submits it.
// It returns the same session, now authenticated.
func (r *ChallengeResolver) Resolve(ctx context.Context, sess *session.Session, challengeURL, identity string) (*session.Session, error) {
	cc, err := r.FetchChallengeContent(ctx, sess, challengeURL)
	if err != nil {
		return nil, err
	}
	if err := r.RequestCodeDelivery(ctx, sess, cc); err != nil {
		return nil, err
	}
	code, err := r.PollForCode(ctx, identity)
	if err != nil {
		return nil, err
	}
	return r.SubmitCode(ctx, sess, cc, code)
}

// FetchChallengeContent reads the challenge page with the in-flight session
func (r *ChallengeResolver) FetchChallengeContent(ctx context.Context, sess *session.Session, challengeURL string) (*ChallengeContext, error) {
	abs, err := r.endpoints.Resolve(challengeURL)
	if err != nil {
		return nil, errs.NewAuth(errs.ReasonChallengeUnread, "invalid challenge URL").Wrap(err)
	}

	resp, err := r.transport.Do(ctx, Request{
		Method:  http.MethodGet,
		URL:     abs,
		Header:  r.headers(sess.CSRFToken(), "", r.endpoints.Base()),
		Session: sess,
	})
	if err != nil {
		var se *StatusError
		if stderrors.As(err, &se) {
			return nil, errs.NewAuth(errs.ReasonChallengeUnread, "challenge page returned status %d", se.StatusCode).
				WithCode(se.StatusCode).Wrap(err)
		}
		return nil, errs.NewAuth(errs.ReasonUnexpected, "failed to fetch challenge page").Wrap(err)
	}

	cc, err := parseChallenge(resp.Body, abs, sess.CSRFToken(), r.endpoints)
	if err != nil {
		return nil, errs.NewAuth(errs.ReasonChallengeUnread, "unable to read challenge page").Wrap(err)
	}

	r.notify(ChallengeEvent{State: ChallengeFetched, Context: cc})
	return cc, nil
}

// RequestCodeDelivery asks the service to send the code over the channel of the challenge
func (r *ChallengeResolver) RequestCodeDelivery(ctx context.Context, sess *session.Session, cc *ChallengeContext) error {
	if err := retry.Wait(ctx, r.delay); err != nil {
		return errs.NewAuth(errs.ReasonUnexpected, "interrupted before requesting a verification code").Wrap(err)
	}

	form := url.Values{}
	form.Set("choice", cc.Choice)

	if _, err := r.post(ctx, sess, cc, cc.ForwardURL, form); err != nil {
		return errs.NewAuth(errs.ReasonUnexpected, "failed to request a verification code").
			WithCode(statusOf(err)).Wrap(err)
	}

	r.notify(ChallengeEvent{State: ChallengeCodeSent, Context: cc})
	return nil
}

// ResendCode asks for the code to be delivered again
func (r *ChallengeResolver) ResendCode(ctx context.Context, sess *session.Session, cc *ChallengeContext) error {
	if cc.ReplayURL == "" {
		return errs.NewAuth(errs.ReasonUnexpected, "challenge has no replay URL")
	}
	if _, err := r.post(ctx, sess, cc, cc.ReplayURL, url.Values{}); err != nil {
		return errs.NewAuth(errs.ReasonUnexpected, "failed to resend the verification code").
			WithCode(statusOf(err)).Wrap(err)
	}
	r.logger.InfoWithFields("verification code resent", map[string]interface{}{"channel": string(cc.Channel)})
	return nil
}

// PollForCode waits for the code of identity from the configured source
func (r *ChallengeResolver) PollForCode(ctx context.Context, identity string) (string, error) {
	code, err := r.poller.Poll(ctx, identity)
	if err != nil {
		return "", err
	}
	r.notify(ChallengeEvent{State: ChallengeCodeObtained, Identity: identity})
	return code, nil
}

// SubmitCode posts the verification code. On acceptance the session carries the authentication cookies.
func (r *ChallengeResolver) SubmitCode(ctx context.Context, sess *session.Session, cc *ChallengeContext, code string) (*session.Session, error) {
	if err := retry.Wait(ctx, r.delay); err != nil {
		return nil, errs.NewAuth(errs.ReasonUnexpected, "interrupted before submitting the verification code").Wrap(err)
	}

	form := url.Values{}
	form.Set("security_code", code)

	resp, err := r.post(ctx, sess, cc, cc.ForwardURL, form)
	if err != nil {
		var se *StatusError
		if stderrors.As(err, &se) && se.StatusCode < 500 {
			return nil, errs.NewAuth(errs.ReasonInvalidCode, "invalid or expired verification code").
				WithCode(se.StatusCode).Wrap(err)
		}
		return nil, errs.NewAuth(errs.ReasonUnexpected, "failed to submit the verification code").
			WithCode(statusOf(err)).Wrap(err)
	}

	var result struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, errs.NewAuth(errs.ReasonUnexpected, "unreadable verification response").Wrap(err)
	}
	if result.Status != "ok" {
		msg := "invalid or expired verification code"
		if result.Message != "" {
			msg += ": " + result.Message
		}
		return nil, errs.NewAuth(errs.ReasonInvalidCode, "%s", msg)
	}

	r.notify(ChallengeEvent{State: ChallengeSubmitted, Context: cc})
	return sess, nil
}

func (r *ChallengeResolver) post(ctx context.Context, sess *session.Session, cc *ChallengeContext, target string, form url.Values) (*Response, error) {
	csrf := sess.CSRFToken()
	if csrf == "" {
		csrf = cc.CSRFToken
	}
	return r.transport.Do(ctx, Request{
		Method:  http.MethodPost,
		URL:     target,
		Header:  r.headers(csrf, cc.RolloutHash, cc.URL),
		Form:    form,
		Session: sess,
	})
}

func (r *ChallengeResolver) headers(csrf, rollout, referer string) http.Header {
	h := http.Header{}
	h.Set("Referer", referer)
	h.Set("X-Requested-With", "XMLHttpRequest")
	if csrf != "" {
		h.Set("X-CSRFToken", csrf)
	}
	if rollout != "" {
		h.Set("X-Instagram-AJAX", rollout)
	}
	return h
}

func (r *ChallengeResolver) notify(ev ChallengeEvent) {
	fields := map[string]interface{}{}
	if ev.Context != nil {
		fields["channel"] = string(ev.Context.Channel)
		if ev.Context.ContactPoint != "" {
			fields["contact_point"] = ev.Context.ContactPoint
		}
	}
	if ev.Identity != "" {
		fields["identity"] = ev.Identity
	}
	logger.LogChallengeState(r.logger, ev.State.String(), fields)

	if r.observer != nil {
		r.observer(ev)
	}
}

func parseChallenge(page []byte, challengeURL, sessionCSRF string, ep Endpoints) (*ChallengeContext, error) {
	payload, err := extract.Extract(page, extract.SharedData)
	if err != nil {
		return nil, err
	}
	challenge, err := extract.Lookup(payload, "entry_data", "Challenge", "[0]")
	if err != nil {
		return nil, err
	}

	cc := &ChallengeContext{URL: challengeURL, Choice: choiceEmail}

	cc.Type, _ = extract.String(challenge, "challengeType")
	if choice, err := extract.Lookup(challenge, "fields", "choice"); err == nil {
		cc.Choice = strings.Trim(string(choice), `"`)
	}
	cc.Channel = ChannelEmail
	if cc.Choice == choiceSMS {
		cc.Channel = ChannelSMS
	}

	for _, key := range []string{"contact_point", "email", "phone_number"} {
		if v, err := extract.String(challenge, "fields", key); err == nil && v != "" {
			cc.ContactPoint = v
			break
		}
	}

	cc.ForwardURL = challengeURL
	if forward, err := extract.String(challenge, "navigation", "forward"); err == nil && forward != "" {
		if abs, err := ep.Resolve(forward); err == nil {
			cc.ForwardURL = abs
		}
	}
	if replay, err := extract.String(challenge, "navigation", "replay"); err == nil && replay != "" {
		if abs, err := ep.Resolve(replay); err == nil {
			cc.ReplayURL = abs
		}
	}

	cc.CSRFToken, _ = extract.String(payload, "config", "csrf_token")
	if cc.CSRFToken == "" {
		cc.CSRFToken = sessionCSRF
	}
	cc.RolloutHash, _ = extract.String(payload, "rollout_hash")

	return cc, nil
}

func statusOf(err error) int {
	var se *StatusError
	if stderrors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
