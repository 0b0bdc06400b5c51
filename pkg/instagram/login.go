package instagram

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	errs "igfeed/pkg/errors"
	"igfeed/pkg/extract"
	"igfeed/pkg/logger"
	"igfeed/pkg/session"
)

// Credentials are the login and password of one account
type Credentials struct {
	Username string
	Password string
}

// LoginOutcome is the result of submitting credentials: *Authenticated, *ChallengeRequired or *Rejected
type LoginOutcome interface {
	loginOutcome()
}

// Authenticated means the service accepted the credentials
type Authenticated struct {
	Session *session.Session
	UserID  string
}

// ChallengeRequired means the service wants the login verified before it issues a session
type ChallengeRequired struct {
	Session *session.Session
	URL     string
}

// Rejected means the attempt failed for good
type Rejected struct {
	Err *errs.Error
}

func (*Authenticated) loginOutcome()     {}
func (*ChallengeRequired) loginOutcome() {}
func (*Rejected) loginOutcome()          {}

type loginResponse struct {
	Authenticated bool   `json:"authenticated"`
	User          bool   `json:"user"`
	UserID        string `json:"userId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	ErrorType     string `json:"error_type"`
	CheckpointURL string `json:"checkpoint_url"`
}

// Establisher logs an account in and returns its session
type Establisher struct {
	transport *Transport
	endpoints Endpoints
	resolver  *ChallengeResolver
	deviceID  string
	logger    logger.Logger
	now       func() time.Time
}

// NewEstablisher creates an Establisher. resolver may be nil, in which case a checkpoint fails the login.
func NewEstablisher(t *Transport, ep Endpoints, resolver *ChallengeResolver, log logger.Logger) *Establisher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Establisher{
		transport: t,
		endpoints: ep,
		resolver:  resolver,
		deviceID:  uuid.NewString(),
		logger:    log,
		now:       time.Now,
	}
}

// Establish runs the whole login: bootstrap, credential submission and, when asked for, the checkpoint
func (e *Establisher) Establish(ctx context.Context, creds Credentials) (*session.Session, error) {
	log := e.logger.WithFields(map[string]interface{}{
		"attempt":  uuid.NewString(),
		"username": creds.Username,
	})
	log.Info("logging in")

	csrf, err := e.Bootstrap(ctx)
	if err != nil {
		log.WithError(err).Warn("bootstrap failed")
		return nil, err
	}

	switch outcome := e.Submit(ctx, creds, csrf).(type) {
	case *Authenticated:
		log.InfoWithFields("login succeeded", map[string]interface{}{"user_id": outcome.UserID})
		return outcome.Session, nil

	case *ChallengeRequired:
		log.InfoWithFields("checkpoint required", map[string]interface{}{"url": outcome.URL})
		if e.resolver == nil {
			return nil, errs.NewAuth(errs.ReasonUnexpected, "checkpoint required but no challenge resolver configured")
		}
		sess, err := e.resolver.Resolve(ctx, outcome.Session, outcome.URL, CodeIdentity(creds.Username))
		if err != nil {
			log.WithError(err).Warn("checkpoint failed")
			return nil, err
		}
		log.Info("checkpoint passed")
		return sess, nil

	case *Rejected:
		log.WithError(outcome.Err).Warn("login rejected")
		return nil, outcome.Err

	default:
		return nil, errs.NewAuth(errs.ReasonUnexpected, "unknown login outcome %T", outcome)
	}
}

// Bootstrap fetches the home page anonymously and returns the CSRF token from its embedded configuration
func (e *Establisher) Bootstrap(ctx context.Context) (string, error) {
	resp, err := e.transport.Do(ctx, Request{
		Method: http.MethodGet,
		URL:    e.endpoints.Base(),
		Header: http.Header{"Accept": []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"}},
	})
	if err != nil {
		return "", errs.NewAuth(errs.ReasonMissingBootstrap, "unable to load the home page").
			WithCode(statusOf(err)).Wrap(err)
	}

	payload, err := extract.Extract(resp.Body, extract.SharedData)
	if err != nil {
		return "", errs.NewAuth(errs.ReasonMissingBootstrap, "unable to extract JSON data").Wrap(err)
	}
	csrf, err := extract.String(payload, "config", "csrf_token")
	if err != nil || csrf == "" {
		return "", errs.NewAuth(errs.ReasonMissingBootstrap, "home page carries no csrf token").Wrap(err)
	}
	return csrf, nil
}

// Submit posts the credentials with a fresh session seeded with the CSRF token
func (e *Establisher) Submit(ctx context.Context, creds Credentials, csrf string) LoginOutcome {
	sess := session.New()
	domain := e.endpoints.CookieDomain()
	sess.Set(session.Cookie{Name: "ig_cb", Value: "1", Domain: domain})
	sess.Set(session.Cookie{Name: session.CSRFCookie, Value: csrf, Domain: domain})

	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("enc_password", fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", e.now().Unix(), creds.Password))
	form.Set("queryParams", "{}")
	form.Set("optIntoOneTap", "false")

	header := http.Header{}
	header.Set("Referer", e.endpoints.Base())
	header.Set("Origin", e.endpoints.Web)
	header.Set("X-CSRFToken", csrf)
	header.Set("X-Requested-With", "XMLHttpRequest")
	header.Set("X-IG-App-ID", e.transport.AppID())
	header.Set("X-Web-Device-Id", e.deviceID)

	resp, err := e.transport.Do(ctx, Request{
		Method:  http.MethodPost,
		URL:     e.endpoints.Login(),
		Header:  header,
		Form:    form,
		Session: sess,
	})
	if err != nil {
		return e.classifyFailure(sess, err)
	}

	var lr loginResponse
	if err := json.Unmarshal(resp.Body, &lr); err != nil {
		return &Rejected{Err: errs.NewAuth(errs.ReasonUnexpected, "unreadable login response").
			WithCode(resp.StatusCode).Wrap(err)}
	}

	switch {
	case lr.Authenticated:
		return &Authenticated{Session: sess, UserID: lr.UserID}
	case lr.ErrorType == "generic_request_error":
		return &Rejected{Err: errs.NewAuth(errs.ReasonRateLimited,
			"generic error, your IP may be blocked by Instagram; consider using a proxy")}
	default:
		return &Rejected{Err: errs.NewAuth(errs.ReasonInvalidCredentials, "wrong login or password")}
	}
}

func (e *Establisher) classifyFailure(sess *session.Session, err error) LoginOutcome {
	var se *StatusError
	if !stderrors.As(err, &se) {
		return &Rejected{Err: errs.NewAuth(errs.ReasonUnexpected, "login request failed: %v", err).Wrap(err)}
	}

	if se.StatusCode >= 400 && se.StatusCode < 500 {
		var lr loginResponse
		if json.Unmarshal(se.Body, &lr) == nil && lr.Message == "checkpoint_required" && lr.CheckpointURL != "" {
			return &ChallengeRequired{Session: sess, URL: lr.CheckpointURL}
		}
	}

	return &Rejected{Err: errs.NewAuth(errs.ReasonUnexpected, "unknown error: %s", truncate(string(se.Body), 200)).
		WithCode(se.StatusCode).Wrap(err)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
