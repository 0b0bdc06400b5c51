package instagram

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igfeed/internal/igtest"
	errs "igfeed/pkg/errors"
)

func TestEstablishAuthenticated(t *testing.T) {
	f := newFixture(t)

	sess, err := f.establisher(nil, ChallengeOptions{}).Establish(context.Background(), Credentials{
		Username: testUser,
		Password: testPassword,
	})
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.False(t, sess.Empty())

	sid, ok := sess.Get("sessionid")
	assert.True(t, ok)
	assert.Equal(t, igtest.SessionID, sid)
	assert.Equal(t, igtest.CSRFToken, sess.CSRFToken())

	h := f.server.LastHeader("/accounts/login/ajax/")
	require.NotNil(t, h)
	assert.Equal(t, igtest.CSRFToken, h.Get("X-CSRFToken"))
	assert.Equal(t, f.endpoints.Base(), h.Get("Referer"))
	assert.NotEmpty(t, h.Get("X-Web-Device-Id"))
	assert.Contains(t, h.Get("Cookie"), "ig_cb=1")
}

func TestEstablishRejected(t *testing.T) {
	tests := []struct {
		name     string
		mode     igtest.LoginMode
		password string
		target   error
		reason   errs.Reason
	}{
		{"wrong password", igtest.LoginAuthenticate, "nope", errs.ErrInvalidCredentials, errs.ReasonInvalidCredentials},
		{"rate limited", igtest.LoginRateLimited, testPassword, errs.ErrRateLimited, errs.ReasonRateLimited},
		{"server error", igtest.LoginServerError, testPassword, errs.ErrAuth, errs.ReasonUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.server.SetLoginMode(tt.mode)

			sess, err := f.establisher(nil, ChallengeOptions{}).Establish(context.Background(), Credentials{
				Username: testUser,
				Password: tt.password,
			})
			require.Error(t, err)
			assert.Nil(t, sess)
			assert.True(t, errors.Is(err, tt.target))
			assert.Equal(t, tt.reason, errs.ReasonOf(err))
		})
	}
}

func TestEstablishMissingBootstrap(t *testing.T) {
	f := newFixture(t)
	f.server.BreakBootstrap()

	_, err := f.establisher(nil, ChallengeOptions{}).Establish(context.Background(), Credentials{
		Username: testUser,
		Password: testPassword,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrMissingBootstrap))
}

func TestBootstrapServerError(t *testing.T) {
	f := newFixture(t)
	f.server.SetErrorResponse("/", 503)

	_, err := NewEstablisher(f.transport, f.endpoints, nil, f.log).Bootstrap(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrMissingBootstrap))

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 503, e.Code)
}

func TestSubmitOutcomes(t *testing.T) {
	f := newFixture(t)
	est := NewEstablisher(f.transport, f.endpoints, nil, f.log)
	ctx := context.Background()
	creds := Credentials{Username: testUser, Password: testPassword}

	outcome := est.Submit(ctx, creds, igtest.CSRFToken)
	auth, ok := outcome.(*Authenticated)
	require.True(t, ok, "got %T", outcome)
	assert.Equal(t, igtest.UserID, auth.UserID)

	f.server.SetLoginMode(igtest.LoginCheckpoint)
	outcome = est.Submit(ctx, creds, igtest.CSRFToken)
	challenge, ok := outcome.(*ChallengeRequired)
	require.True(t, ok, "got %T", outcome)
	assert.Equal(t, igtest.ChallengePath, challenge.URL)
	_, ok = challenge.Session.Get("rur")
	assert.True(t, ok, "cookies set by the checkpoint response are kept")

	outcome = est.Submit(ctx, creds, "wrong-token")
	rejected, ok := outcome.(*Rejected)
	require.True(t, ok, "got %T", outcome)
	assert.Equal(t, errs.ReasonUnexpected, rejected.Err.Reason)
	assert.Equal(t, 403, rejected.Err.Code)
}

func TestEstablishCheckpointWithoutResolver(t *testing.T) {
	f := newFixture(t)
	f.server.SetLoginMode(igtest.LoginCheckpoint)

	_, err := NewEstablisher(f.transport, f.endpoints, nil, f.log).Establish(context.Background(), Credentials{
		Username: testUser,
		Password: testPassword,
	})
	require.Error(t, err)
	assert.Equal(t, errs.ReasonUnexpected, errs.ReasonOf(err))
}

func TestEstablishWithCheckpoint(t *testing.T) {
	f := newFixture(t)
	f.server.SetLoginMode(igtest.LoginCheckpoint)

	src := &countingSource{emptyPolls: 5, code: "123456"}
	var states []ChallengeState
	var seen *ChallengeContext

	est := f.establisher(src, ChallengeOptions{
		Poll: fastPoll(1000),
		Observer: func(ev ChallengeEvent) {
			states = append(states, ev.State)
			if ev.Context != nil {
				seen = ev.Context
			}
		},
	})

	sess, err := est.Establish(context.Background(), Credentials{Username: testUser, Password: testPassword})
	require.NoError(t, err)
	sid, ok := sess.Get("sessionid")
	assert.True(t, ok)
	assert.Equal(t, igtest.SessionID, sid)

	assert.Equal(t, []ChallengeState{ChallengeFetched, ChallengeCodeSent, ChallengeCodeObtained, ChallengeSubmitted}, states)
	assert.Equal(t, 6, src.Calls())
	assert.Equal(t, "test.user", src.identities[0])
	assert.Equal(t, 1, f.server.CodeRequests())
	assert.Equal(t, 1, f.server.CodeSubmissions())

	require.NotNil(t, seen)
	assert.Equal(t, ChannelEmail, seen.Channel)
	assert.Equal(t, igtest.MaskedEmail, seen.ContactPoint)
	assert.True(t, f.log.HasMessage("challenge state changed"))
}

func TestEstablishCheckpointWrongCode(t *testing.T) {
	f := newFixture(t)
	f.server.SetLoginMode(igtest.LoginCheckpoint)

	est := f.establisher(&countingSource{code: "000000"}, ChallengeOptions{Poll: fastPoll(10)})
	_, err := est.Establish(context.Background(), Credentials{Username: testUser, Password: testPassword})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidCode))
}

func TestEstablishCheckpointNoCode(t *testing.T) {
	f := newFixture(t)
	f.server.SetLoginMode(igtest.LoginCheckpoint)

	src := &countingSource{emptyPolls: 1 << 30}
	est := f.establisher(src, ChallengeOptions{Poll: fastPoll(1000)})

	sess, err := est.Establish(context.Background(), Credentials{Username: testUser, Password: testPassword})
	require.Error(t, err)
	assert.Nil(t, sess)
	assert.True(t, errors.Is(err, errs.ErrChallengeTimeout))
	assert.Equal(t, 1000, src.Calls())
	assert.Equal(t, 0, f.server.CodeSubmissions())
}
