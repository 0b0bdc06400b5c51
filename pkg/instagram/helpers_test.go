package instagram

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"igfeed/internal/igtest"
	"igfeed/pkg/logger"
	"igfeed/pkg/session"
)

const (
	testUser     = "test.user"
	testPassword = "s3cret!"
)

type fixture struct {
	server    *igtest.Server
	transport *Transport
	endpoints Endpoints
	log       *logger.TestLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	srv := igtest.NewServer(t, testUser, testPassword)
	log := logger.NewTestLogger()

	tr, err := NewTransport(Options{HTTPClient: srv.Client()}, log)
	require.NoError(t, err)

	return &fixture{
		server:    srv,
		transport: tr,
		endpoints: NewEndpoints(srv.URL(), srv.URL()),
		log:       log,
	}
}

func (f *fixture) establisher(src CodeSource, opts ChallengeOptions) *Establisher {
	resolver := NewChallengeResolver(f.transport, f.endpoints, src, opts, f.log)
	return NewEstablisher(f.transport, f.endpoints, resolver, f.log)
}

func (f *fixture) feeds() *Feeds {
	return NewFeeds(f.transport, f.endpoints, f.log)
}

// login returns an authenticated session against the fake
func (f *fixture) login(t *testing.T) *session.Session {
	t.Helper()
	sess, err := f.establisher(nil, ChallengeOptions{}).Establish(context.Background(), Credentials{
		Username: testUser,
		Password: testPassword,
	})
	require.NoError(t, err)
	return sess
}

// countingSource returns code once it has been asked more than emptyPolls times
type countingSource struct {
	mu         sync.Mutex
	emptyPolls int
	code       string
	calls      int
	identities []string
}

func (c *countingSource) Code(ctx context.Context, identity string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.identities = append(c.identities, identity)
	if c.calls > c.emptyPolls {
		return c.code, nil
	}
	return "", nil
}

func (c *countingSource) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fastPoll polls without waiting between attempts
func fastPoll(attempts int) PollOptions {
	return PollOptions{Interval: 0, MaxAttempts: attempts}
}
