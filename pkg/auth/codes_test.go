package auth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"igfeed/pkg/config"
	errs "igfeed/pkg/errors"
	"igfeed/pkg/instagram"
	"igfeed/pkg/logger"
)

const codeStorePath = "/data/igfeed/codes.json"

func TestCacheCodeStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewCacheCodeStore(fs, codeStorePath, time.Minute)
	ctx := context.Background()

	code, err := store.Code(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, code, "no file yet")

	require.NoError(t, store.Put("alice", " 123456 "))
	require.NoError(t, store.Put("bob", "654321"))

	code, err = store.Code(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)

	code, err = store.Code(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, code, "a code is consumed by the read that returns it")

	code, err = store.Code(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "654321", code)

	assert.Error(t, store.Put("", "1"))
	assert.Error(t, store.Put("carol", " "))
}

func TestCacheCodeStoreSeesOtherWriters(t *testing.T) {
	fs := afero.NewMemMapFs()
	reader := NewCacheCodeStore(fs, codeStorePath, 0)
	ctx := context.Background()

	// the reader has already looked once before the code arrives
	code, err := reader.Code(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, code)

	writer := NewCacheCodeStore(fs, codeStorePath, 0)
	require.NoError(t, writer.Put("alice", "111111"))

	code, err = reader.Code(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "111111", code)
}

func TestCacheCodeStoreLifetime(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewCacheCodeStore(fs, codeStorePath, 10*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put("alice", "123456"))
	now = now.Add(11 * time.Minute)

	code, err := store.Code(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, code, "stale codes are dropped")

	require.NoError(t, store.Put("alice", "222222"))
	now = now.Add(9 * time.Minute)
	code, err = store.Code(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "222222", code)
}

func TestCacheCodeStoreClear(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewCacheCodeStore(fs, codeStorePath, 0)

	require.NoError(t, store.Clear("nobody"))
	require.NoError(t, store.Put("alice", "123456"))
	require.NoError(t, store.Clear("alice"))

	code, err := store.Code(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, code)
}

func TestKeyringCodeSource(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()

	code, err := KeyringCodeSource{}.Code(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, code)

	require.NoError(t, PutKeyringCode("alice", "333444"))
	code, err = KeyringCodeSource{}.Code(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "333444", code)

	code, err = KeyringCodeSource{}.Code(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, code)
}

func TestEnvCodeSource(t *testing.T) {
	src := NewEnvCodeSource()
	ctx := context.Background()

	t.Setenv(VerificationCodeEnv, "")
	code, err := src.Code(ctx, "anyone")
	require.NoError(t, err)
	assert.Empty(t, code)

	t.Setenv(VerificationCodeEnv, " 909090\n")
	code, err = src.Code(ctx, "anyone")
	require.NoError(t, err)
	assert.Equal(t, "909090", code)

	// the same value is not replayed into a later checkpoint
	code, err = src.Code(ctx, "anyone")
	require.NoError(t, err)
	assert.Empty(t, code)

	t.Setenv(VerificationCodeEnv, "121212")
	code, err = src.Code(ctx, "anyone")
	require.NoError(t, err)
	assert.Equal(t, "121212", code)
}

func TestPromptCodeSource(t *testing.T) {
	var out bytes.Buffer
	src := NewPromptCodeSourceFrom(strings.NewReader("12ab\n123456\n"), &out)
	ctx := context.Background()

	code, err := src.Code(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, code)
	assert.Contains(t, out.String(), "exactly 6 digits")

	code, err = src.Code(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)
	assert.Contains(t, out.String(), "verification code for alice")

	// input exhausted: stop prompting
	code, err = src.Code(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, code)
	assert.False(t, src.interactive)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewPromptCodeSourceFrom(strings.NewReader("123456\n"), &out).Code(cancelled, "alice")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPromptCodeSourceStopsWaitingOnDeadline(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	src := NewPromptCodeSourceFrom(pr, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := src.Code(ctx, "alice")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	// a line typed after the wait ended goes to the next prompt
	go func() { _, _ = io.WriteString(pw, "654321\n") }()
	code, err := src.Code(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "654321", code)
}

func TestPollWithPromptHonoursTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	poller := instagram.NewCodePoller(NewPromptCodeSourceFrom(pr, io.Discard),
		instagram.PollOptions{Interval: 10 * time.Millisecond, MaxAttempts: 1000, Timeout: 100 * time.Millisecond},
		logger.NewNopLogger())

	start := time.Now()
	_, err := poller.Poll(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrChallengeTimeout))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestIsValidCode(t *testing.T) {
	assert.True(t, IsValidCode("000000"))
	assert.True(t, IsValidCode("987654"))
	assert.False(t, IsValidCode("12345"))
	assert.False(t, IsValidCode("1234567"))
	assert.False(t, IsValidCode("12345a"))
	assert.False(t, IsValidCode("１２３４５６"))
}

func TestChainCodeSource(t *testing.T) {
	ctx := context.Background()
	failing := instagram.CodeSourceFunc(func(ctx context.Context, identity string) (string, error) {
		return "", errors.New("backend down")
	})
	empty := instagram.CodeSourceFunc(func(ctx context.Context, identity string) (string, error) {
		return "", nil
	})
	found := instagram.CodeSourceFunc(func(ctx context.Context, identity string) (string, error) {
		return " 424242 ", nil
	})
	never := instagram.CodeSourceFunc(func(ctx context.Context, identity string) (string, error) {
		t.Fatal("sources after the first code are not consulted")
		return "", nil
	})

	chain := NewChainCodeSource(failing, nil, empty, found, never)
	assert.Equal(t, 4, chain.Len())

	code, err := chain.Code(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "424242", code)

	code, err = NewChainCodeSource(empty, failing).Code(ctx, "alice")
	assert.Empty(t, code)
	assert.EqualError(t, err, "backend down")

	code, err = NewChainCodeSource(empty).Code(ctx, "alice")
	assert.NoError(t, err)
	assert.Empty(t, code)
}

func TestCodeSourceFromConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := config.ChallengeConfig{
		CodeStore:   codeStorePath,
		CodeSources: []string{"cache", "keyring", "env", "prompt", "cache"},
	}

	chain, err := CodeSourceFromConfig(fs, cfg, logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 4, chain.Len())

	cfg.CodeSources = []string{"cache", "carrier-pigeon"}
	_, err = CodeSourceFromConfig(fs, cfg, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestCachedCodeReachesPoller(t *testing.T) {
	t.Setenv(VerificationCodeEnv, "")
	fs := afero.NewMemMapFs()
	cfg := config.ChallengeConfig{CodeStore: codeStorePath, CodeSources: []string{"cache", "env"}}

	chain, err := CodeSourceFromConfig(fs, cfg, logger.NewNopLogger())
	require.NoError(t, err)

	identity := instagram.CodeIdentity("Alice.Example")
	require.NoError(t, NewCacheCodeStore(fs, codeStorePath, 0).Put(identity, "777888"))

	poller := instagram.NewCodePoller(chain, instagram.PollOptions{MaxAttempts: 5}, logger.NewNopLogger())
	code, err := poller.Poll(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, "777888", code)
}

func TestShowCodeDeliveryGuide(t *testing.T) {
	var out bytes.Buffer
	ShowCodeDeliveryGuide(&out, &instagram.ChallengeContext{
		Channel:      instagram.ChannelSMS,
		ContactPoint: "+1 ***-***-**42",
	}, "alice", []string{"cache", "env", "prompt"})

	text := out.String()
	assert.Contains(t, text, "Sent by SMS to +1 ***-***-**42")
	assert.Contains(t, text, "igfeed code set alice <code>")
	assert.Contains(t, text, VerificationCodeEnv)
	assert.Contains(t, text, "prompt")
	assert.NotContains(t, text, "keychain")

	out.Reset()
	ShowQuickCodeHint(&out, "alice")
	assert.Contains(t, out.String(), "igfeed code set alice")
}
