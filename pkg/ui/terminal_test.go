package ui

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igfeed/pkg/instagram"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetColor(false)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetQuietMode(false)
		SetColor(true)
	})
	return &buf
}

func TestPrintHelpers(t *testing.T) {
	buf := capture(t)

	PrintInfo("Profile", "instagram")
	PrintSuccess("done")
	PrintWarning("slow", "rate limited")
	PrintError("failed", "boom")

	assert.Equal(t, "Profile: instagram\ndone\nslow: rate limited\nfailed: boom\n", buf.String())
}

func TestQuietModeKeepsErrors(t *testing.T) {
	buf := capture(t)
	SetQuietMode(true)

	PrintLogo()
	PrintInfo("a", "b")
	PrintHighlight("hi")
	PrintError("still shown")

	assert.Equal(t, "still shown\n", buf.String())
}

func TestColors(t *testing.T) {
	capture(t)
	assert.Equal(t, "x", Red("x"))

	SetColor(true)
	assert.Equal(t, "\033[31mx\033[0m", Red("x"))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]interface{}{"url": "https://x/?a=1&b=2"}))
	assert.Equal(t, "{\n  \"url\": \"https://x/?a=1&b=2\"\n}\n", buf.String())
}

func TestChallengeTracker(t *testing.T) {
	buf := capture(t)

	var sent *instagram.ChallengeContext
	tracker := NewChallengeTracker(func(cc *instagram.ChallengeContext) { sent = cc })
	cc := &instagram.ChallengeContext{Channel: instagram.ChannelEmail, ContactPoint: "a***@x.com"}

	tracker.Observe(instagram.ChallengeEvent{State: instagram.ChallengeFetched, Context: cc})
	tracker.Observe(instagram.ChallengeEvent{State: instagram.ChallengeCodeSent, Context: cc})
	tracker.Observe(instagram.ChallengeEvent{State: instagram.ChallengeCodeObtained, Identity: "alice"})
	tracker.Observe(instagram.ChallengeEvent{State: instagram.ChallengeSubmitted, Context: cc})

	assert.Same(t, cc, sent)
	assert.Equal(t, []instagram.ChallengeState{
		instagram.ChallengeFetched,
		instagram.ChallengeCodeSent,
		instagram.ChallengeCodeObtained,
		instagram.ChallengeSubmitted,
	}, tracker.States())

	out := buf.String()
	assert.Contains(t, out, "[FETCHED] security checkpoint detected")
	assert.Contains(t, out, "[CODE_SENT] code sent by email to a***@x.com")
	assert.Contains(t, out, "[SUBMITTED] checkpoint cleared")
}

func TestStatusTracker(t *testing.T) {
	buf := capture(t)

	tracker := NewStatusTracker(4)
	assert.Equal(t, "[░░░░░░░░░░░░░░░░░░░░] 0/4", tracker.Progress())

	var reporter FetchReporter = tracker
	reporter.Started("alice")
	reporter.Started("bob")
	assert.Equal(t, 2, tracker.Active())
	reporter.Done("alice", nil)
	reporter.Done("bob", assert.AnError)
	assert.Zero(t, tracker.Active())
	assert.Equal(t, "[██████████░░░░░░░░░░] 2/4", tracker.Progress())

	completed, failed := tracker.Counts()
	assert.Equal(t, 2, completed)
	assert.Equal(t, 1, failed)

	tracker.Summary(2)

	out := buf.String()
	assert.Contains(t, out, "[FETCHED] [█████░░░░░░░░░░░░░░░] 1/4 alice")
	assert.Contains(t, out, "[FAILED] [██████████░░░░░░░░░░] 2/4 bob")
	assert.Contains(t, out, "1 fetched, 2 skipped, 1 failed in")
}

type recordingSender struct {
	title, message string
}

func (r *recordingSender) Send(title, message string) error {
	r.title, r.message = title, message
	return assert.AnError
}

func TestNotifier(t *testing.T) {
	buf := capture(t)
	sender := &recordingSender{}

	NewNotifierWith(sender).SendNotification("igfeed", "code sent by email")

	assert.Equal(t, "igfeed", sender.title)
	assert.Equal(t, "code sent by email", sender.message)
	assert.Contains(t, buf.String(), "igfeed: code sent by email")
}

func TestNotifierWithoutSender(t *testing.T) {
	buf := capture(t)

	NewNotifierWith(nil).SendError("igfeed", "login failed")

	assert.Contains(t, buf.String(), "igfeed: login failed")
}

func TestAppleScriptQuoting(t *testing.T) {
	assert.Equal(t, `display notification "say \"hi\"" with title "igfeed"`,
		appleScript("igfeed", `say "hi"`))
}
