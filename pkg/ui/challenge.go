package ui

import (
	"fmt"
	"sync"
	"time"

	"igfeed/pkg/instagram"
)

// ChallengeTracker reports checkpoint progress on the terminal. Observe is meant to be passed as
// instagram.ChallengeOptions.Observer.
type ChallengeTracker struct {
	mu        sync.Mutex
	startTime time.Time
	states    []instagram.ChallengeState
	onSent    func(*instagram.ChallengeContext)
}

// NewChallengeTracker creates a tracker. onSent, if set, runs once the code has been requested.
func NewChallengeTracker(onSent func(*instagram.ChallengeContext)) *ChallengeTracker {
	return &ChallengeTracker{startTime: time.Now(), onSent: onSent}
}

// Observe prints one line per state change
func (ct *ChallengeTracker) Observe(ev instagram.ChallengeEvent) {
	ct.mu.Lock()
	ct.states = append(ct.states, ev.State)
	elapsed := time.Since(ct.startTime).Round(time.Second)
	ct.mu.Unlock()

	label := fmt.Sprintf("[%s]", ev.State)
	switch ev.State {
	case instagram.ChallengeFetched:
		emit(false, "%s %s\n", Magenta(label), "security checkpoint detected")
	case instagram.ChallengeCodeSent:
		emit(false, "%s %s\n", Yellow(label), describeDelivery(ev.Context))
		if ct.onSent != nil {
			ct.onSent(ev.Context)
		}
	case instagram.ChallengeCodeObtained:
		emit(false, "%s %s %s\n", Cyan(label), "verification code received", Dim(elapsed.String()))
	case instagram.ChallengeSubmitted:
		emit(false, "%s %s\n", Green(label), "checkpoint cleared")
	default:
		emit(false, "%s\n", Dim(label))
	}
}

// States returns the states seen so far
func (ct *ChallengeTracker) States() []instagram.ChallengeState {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return append([]instagram.ChallengeState(nil), ct.states...)
}

// GetElapsedTime returns the elapsed time since tracking started
func (ct *ChallengeTracker) GetElapsedTime() time.Duration {
	return time.Since(ct.startTime)
}

func describeDelivery(cc *instagram.ChallengeContext) string {
	if cc == nil {
		return "verification code requested"
	}
	channel := "email"
	if cc.Channel == instagram.ChannelSMS {
		channel = "SMS"
	}
	if cc.ContactPoint == "" {
		return fmt.Sprintf("code sent by %s", channel)
	}
	return fmt.Sprintf("code sent by %s to %s", channel, cc.ContactPoint)
}
