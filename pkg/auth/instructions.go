package auth

import (
	"fmt"
	"io"
	"strings"

	"igfeed/pkg/instagram"
)

// ShowCodeDeliveryGuide explains where the verification code went and the ways to hand it to igfeed
func ShowCodeDeliveryGuide(w io.Writer, cc *instagram.ChallengeContext, identity string, sources []string) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w, "🔐 INSTAGRAM SECURITY CHECKPOINT")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Instagram wants to confirm this login and has sent a 6-digit security code.")
	if cc != nil {
		channel := "email"
		if cc.Channel == instagram.ChannelSMS {
			channel = "SMS"
		}
		if cc.ContactPoint != "" {
			fmt.Fprintf(w, "   • Sent by %s to %s\n", channel, cc.ContactPoint)
		} else {
			fmt.Fprintf(w, "   • Sent by %s\n", channel)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "📨 Hand the code over in any of these ways while igfeed waits:")
	for _, src := range sources {
		switch src {
		case "cache":
			fmt.Fprintf(w, "   • From another terminal:  igfeed code set %s <code>\n", identity)
		case "keyring":
			fmt.Fprintln(w, "   • Through the system keychain (igfeed code set --keyring)")
		case "env":
			fmt.Fprintf(w, "   • Restart with %s=<code> in the environment\n", VerificationCodeEnv)
		case "prompt":
			fmt.Fprintln(w, "   • Type it at the prompt below")
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "💡 TIPS:")
	fmt.Fprintln(w, "   • The code expires after a few minutes; a code that is rejected has to be requested again")
	fmt.Fprintln(w, "   • igfeed checks for the code once a second and gives up after about 16 minutes")
	fmt.Fprintln(w, "   • Press Ctrl+C to abort")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w)
}

// ShowQuickCodeHint shows a condensed version for experienced users
func ShowQuickCodeHint(w io.Writer, identity string) {
	fmt.Fprintf(w, "\n🔐 Checkpoint: run `igfeed code set %s <code>` with the code Instagram sent you\n", identity)
}
