package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", "--app-name=igfeed", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	return exec.Command("osascript", "-e", appleScript(title, message)).Run()
}

func appleScript(title, message string) string {
	return fmt.Sprintf("display notification %s with title %s", strconv.Quote(message), strconv.Quote(title))
}

// Notifier prints a message and mirrors it as a desktop notification where the platform has one
type Notifier struct {
	sender NotificationSender
}

// NewNotifier creates a Notifier for the current platform
func NewNotifier() *Notifier {
	switch runtime.GOOS {
	case "linux":
		return NewNotifierWith(&LinuxNotificationSender{})
	case "darwin":
		return NewNotifierWith(&MacOSNotificationSender{})
	default:
		return NewNotifierWith(nil)
	}
}

// NewNotifierWith creates a Notifier using sender; a nil sender only prints
func NewNotifierWith(sender NotificationSender) *Notifier {
	return &Notifier{sender: sender}
}

// SendNotification prints the message and sends a desktop notification
func (n *Notifier) SendNotification(title, message string) {
	emit(false, "%s: %s\n", Cyan(title), Yellow(message))
	n.send(title, message)
}

// SendError is SendNotification for failures; the console line is shown even in quiet mode
func (n *Notifier) SendError(title, message string) {
	emit(true, "%s: %s\n", Red(title), Red(message))
	n.send(title, message)
}

// SendSuccess is SendNotification in green
func (n *Notifier) SendSuccess(title, message string) {
	emit(false, "%s: %s\n", Green(title), Green(message))
	n.send(title, message)
}

func (n *Notifier) send(title, message string) {
	if n.sender == nil {
		return
	}
	// a missing notify-send must not break the command
	_ = n.sender.Send(title, message)
}
