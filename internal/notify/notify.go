// Package notify posts desktop notifications when a batch or a watched merge
// finishes.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"runtime"
	"strings"

	"github.com/mt4110/mvimg/internal/toolexec"
)

// Notifier picks the first notification command available on the host:
// terminal-notifier or osascript on macOS, notify-send elsewhere.
type Notifier struct {
	Runner toolexec.Runner
	GOOS   string
	// LookPath reports whether a binary is installed. Defaults to
	// toolexec.Available.
	LookPath func(bin string) bool
}

func New(runner toolexec.Runner) *Notifier {
	return &Notifier{Runner: runner, GOOS: runtime.GOOS}
}

// Command returns the program and arguments used to show the notification,
// or ok=false when nothing suitable is installed.
func (n *Notifier) Command(title, message, filePath string) (name string, args []string, ok bool) {
	switch n.GOOS {
	case "darwin":
		if n.has("terminal-notifier") {
			args = []string{"-title", title, "-message", message, "-sound", "default"}
			if filePath != "" {
				u := url.URL{Scheme: "file", Path: filePath}
				args = append(args, "-open", u.String())
			}
			return "terminal-notifier", args, true
		}
		script := fmt.Sprintf(`display notification %s with title %s sound name "default"`,
			appleString(message), appleString(title))
		return "osascript", []string{"-e", script}, true
	default:
		if n.has("notify-send") {
			return "notify-send", []string{"--app-name=mvimg", title, message}, true
		}
	}
	return "", nil, false
}

// Send shows the notification. Failures are logged and otherwise ignored.
func (n *Notifier) Send(ctx context.Context, title, message, filePath string) {
	name, args, ok := n.Command(title, message, filePath)
	if !ok {
		return
	}
	if _, err := n.Runner.Run(ctx, name, args...); err != nil {
		log.Printf("⚠️ 通知に失敗: %v", err)
	}
}

func (n *Notifier) has(bin string) bool {
	if n.LookPath != nil {
		return n.LookPath(bin)
	}
	_, ok := toolexec.Available(bin)
	return ok
}

// appleString quotes s as an AppleScript string literal.
func appleString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
