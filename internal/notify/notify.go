// Package notify provides best-effort desktop notification support.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Send raises a desktop notification. On macOS it shells out to
// osascript, on Linux to notify-send when available. Other platforms
// are a silent no-op: notifications are a convenience, never a
// dependency of the run.
func Send(title, message string) error {
	switch runtime.GOOS {
	case "darwin":
		return sendDarwin(title, message)
	case "linux":
		return sendLinux(title, message)
	default:
		return nil
	}
}

func sendDarwin(title, message string) error {
	title = escapeAppleScript(title)
	message = escapeAppleScript(message)

	script := fmt.Sprintf(
		`display notification %q with title %q sound name "default"`,
		message, title,
	)

	cmd := exec.Command("osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func sendLinux(title, message string) error {
	if _, err := exec.LookPath("notify-send"); err != nil {
		return nil
	}
	cmd := exec.Command("notify-send", title, message)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("notify-send: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
