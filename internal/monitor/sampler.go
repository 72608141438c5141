// Package monitor polls the foreground target, consults the scorer,
// drives the per-block escalation state machine, and ticks the ledger.
package monitor

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Target is one foreground sample: the active application and, for
// browsers, the focused tab's title and URL.
type Target struct {
	App   string
	Title string
	URL   string
}

// Label returns the string the scorer sees: the tab title when
// present, otherwise the application name.
func (t Target) Label() string {
	if t.Title != "" {
		return t.Title
	}
	return t.App
}

// Sampler reports the current foreground target. Errors are treated as
// "no information": the poll is skipped, escalation neither advances
// nor resets.
type Sampler interface {
	Sample() (Target, error)
}

// SystemSampler shells out to the platform's window-inspection tool.
type SystemSampler struct{}

// Sample returns the active window's application and title.
func (SystemSampler) Sample() (Target, error) {
	switch runtime.GOOS {
	case "darwin":
		return sampleDarwin()
	case "linux":
		return sampleLinux()
	default:
		return Target{}, fmt.Errorf("foreground sampling unsupported on %s", runtime.GOOS)
	}
}

func sampleDarwin() (Target, error) {
	out, err := exec.Command("osascript", "-e",
		`tell application "System Events" to get name of first application process whose frontmost is true`).Output()
	if err != nil {
		return Target{}, fmt.Errorf("frontmost app lookup: %w", err)
	}
	app := strings.TrimSpace(string(out))

	title, err := exec.Command("osascript", "-e",
		fmt.Sprintf(`tell application "System Events" to get name of front window of application process %q`, app)).Output()
	if err != nil {
		// Some apps expose no window title; the app name is enough.
		return Target{App: app}, nil
	}
	return Target{App: app, Title: strings.TrimSpace(string(title))}, nil
}

func sampleLinux() (Target, error) {
	out, err := exec.Command("xdotool", "getactivewindow", "getwindowname").Output()
	if err != nil {
		return Target{}, fmt.Errorf("active window lookup: %w", err)
	}
	return Target{Title: strings.TrimSpace(string(out))}, nil
}
