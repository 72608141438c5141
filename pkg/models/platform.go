package models

import (
	"strings"
	"time"
)

// Platform is a restricted site whose browsing is paid for with earned
// time. Enforcement for these lives in the browser extension; the
// daemon's monitor skips them and never earns credit while one is
// foreground.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
	PlatformReddit    Platform = "reddit"
	PlatformNetflix   Platform = "netflix"
)

// Valid returns true if the platform is a known value.
func (p Platform) Valid() bool {
	switch p {
	case PlatformYouTube, PlatformTikTok, PlatformInstagram,
		PlatformTwitter, PlatformReddit, PlatformNetflix:
		return true
	default:
		return false
	}
}

// PlatformForTarget matches a foreground label or URL against the
// restricted platform set. Returns the platform and true on a match.
func PlatformForTarget(target string) (Platform, bool) {
	lowered := strings.ToLower(target)
	for _, p := range []Platform{
		PlatformYouTube, PlatformTikTok, PlatformInstagram,
		PlatformTwitter, PlatformReddit, PlatformNetflix,
	} {
		if strings.Contains(lowered, string(p)) {
			return p, true
		}
	}
	// Common aliases that don't contain the canonical name.
	switch {
	case strings.Contains(lowered, "x.com"):
		return PlatformTwitter, true
	case strings.Contains(lowered, "youtu.be"):
		return PlatformYouTube, true
	}
	return "", false
}

// SessionState tracks one platform's browsing session as reported by
// the extension. Sessions survive client disconnects; they are keyed by
// platform, not by connection.
type SessionState struct {
	// Platform is the restricted platform this session covers.
	Platform Platform `json:"platform"`
	// Active reports whether a session is currently open.
	Active bool `json:"active"`
	// Filtered reports whether content filtering applies (session was
	// started with an accepted intent, narrowing allowed content).
	Filtered bool `json:"filtered"`
	// CostMultiplier is the spend rate applied to this session's
	// heartbeats.
	CostMultiplier float64 `json:"cost_multiplier"`
	// Intent is the user's stated reason for the session, if any.
	Intent string `json:"intent,omitempty"`
	// Categories are the allowed topic categories for a filtered
	// session, produced by the justification scorer.
	Categories []string `json:"categories,omitempty"`
	// StartedAt is when the current session began.
	StartedAt time.Time `json:"started_at,omitempty"`
	// LastHeartbeat is the time of the most recent heartbeat.
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
}
