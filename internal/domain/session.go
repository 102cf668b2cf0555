package domain

import (
	"strings"
	"time"
)

// Session describes one timed session (practice, qualifying, race).
type Session struct {
	Key        int       `json:"session_key"`
	MeetingKey int       `json:"meeting_key,omitempty"`
	Name       string    `json:"session_name,omitempty"`
	Type       string    `json:"session_type,omitempty"`
	Status     string    `json:"status,omitempty"`
	Circuit    string    `json:"circuit,omitempty"`
	Country    string    `json:"country,omitempty"`
	DateStart  time.Time `json:"date_start"`
	DateEnd    time.Time `json:"date_end"`
}

// liveStatuses are the normalized status tokens meaning a session is running.
var liveStatuses = map[string]struct{}{
	"started":     {},
	"live":        {},
	"running":     {},
	"in_progress": {},
}

// NormalizeStatus lowercases and trims a status string and folds spaces and
// hyphens to underscores, so "In Progress" and "in-progress" both become
// "in_progress".
func NormalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

// HasLiveStatus reports whether the session's status is a known in-progress
// token. Unknown or empty statuses are not live.
func (s Session) HasLiveStatus() bool {
	_, ok := liveStatuses[NormalizeStatus(s.Status)]
	return ok
}

// InWindow reports whether now falls in [DateStart, DateEnd). A session
// without both bounds is never in its window.
func (s Session) InWindow(now time.Time) bool {
	if s.DateStart.IsZero() || s.DateEnd.IsZero() {
		return false
	}
	return !now.Before(s.DateStart) && now.Before(s.DateEnd)
}

// MostRecent returns the session with the latest DateStart. Sessions without
// a start date lose to any dated session; among equals the first wins.
func MostRecent(sessions []Session) (Session, bool) {
	if len(sessions) == 0 {
		return Session{}, false
	}
	best := sessions[0]
	for _, s := range sessions[1:] {
		if s.DateStart.After(best.DateStart) {
			best = s
		}
	}
	return best, true
}
