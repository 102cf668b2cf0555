package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Status classifies a car on the leaderboard.
type Status string

const (
	StatusRunning Status = "running"
	StatusLapped  Status = "lapped"
	StatusRetired Status = "retired"
)

// RetiredSentinel is shown in place of a numeric rank for retired cars.
const RetiredSentinel = "OUT"

// DisplayPosition is a 1-based rank. The zero value means the car is retired
// and renders as [RetiredSentinel].
type DisplayPosition int

// Retired reports whether the position is the retired sentinel.
func (p DisplayPosition) Retired() bool { return p <= 0 }

func (p DisplayPosition) String() string {
	if p.Retired() {
		return RetiredSentinel
	}
	return strconv.Itoa(int(p))
}

// MarshalJSON encodes a rank as a number and a retired car as "OUT".
func (p DisplayPosition) MarshalJSON() ([]byte, error) {
	if p.Retired() {
		return json.Marshal(RetiredSentinel)
	}
	return json.Marshal(int(p))
}

// UnmarshalJSON accepts either a number or the "OUT" sentinel.
func (p *DisplayPosition) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == RetiredSentinel {
			*p = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*p = DisplayPosition(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*p = DisplayPosition(n)
	return nil
}

// RankingEntry is one row of the leaderboard. Slice order is race order.
type RankingEntry struct {
	CarID       CarID           `json:"car_id"`
	GapToLeader *float64        `json:"gap_to_leader"`
	Interval    *float64        `json:"interval"`
	LapsBehind  int             `json:"laps_behind,omitempty"`
	Status      Status          `json:"status"`
	Position    DisplayPosition `json:"position"`
}

// Snapshot is the leaderboard as published after an accepted tick, or the
// empty board published when no session is live.
type Snapshot struct {
	Active    bool           `json:"active"`
	Session   *Session       `json:"session,omitempty"`
	Roster    Roster         `json:"roster,omitempty"`
	Entries   []RankingEntry `json:"entries"`
	Tick      uint64         `json:"tick"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SessionKey returns the key of the snapshot's session, or 0 when inactive.
func (s Snapshot) SessionKey() int {
	if s.Session == nil {
		return 0
	}
	return s.Session.Key
}
