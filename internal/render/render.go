// Package render formats leaderboard snapshots for display. It never orders
// or classifies cars; rows come out in the order of the snapshot entries.
package render

import (
	"fmt"
	"strconv"

	"github.com/couchcryptid/f1-live-leaderboard/internal/domain"
)

// Placeholder is shown for a missing gap or interval.
const Placeholder = "-"

// Row is one display-ready leaderboard line.
type Row struct {
	Position   string        `json:"position"`
	CarID      domain.CarID  `json:"car_id"`
	Driver     string        `json:"driver"`
	Acronym    string        `json:"acronym,omitempty"`
	Team       string        `json:"team,omitempty"`
	TeamColour string        `json:"team_colour,omitempty"`
	Gap        string        `json:"gap"`
	Interval   string        `json:"interval"`
	Status     domain.Status `json:"status"`
	StatusText string        `json:"status_text"`
}

// Rows converts the entries of snap into display rows.
func Rows(snap domain.Snapshot) []Row {
	rows := make([]Row, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		info := snap.Roster[e.CarID]
		rows = append(rows, Row{
			Position:   e.Position.String(),
			CarID:      e.CarID,
			Driver:     snap.Roster.Label(e.CarID),
			Acronym:    info.Acronym,
			Team:       info.Team,
			TeamColour: info.TeamColour,
			Gap:        FormatGap(e),
			Interval:   FormatInterval(e),
			Status:     e.Status,
			StatusText: StatusText(e.Status),
		})
	}
	return rows
}

// FormatGap renders the gap to the leader. Retired cars show DNF.
func FormatGap(e domain.RankingEntry) string {
	switch {
	case e.Status == domain.StatusRetired:
		return "DNF"
	case e.GapToLeader != nil:
		return strconv.FormatFloat(*e.GapToLeader, 'f', 3, 64)
	case e.LapsBehind == 1:
		return "+1 LAP"
	case e.LapsBehind > 1:
		return fmt.Sprintf("+%d LAPS", e.LapsBehind)
	default:
		return Placeholder
	}
}

// FormatInterval renders the interval to the car ahead.
func FormatInterval(e domain.RankingEntry) string {
	if e.Status == domain.StatusRetired || e.Interval == nil {
		return Placeholder
	}
	return "+" + strconv.FormatFloat(*e.Interval, 'f', 3, 64)
}

// StatusText is the short label shown in the status column.
func StatusText(s domain.Status) string {
	switch s {
	case domain.StatusLapped:
		return "LAPPED"
	case domain.StatusRetired:
		return domain.RetiredSentinel
	default:
		return "RUNNING"
	}
}
