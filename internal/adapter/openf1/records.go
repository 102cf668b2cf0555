package openf1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/f1-live-leaderboard/internal/domain"
)

// OpenF1 API record types.

type sessionRecord struct {
	SessionKey       flexInt  `json:"session_key"`
	MeetingKey       flexInt  `json:"meeting_key"`
	SessionName      string   `json:"session_name"`
	SessionType      string   `json:"session_type"`
	Status           string   `json:"status"`
	SessionStatus    string   `json:"session_status"`
	CircuitShortName string   `json:"circuit_short_name"`
	CountryName      string   `json:"country_name"`
	DateStart        flexTime `json:"date_start"`
	DateEnd          flexTime `json:"date_end"`
}

func (r sessionRecord) toDomain() domain.Session {
	status := r.Status
	if status == "" {
		status = r.SessionStatus
	}
	return domain.Session{
		Key:        int(r.SessionKey),
		MeetingKey: int(r.MeetingKey),
		Name:       r.SessionName,
		Type:       r.SessionType,
		Status:     status,
		Circuit:    r.CircuitShortName,
		Country:    r.CountryName,
		DateStart:  time.Time(r.DateStart),
		DateEnd:    time.Time(r.DateEnd),
	}
}

type driverRecord struct {
	DriverNumber  flexInt `json:"driver_number"`
	FullName      string  `json:"full_name"`
	BroadcastName string  `json:"broadcast_name"`
	NameAcronym   string  `json:"name_acronym"`
	TeamName      string  `json:"team_name"`
	TeamColour    string  `json:"team_colour"`
}

func (r driverRecord) toDomain() domain.DriverInfo {
	name := r.FullName
	if name == "" {
		name = r.BroadcastName
	}
	return domain.DriverInfo{
		CarID:      domain.CarID(r.DriverNumber),
		Name:       name,
		Acronym:    r.NameAcronym,
		Team:       r.TeamName,
		TeamColour: r.TeamColour,
	}
}

type intervalRecord struct {
	DriverNumber flexInt  `json:"driver_number"`
	GapToLeader  gapValue `json:"gap_to_leader"`
	Interval     gapValue `json:"interval"`
	Date         flexTime `json:"date"`
}

func (r intervalRecord) toDomain() domain.IntervalSample {
	return domain.IntervalSample{
		CarID:       domain.CarID(r.DriverNumber),
		GapToLeader: r.GapToLeader.Seconds,
		Interval:    r.Interval.Seconds,
		LapsBehind:  r.GapToLeader.Laps,
		Date:        time.Time(r.Date),
	}
}

type positionRecord struct {
	DriverNumber flexInt  `json:"driver_number"`
	Position     flexInt  `json:"position"`
	Date         flexTime `json:"date"`
}

func (r positionRecord) toDomain() domain.PositionSample {
	return domain.PositionSample{
		CarID:    domain.CarID(r.DriverNumber),
		Position: int(r.Position),
		Date:     time.Time(r.Date),
	}
}

// flexInt decodes a JSON number, a numeric string, or null (as 0).
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		b = []byte(s)
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s", b)
	}
	*f = flexInt(n)
	return nil
}

// flexTime decodes RFC 3339 timestamps, with or without a zone (UTC assumed).
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// null or a non-string: leave the zero time.
		*f = flexTime{}
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = flexTime{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*f = flexTime(t)
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q", s)
	}
	*f = flexTime(t)
	return nil
}

// lapsRe matches lapped-car gaps such as "+1 LAP" or "+3 LAPS".
var lapsRe = regexp.MustCompile(`(?i)^\+?\s*(\d+)\s*LAPS?$`)

// gapValue decodes a gap in seconds, null, or a "+N LAP(S)" string.
// Unrecognised strings decode as no gap.
type gapValue struct {
	Seconds *float64
	Laps    int
}

func (g *gapValue) UnmarshalJSON(b []byte) error {
	*g = gapValue{}
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		if m := lapsRe.FindStringSubmatch(s); m != nil {
			laps, _ := strconv.Atoi(m[1])
			g.Laps = laps
			return nil
		}
		// Anything else the timing system emits is treated as no gap.
		if v, err := strconv.ParseFloat(strings.TrimPrefix(s, "+"), 64); err == nil {
			g.Seconds = &v
		}
		return nil
	}

	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("invalid gap %s", b)
	}
	g.Seconds = &v
	return nil
}
