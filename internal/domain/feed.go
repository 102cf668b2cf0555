package domain

import (
	"cmp"
	"slices"
	"time"
)

// IntervalSample is one car's timing record from the interval feed.
type IntervalSample struct {
	CarID       CarID
	GapToLeader *float64 // seconds; nil when untimed or lapped
	Interval    *float64 // seconds to the car ahead; nil when untimed
	LapsBehind  int      // set when the feed reports "+N LAP(S)" instead of a gap
	Date        time.Time
}

// PositionSample is one car's race position from the position feed.
type PositionSample struct {
	CarID    CarID
	Position int
	Date     time.Time
}

// LatestIntervals reduces an interval time series to the newest sample per
// car. A later Date wins; equal dates fall back to the later array index.
// The result is sorted by CarID.
func LatestIntervals(samples []IntervalSample) []IntervalSample {
	latest := make(map[CarID]IntervalSample, len(samples))
	for _, s := range samples {
		if s.CarID <= 0 {
			continue
		}
		if prev, ok := latest[s.CarID]; ok && s.Date.Before(prev.Date) {
			continue
		}
		latest[s.CarID] = s
	}

	out := make([]IntervalSample, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b IntervalSample) int { return cmp.Compare(a.CarID, b.CarID) })
	return out
}

// LatestPositions reduces a position time series to the newest position per
// car using the same rule as [LatestIntervals]. Non-positive positions are
// ignored.
func LatestPositions(samples []PositionSample) map[CarID]int {
	dates := make(map[CarID]time.Time, len(samples))
	out := make(map[CarID]int, len(samples))
	for _, s := range samples {
		if s.CarID <= 0 || s.Position <= 0 {
			continue
		}
		if prev, ok := dates[s.CarID]; ok && s.Date.Before(prev) {
			continue
		}
		dates[s.CarID] = s.Date
		out[s.CarID] = s.Position
	}
	return out
}
