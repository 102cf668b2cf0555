// Package domain models live race timing data from the OpenF1 API and the
// leaderboard derived from it.
//
// # Data Source
//
// All timing data comes from https://api.openf1.org/v1. Every endpoint is
// queried with session_key=latest (or a pinned key) and returns a JSON array.
// The interval and position endpoints return a time series: one record per
// car per update, oldest first. Only the newest record per car is meaningful
// for a leaderboard, see [LatestIntervals] and [LatestPositions].
//
// # OpenF1 Conventions
//
// Car identifiers:
//
//	"driver_number" is the racing number (1, 44, 81). It is usually a JSON
//	number but occasionally arrives quoted ("44"); both decode to [CarID].
//
// Gaps:
//
//	"gap_to_leader" and "interval" are seconds as floats, or null when the
//	timing system has no value (typically the leader, or the first lap).
//	Lapped cars carry a string instead: "+1 LAP", "+2 LAPS". These decode to
//	a nil gap with [IntervalSample.LapsBehind] set.
//
// Session status:
//
//	The sessions endpoint reports state through "status" or "session_status"
//	depending on the API version. Values are free text ("Started",
//	"In Progress", "Finished"). They are normalized by [NormalizeStatus]
//	before matching against the known in-progress tokens.
//
// # Reconciliation
//
// [Reconcile] merges one tick of interval and position samples with the
// driver roster and the session's [RaceState]:
//
//	1. Cars timed on an earlier tick and missing from this tick's intervals
//	   are retired. Retirement is permanent for the session.
//	2. Non-retired cars are ordered by gap to leader (nil gap sorts last).
//	   Gaps chained within the tolerance band keep the previous tick's
//	   order, falling back to CarID for cars with no history, so timing
//	   noise cannot swap neighbours. Cars with a position then take their
//	   slots in position order.
//	3. Cars more than the lap threshold behind (60s) are Lapped.
//	4. Retired cars follow all others, in the order they retired, with the
//	   "OUT" display position.
package domain
