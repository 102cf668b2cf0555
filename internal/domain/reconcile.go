package domain

import (
	"cmp"
	"slices"
)

// Defaults for [ReconcileOptions].
const (
	DefaultLapThreshold = 60.0
	DefaultGapTolerance = 0.1
)

// ReconcileOptions tunes status classification and ordering.
type ReconcileOptions struct {
	// LapThreshold is the gap to leader, in seconds, above which a car is Lapped.
	LapThreshold float64
	// GapTolerance is the band, in seconds, inside which two gaps are treated
	// as equal and ordered by previous rank, then CarID.
	GapTolerance float64
}

// DefaultReconcileOptions returns the 60s lap threshold and 0.1s tolerance.
func DefaultReconcileOptions() ReconcileOptions {
	return ReconcileOptions{LapThreshold: DefaultLapThreshold, GapTolerance: DefaultGapTolerance}
}

// RetirementSet is an insertion-ordered set of retired cars.
type RetirementSet struct {
	order   []CarID
	members map[CarID]struct{}
}

// NewRetirementSet returns an empty set.
func NewRetirementSet() *RetirementSet {
	return &RetirementSet{members: make(map[CarID]struct{})}
}

// Add inserts id and reports whether it was newly added.
func (r *RetirementSet) Add(id CarID) bool {
	if _, ok := r.members[id]; ok {
		return false
	}
	r.members[id] = struct{}{}
	r.order = append(r.order, id)
	return true
}

// Has reports whether id has retired.
func (r *RetirementSet) Has(id CarID) bool {
	_, ok := r.members[id]
	return ok
}

// Len returns the number of retired cars.
func (r *RetirementSet) Len() int { return len(r.order) }

// IDs returns the retired cars in retirement order.
func (r *RetirementSet) IDs() []CarID { return slices.Clone(r.order) }

// RaceState is the per-session memory the reconciler carries between ticks.
// It is owned by one tracker and must be reset on every session boundary.
type RaceState struct {
	Retired *RetirementSet
	seen    map[CarID]struct{}
	// rank is each non-retired car's index in the previous tick's ranking.
	rank map[CarID]int
}

// NewRaceState returns a state for a fresh session.
func NewRaceState() *RaceState {
	return &RaceState{
		Retired: NewRetirementSet(),
		seen:    make(map[CarID]struct{}),
		rank:    make(map[CarID]int),
	}
}

// Reset clears retirements and timing history.
func (s *RaceState) Reset() {
	s.Retired = NewRetirementSet()
	s.seen = make(map[CarID]struct{})
	s.rank = make(map[CarID]int)
}

// Seen reports whether id has appeared in any interval snapshot this session.
func (s *RaceState) Seen(id CarID) bool {
	_, ok := s.seen[id]
	return ok
}

// HasTimedCars reports whether any car has been timed this session.
func (s *RaceState) HasTimedCars() bool { return len(s.seen) > 0 }

// TickInput is everything the reconciler reads for one tick.
type TickInput struct {
	Intervals []IntervalSample
	Positions []PositionSample
	Roster    Roster
}

type candidate struct {
	id          CarID
	timed       bool
	gap         *float64
	interval    *float64
	lapsBehind  int
	position    int
	hasPosition bool
}

// Reconcile produces the ranking for one tick and records retirements and
// newly timed cars in state.
func Reconcile(in TickInput, state *RaceState, opts ReconcileOptions) []RankingEntry {
	intervals := LatestIntervals(in.Intervals)
	positions := LatestPositions(in.Positions)

	active := make(map[CarID]IntervalSample, len(intervals))
	for _, s := range intervals {
		active[s.CarID] = s
	}

	// Only cars timed on an earlier tick can retire, so this runs before the
	// current tick's cars are marked seen.
	seen := make([]CarID, 0, len(state.seen))
	for id := range state.seen {
		seen = append(seen, id)
	}
	slices.Sort(seen)
	for _, id := range seen {
		if _, ok := active[id]; !ok {
			state.Retired.Add(id)
		}
	}
	for id := range active {
		state.seen[id] = struct{}{}
	}

	candidates := orderCandidates(
		collectCandidates(in.Roster, active, positions, state.Retired),
		state.rank,
		opts.GapTolerance,
	)

	state.rank = make(map[CarID]int, len(candidates))
	ranking := make([]RankingEntry, 0, len(candidates)+state.Retired.Len())
	for i, c := range candidates {
		state.rank[c.id] = i
		ranking = append(ranking, RankingEntry{
			CarID:       c.id,
			GapToLeader: c.gap,
			Interval:    c.interval,
			LapsBehind:  c.lapsBehind,
			Status:      classify(c, opts.LapThreshold),
			Position:    DisplayPosition(i + 1),
		})
	}
	for _, id := range state.Retired.IDs() {
		ranking = append(ranking, RankingEntry{CarID: id, Status: StatusRetired})
	}
	return ranking
}

// collectCandidates gathers every non-retired car known from the interval
// feed, the roster, or the position feed, sorted by CarID.
func collectCandidates(roster Roster, active map[CarID]IntervalSample, positions map[CarID]int, retired *RetirementSet) []candidate {
	byID := make(map[CarID]*candidate)
	add := func(id CarID) *candidate {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &candidate{id: id}
		byID[id] = c
		return c
	}

	for id, s := range active {
		if retired.Has(id) {
			continue
		}
		c := add(id)
		c.timed = true
		c.gap = s.GapToLeader
		c.interval = s.Interval
		c.lapsBehind = s.LapsBehind
	}
	for id := range roster {
		if !retired.Has(id) {
			add(id)
		}
	}
	for id, pos := range positions {
		if retired.Has(id) {
			continue
		}
		c := add(id)
		c.position = pos
		c.hasPosition = true
	}

	out := make([]candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b candidate) int { return cmp.Compare(a.id, b.id) })
	return out
}

// orderCandidates ranks the non-retired cars. It is built in passes rather
// than with a pairwise comparator so the tolerance band stays transitive:
//
//   - cars with a gap are sorted by gap and split into clusters wherever
//     two neighbouring gaps differ by more than tolerance;
//   - inside a cluster, bands measured from their first car are ordered by
//     CarID, and cars ranked on the previous tick keep their previous
//     relative order;
//   - cars without a gap follow, timed before untimed, then by laps down;
//   - finally, cars with a position take their slots in position order.
func orderCandidates(cands []candidate, prev map[CarID]int, tolerance float64) []candidate {
	var gapped, rest []candidate
	for _, c := range cands {
		if c.gap != nil {
			gapped = append(gapped, c)
		} else {
			rest = append(rest, c)
		}
	}
	slices.SortFunc(gapped, func(a, b candidate) int {
		if c := cmp.Compare(*a.gap, *b.gap); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	out := make([]candidate, 0, len(cands))
	for start := 0; start < len(gapped); {
		end := start + 1
		for end < len(gapped) && *gapped[end].gap-*gapped[end-1].gap <= tolerance {
			end++
		}
		out = append(out, orderCluster(gapped[start:end], prev, tolerance)...)
		start = end
	}

	slices.SortFunc(rest, func(a, b candidate) int {
		if a.timed != b.timed {
			if a.timed {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(a.lapsBehind, b.lapsBehind); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	out = append(out, rest...)

	reorderSlots(out,
		func(c candidate) bool { return c.hasPosition },
		func(a, b candidate) int { return cmp.Compare(a.position, b.position) })
	return out
}

// orderCluster orders cars whose gaps chain together within tolerance.
func orderCluster(cluster []candidate, prev map[CarID]int, tolerance float64) []candidate {
	out := make([]candidate, 0, len(cluster))
	for start := 0; start < len(cluster); {
		anchor := *cluster[start].gap
		end := start + 1
		for end < len(cluster) && *cluster[end].gap-anchor <= tolerance {
			end++
		}
		band := slices.Clone(cluster[start:end])
		slices.SortFunc(band, func(a, b candidate) int { return cmp.Compare(a.id, b.id) })
		out = append(out, band...)
		start = end
	}

	reorderSlots(out,
		func(c candidate) bool { _, ok := prev[c.id]; return ok },
		func(a, b candidate) int { return cmp.Compare(prev[a.id], prev[b.id]) })
	return out
}

// reorderSlots sorts the selected cars among the slots they already occupy,
// leaving every other car where it is.
func reorderSlots(cs []candidate, selected func(candidate) bool, compare func(a, b candidate) int) {
	var slots []int
	var picked []candidate
	for i, c := range cs {
		if selected(c) {
			slots = append(slots, i)
			picked = append(picked, c)
		}
	}
	slices.SortStableFunc(picked, compare)
	for k, i := range slots {
		cs[i] = picked[k]
	}
}

func classify(c candidate, lapThreshold float64) Status {
	if c.lapsBehind > 0 || (c.gap != nil && *c.gap > lapThreshold) {
		return StatusLapped
	}
	return StatusRunning
}
