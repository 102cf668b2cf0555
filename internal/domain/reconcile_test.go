package domain

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRoster = Roster{
	1: {CarID: 1, Name: "A"},
	2: {CarID: 2, Name: "B"},
	3: {CarID: 3, Name: "C"},
}

func gap(v float64) *float64 { return &v }

func interval(id CarID, g, i *float64) IntervalSample {
	return IntervalSample{CarID: id, GapToLeader: g, Interval: i}
}

func positions(ids ...CarID) []PositionSample {
	out := make([]PositionSample, len(ids))
	for i, id := range ids {
		out[i] = PositionSample{CarID: id, Position: i + 1}
	}
	return out
}

// order returns the CarIDs of a ranking in sequence.
func order(ranking []RankingEntry) []CarID {
	ids := make([]CarID, len(ranking))
	for i, e := range ranking {
		ids[i] = e.CarID
	}
	return ids
}

func TestReconcile_FirstTick(t *testing.T) {
	state := NewRaceState()
	got := Reconcile(TickInput{
		Intervals: []IntervalSample{
			interval(1, gap(0), nil),
			interval(2, gap(5.0), gap(5.0)),
			interval(3, gap(75.0), gap(70.0)),
		},
		Positions: positions(1, 2, 3),
		Roster:    testRoster,
	}, state, DefaultReconcileOptions())

	want := []RankingEntry{
		{CarID: 1, GapToLeader: gap(0), Status: StatusRunning, Position: 1},
		{CarID: 2, GapToLeader: gap(5.0), Interval: gap(5.0), Status: StatusRunning, Position: 2},
		{CarID: 3, GapToLeader: gap(75.0), Interval: gap(70.0), Status: StatusLapped, Position: 3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ranking mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, state.Retired.Len())
}

func TestReconcile_GapUnderThresholdIsRunning(t *testing.T) {
	got := Reconcile(TickInput{
		Intervals: []IntervalSample{interval(1, gap(0), nil), interval(3, gap(50.0), gap(45.0))},
		Roster:    testRoster,
	}, NewRaceState(), DefaultReconcileOptions())

	require.Len(t, got, 3)
	assert.Equal(t, CarID(3), got[1].CarID)
	assert.Equal(t, StatusRunning, got[1].Status)
}

func TestReconcile_DroppedCarRetires(t *testing.T) {
	state := NewRaceState()
	opts := DefaultReconcileOptions()

	Reconcile(TickInput{
		Intervals: []IntervalSample{interval(1, gap(0), nil), interval(2, gap(5), gap(5)), interval(3, gap(50), gap(45))},
		Positions: positions(1, 2, 3),
		Roster:    testRoster,
	}, state, opts)

	got := Reconcile(TickInput{
		Intervals: []IntervalSample{interval(1, gap(0), nil), interval(2, gap(5.2), gap(5.2))},
		Positions: positions(1, 2, 3),
		Roster:    testRoster,
	}, state, opts)

	assert.Equal(t, []CarID{1, 2, 3}, order(got))
	retired := got[2]
	assert.Equal(t, StatusRetired, retired.Status)
	assert.Equal(t, "OUT", retired.Position.String())
	assert.Nil(t, retired.GapToLeader)
	assert.Nil(t, retired.Interval)
	assert.True(t, state.Retired.Has(3))
}

func TestReconcile_RetirementIsPermanent(t *testing.T) {
	state := NewRaceState()
	opts := DefaultReconcileOptions()
	all := []IntervalSample{interval(1, gap(0), nil), interval(2, gap(5), gap(5)), interval(3, gap(8), gap(3))}

	Reconcile(TickInput{Intervals: all, Roster: testRoster}, state, opts)
	Reconcile(TickInput{Intervals: all[:2], Roster: testRoster}, state, opts)

	// Car 3 comes back in both feeds but stays retired and listed once.
	got := Reconcile(TickInput{Intervals: all, Positions: positions(3, 1, 2), Roster: testRoster}, state, opts)

	assert.Equal(t, []CarID{1, 2, 3}, order(got))
	assert.Equal(t, StatusRetired, got[2].Status)
	assert.Equal(t, DisplayPosition(1), got[0].Position)
	assert.Equal(t, DisplayPosition(2), got[1].Position)
}

func TestReconcile_NeverTimedCarIsNotRetired(t *testing.T) {
	state := NewRaceState()
	opts := DefaultReconcileOptions()
	in := TickInput{
		Intervals: []IntervalSample{interval(1, gap(0), nil), interval(2, gap(3), gap(3))},
		Roster:    testRoster,
	}

	Reconcile(in, state, opts)
	got := Reconcile(in, state, opts)

	assert.Equal(t, []CarID{1, 2, 3}, order(got))
	assert.False(t, state.Retired.Has(3))
	assert.Equal(t, StatusRunning, got[2].Status)
	assert.Equal(t, DisplayPosition(3), got[2].Position)
	assert.Nil(t, got[2].GapToLeader)
}

func TestReconcile_FirstAppearanceCannotRetire(t *testing.T) {
	state := NewRaceState()
	got := Reconcile(TickInput{Roster: testRoster}, state, DefaultReconcileOptions())

	assert.Len(t, got, 3)
	assert.Zero(t, state.Retired.Len())
	for _, e := range got {
		assert.NotEqual(t, StatusRetired, e.Status)
	}
}

func TestReconcile_RetiredSortAfterActiveRegardlessOfInputOrder(t *testing.T) {
	state := NewRaceState()
	opts := DefaultReconcileOptions()

	Reconcile(TickInput{
		Intervals: []IntervalSample{interval(3, gap(0), nil), interval(2, gap(1), gap(1)), interval(1, gap(2), gap(1))},
		Roster:    testRoster,
	}, state, opts)
	got := Reconcile(TickInput{
		Intervals: []IntervalSample{interval(2, gap(90), nil), interval(1, gap(95), gap(5))},
		Roster:    testRoster,
	}, state, opts)

	assert.Equal(t, []CarID{2, 1, 3}, order(got))
	assert.Equal(t, StatusLapped, got[0].Status)
	assert.Equal(t, StatusRetired, got[2].Status)
}

func TestReconcile_PositionIsAuthoritative(t *testing.T) {
	got := Reconcile(TickInput{
		Intervals: []IntervalSample{interval(1, gap(0), nil), interval(2, gap(4), gap(4))},
		Positions: positions(2, 1),
	}, NewRaceState(), DefaultReconcileOptions())

	assert.Equal(t, []CarID{2, 1}, order(got))
}

func TestReconcile_NilGapSortsLastAmongActive(t *testing.T) {
	got := Reconcile(TickInput{
		Intervals: []IntervalSample{interval(1, nil, nil), interval(2, gap(0), nil), interval(3, gap(12), gap(12))},
	}, NewRaceState(), DefaultReconcileOptions())

	assert.Equal(t, []CarID{2, 3, 1}, order(got))
}

func TestReconcile_ZeroGapTieBreaksByCarID(t *testing.T) {
	got := Reconcile(TickInput{
		Intervals: []IntervalSample{interval(16, gap(0), nil), interval(4, gap(0), nil), interval(1, gap(2), gap(2))},
	}, NewRaceState(), DefaultReconcileOptions())

	assert.Equal(t, []CarID{4, 16, 1}, order(got))
}

func TestReconcile_GapNoiseInsideToleranceDoesNotReorder(t *testing.T) {
	state := NewRaceState()
	opts := DefaultReconcileOptions()

	first := Reconcile(TickInput{
		Intervals: []IntervalSample{interval(1, gap(0), nil), interval(7, gap(10.00), gap(10)), interval(3, gap(10.05), gap(0.05))},
	}, state, opts)
	second := Reconcile(TickInput{
		Intervals: []IntervalSample{interval(1, gap(0), nil), interval(7, gap(10.08), gap(10.08)), interval(3, gap(10.02), gap(0))},
	}, state, opts)

	assert.Equal(t, []CarID{1, 3, 7}, order(first))
	assert.Equal(t, order(first), order(second))
}

func TestReconcile_ChainedGapsKeepGapOrder(t *testing.T) {
	// 3-2 and 2-1 are each inside the band, 3-1 is not.
	samples := []IntervalSample{interval(3, gap(0), nil), interval(2, gap(0.08), gap(0.08)), interval(1, gap(0.16), gap(0.08))}
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	for _, p := range perms {
		in := []IntervalSample{samples[p[0]], samples[p[1]], samples[p[2]]}
		got := order(Reconcile(TickInput{Intervals: in}, NewRaceState(), DefaultReconcileOptions()))

		assert.Equal(t, []CarID{2, 3, 1}, got, "input order %v", p)
		assert.Equal(t, CarID(1), got[2], "0.16s car must rank behind the leader")
	}
}

func TestReconcile_ToleranceBandFollowsPreviousOrder(t *testing.T) {
	state := NewRaceState()
	opts := DefaultReconcileOptions()

	first := Reconcile(TickInput{
		Intervals: []IntervalSample{interval(9, gap(0), nil), interval(2, gap(5.00), gap(5.00)), interval(1, gap(5.15), gap(0.15))},
	}, state, opts)
	require.Equal(t, []CarID{9, 2, 1}, order(first))

	// Car 1 closes into the band with car 2 but has not passed it.
	second := Reconcile(TickInput{
		Intervals: []IntervalSample{interval(9, gap(0), nil), interval(2, gap(5.00), gap(5.00)), interval(1, gap(5.08), gap(0.08))},
	}, state, opts)
	assert.Equal(t, []CarID{9, 2, 1}, order(second))

	// Once clear of the band the gap decides again.
	third := Reconcile(TickInput{
		Intervals: []IntervalSample{interval(9, gap(0), nil), interval(2, gap(5.00), gap(5.00)), interval(1, gap(4.85), nil)},
	}, state, opts)
	assert.Equal(t, []CarID{9, 1, 2}, order(third))
}

func TestReconcile_ResetForgetsPreviousOrder(t *testing.T) {
	state := NewRaceState()
	opts := DefaultReconcileOptions()

	Reconcile(TickInput{Intervals: []IntervalSample{interval(7, gap(0), nil), interval(3, gap(0.2), gap(0.2))}}, state, opts)
	state.Reset()
	got := Reconcile(TickInput{Intervals: []IntervalSample{interval(7, gap(0.05), nil), interval(3, gap(0), nil)}}, state, opts)

	assert.Equal(t, []CarID{3, 7}, order(got))
}

// TestReconcile_GapNoiseNeverSwapsNeighbours random-walks a dense pack of
// gaps and checks cars within the band never trade places between ticks.
func TestReconcile_GapNoiseNeverSwapsNeighbours(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	opts := DefaultReconcileOptions()
	state := NewRaceState()

	gaps := map[CarID]float64{}
	for id := CarID(1); id <= 12; id++ {
		gaps[id] = rng.Float64() * 1.5
	}

	var prev map[CarID]int
	for tick := 0; tick < 300; tick++ {
		samples := make([]IntervalSample, 0, len(gaps))
		for id, g := range gaps {
			samples = append(samples, interval(id, gap(g), nil))
		}
		got := Reconcile(TickInput{Intervals: samples}, state, opts)
		require.Len(t, got, len(gaps))

		idx := map[CarID]int{}
		for i, e := range got {
			idx[e.CarID] = i
		}
		if prev != nil {
			assertNoBandSwaps(t, tick, gaps, idx, prev, opts.GapTolerance)
		}
		prev = idx

		for id := range gaps {
			gaps[id] = math.Max(0, gaps[id]+(rng.Float64()-0.5)*0.12)
		}
	}
}

// assertNoBandSwaps fails when two cars ranked on the previous tick and
// within tolerance of each other now appear in the opposite order.
func assertNoBandSwaps(t *testing.T, tick int, gaps map[CarID]float64, idx, prev map[CarID]int, tolerance float64) {
	t.Helper()
	for a, ia := range idx {
		for b, ib := range idx {
			if a >= b {
				continue
			}
			pa, okA := prev[a]
			pb, okB := prev[b]
			if !okA || !okB || math.Abs(gaps[a]-gaps[b]) > tolerance {
				continue
			}
			assert.Equal(t, pa < pb, ia < ib,
				"tick %d: cars %d and %d (gaps %.3f, %.3f) swapped inside the band", tick, a, b, gaps[a], gaps[b])
		}
	}
}

func TestReconcile_GapOutsideToleranceReorders(t *testing.T) {
	got := Reconcile(TickInput{
		Intervals: []IntervalSample{interval(1, gap(10.3), nil), interval(9, gap(10.0), nil)},
	}, NewRaceState(), DefaultReconcileOptions())

	assert.Equal(t, []CarID{9, 1}, order(got))
}

func TestReconcile_UnknownCarIsKept(t *testing.T) {
	got := Reconcile(TickInput{
		Intervals: []IntervalSample{interval(1, gap(0), nil), interval(99, gap(1), gap(1))},
		Roster:    testRoster,
	}, NewRaceState(), DefaultReconcileOptions())

	assert.Contains(t, order(got), CarID(99))
	assert.Equal(t, "Car #99", testRoster.Label(99))
}

func TestReconcile_LapsBehindIsLapped(t *testing.T) {
	got := Reconcile(TickInput{
		Intervals: []IntervalSample{
			{CarID: 20, LapsBehind: 2},
			{CarID: 10, LapsBehind: 1},
			interval(1, gap(0), nil),
		},
		Roster: Roster{5: {CarID: 5, Name: "untimed"}},
	}, NewRaceState(), DefaultReconcileOptions())

	assert.Equal(t, []CarID{1, 10, 20, 5}, order(got))
	assert.Equal(t, StatusLapped, got[1].Status)
	assert.Equal(t, StatusLapped, got[2].Status)
	assert.Equal(t, StatusRunning, got[3].Status)
}

func TestReconcile_UsesLatestSamplePerCar(t *testing.T) {
	t0 := time.Date(2025, 7, 6, 14, 0, 0, 0, time.UTC)
	got := Reconcile(TickInput{
		Intervals: []IntervalSample{
			{CarID: 1, GapToLeader: gap(0), Date: t0},
			{CarID: 2, GapToLeader: gap(1), Date: t0},
			{CarID: 1, GapToLeader: gap(3), Date: t0.Add(4 * time.Second)},
			{CarID: 2, GapToLeader: gap(0), Date: t0.Add(4 * time.Second)},
		},
	}, NewRaceState(), DefaultReconcileOptions())

	assert.Equal(t, []CarID{2, 1}, order(got))
	assert.Equal(t, 3.0, *got[1].GapToLeader)
}

// TestReconcile_Properties drives random ticks through one session and checks
// the invariants every ranking must satisfy.
func TestReconcile_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	roster := Roster{}
	for id := CarID(1); id <= 20; id++ {
		roster[id] = DriverInfo{CarID: id}
	}

	state := NewRaceState()
	opts := DefaultReconcileOptions()
	retiredBefore := map[CarID]bool{}
	everTimed := map[CarID]bool{}
	var prev map[CarID]int

	for tick := 0; tick < 200; tick++ {
		var samples []IntervalSample
		var pos []PositionSample
		for id := CarID(1); id <= 22; id++ {
			if rng.IntN(10) == 0 {
				continue
			}
			s := IntervalSample{CarID: id}
			if rng.IntN(6) != 0 {
				g := rng.Float64() * 90
				s.GapToLeader = &g
			}
			samples = append(samples, s)
			if rng.IntN(2) == 0 {
				pos = append(pos, PositionSample{CarID: id, Position: rng.IntN(22) + 1})
			}
		}
		rng.Shuffle(len(samples), func(i, j int) { samples[i], samples[j] = samples[j], samples[i] })

		got := Reconcile(TickInput{Intervals: samples, Positions: pos, Roster: roster}, state, opts)

		counts := map[CarID]int{}
		sawRetired := false
		for i, e := range got {
			counts[e.CarID]++
			if e.Status == StatusRetired {
				sawRetired = true
				assert.True(t, e.Position.Retired())
				assert.True(t, everTimed[e.CarID], "car %d retired without being timed", e.CarID)
			} else {
				assert.False(t, sawRetired, "tick %d: active car after retired car", tick)
				assert.Equal(t, DisplayPosition(i+1), e.Position)
			}
		}
		for id := range roster {
			assert.Equal(t, 1, counts[id], "tick %d: car %d", tick, id)
		}
		for id := range retiredBefore {
			assert.True(t, state.Retired.Has(id), "tick %d: car %d left the retirement set", tick, id)
		}
		for _, id := range state.Retired.IDs() {
			retiredBefore[id] = true
		}
		for _, s := range samples {
			everTimed[s.CarID] = true
		}

		// Without a position to override them, gapped cars inside the band
		// keep the relative order of the previous tick.
		placed := map[CarID]bool{}
		for _, p := range pos {
			placed[p.CarID] = true
		}
		gaps := map[CarID]float64{}
		for _, s := range samples {
			if s.GapToLeader != nil && !placed[s.CarID] && !state.Retired.Has(s.CarID) {
				gaps[s.CarID] = *s.GapToLeader
			}
		}
		idx := map[CarID]int{}
		ranked := map[CarID]int{}
		for i, e := range got {
			if e.Status == StatusRetired {
				continue
			}
			ranked[e.CarID] = i
			if _, ok := gaps[e.CarID]; ok {
				idx[e.CarID] = i
			}
		}
		if prev != nil {
			assertNoBandSwaps(t, tick, gaps, idx, prev, opts.GapTolerance)
		}
		prev = ranked
	}
}

func TestRaceState_Reset(t *testing.T) {
	state := NewRaceState()
	Reconcile(TickInput{Intervals: []IntervalSample{interval(1, gap(0), nil)}}, state, DefaultReconcileOptions())
	Reconcile(TickInput{Intervals: []IntervalSample{interval(2, gap(0), nil)}}, state, DefaultReconcileOptions())
	require.True(t, state.Retired.Has(1))

	state.Reset()

	assert.Zero(t, state.Retired.Len())
	assert.False(t, state.HasTimedCars())
	assert.False(t, state.Seen(2))
}

func TestRetirementSet_InsertionOrder(t *testing.T) {
	r := NewRetirementSet()
	assert.True(t, r.Add(44))
	assert.True(t, r.Add(1))
	assert.False(t, r.Add(44))
	assert.Equal(t, []CarID{44, 1}, r.IDs())
}
