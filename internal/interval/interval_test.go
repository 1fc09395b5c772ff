package interval_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/interval"
)

func TestOverlapsAndTouches(t *testing.T) {
	a := interval.New(100, 200)

	tests := []struct {
		name     string
		other    interval.Interval
		overlaps bool
		touches  bool
	}{
		{"disjoint after", interval.New(300, 400), false, false},
		{"touching end", interval.New(200, 300), false, true},
		{"touching start", interval.New(50, 100), false, true},
		{"overlapping", interval.New(150, 250), true, false},
		{"contained", interval.New(120, 180), true, false},
		{"equal", interval.New(100, 200), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overlaps, a.Overlaps(tt.other))
			assert.Equal(t, tt.touches, a.Touches(tt.other))
		})
	}
}

func TestCoversIsClosed(t *testing.T) {
	i := interval.New(100, 200)
	assert.True(t, i.Covers(100))
	assert.True(t, i.Covers(200))
	assert.False(t, i.Covers(99))
	assert.False(t, i.Covers(201))
}

func TestShrinkInfeasible(t *testing.T) {
	i := interval.New(0, 100)

	shrunk, ok := i.Shrink(40, 40)
	require.True(t, ok)
	assert.Equal(t, interval.New(40, 60), shrunk)

	_, ok = i.Shrink(60, 60)
	assert.False(t, ok, "inverting shrink must report infeasible")

	zero, ok := i.Shrink(50, 50)
	require.True(t, ok)
	assert.Equal(t, int64(0), zero.Size())
}

func TestIntersect(t *testing.T) {
	a := interval.New(100, 200)

	got, ok := a.Intersect(interval.New(150, 250))
	require.True(t, ok)
	assert.Equal(t, interval.New(150, 200), got)

	_, ok = a.Intersect(interval.New(200, 300))
	assert.False(t, ok, "touching intervals have no overlap")
}

func TestRelate(t *testing.T) {
	a := interval.New(100, 200)

	tests := []struct {
		name  string
		other interval.Interval
		want  interval.Relation
	}{
		{"equal", interval.New(100, 200), interval.Equal},
		{"a contains b", interval.New(120, 180), interval.AContainsB},
		{"b contains a", interval.New(50, 250), interval.BContainsA},
		{"overlap a earlier", interval.New(150, 250), interval.OverlappingAEarlier},
		{"overlap b earlier", interval.New(50, 150), interval.OverlappingBEarlier},
		{"touch a before b", interval.New(200, 300), interval.TouchABeforeB},
		{"touch b before a", interval.New(50, 100), interval.TouchBBeforeA},
		{"a before b", interval.New(300, 400), interval.ABeforeB},
		{"b before a", interval.New(0, 50), interval.BBeforeA},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Relate(tt.other))
		})
	}
}

func requireSortedDisjoint(t *testing.T, intervals []interval.Interval) {
	t.Helper()
	for i := 1; i < len(intervals); i++ {
		require.Less(t, intervals[i-1].Start, intervals[i].Start, "output not sorted")
		require.LessOrEqual(t, intervals[i-1].End, intervals[i].Start, "output not disjoint")
	}
}

func TestMergeCollapsesOverlapsAndTouches(t *testing.T) {
	got := interval.Merge([]interval.Interval{
		interval.New(500, 600),
		interval.New(0, 100),
		interval.New(90, 200),
		interval.New(200, 300),
	})
	require.Len(t, got, 2)
	assert.Equal(t, interval.New(0, 300), got[0])
	assert.Equal(t, interval.New(500, 600), got[1])
}

func TestMergeEmpty(t *testing.T) {
	assert.Empty(t, interval.Merge(nil))
}

func TestMergeRandomised(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 100; run++ {
		input := make([]interval.Interval, rng.Intn(20))
		for i := range input {
			start := int64(rng.Intn(1000))
			input[i] = interval.New(start, start+int64(rng.Intn(100)))
		}
		merged := interval.Merge(input)
		requireSortedDisjoint(t, merged)
		for _, in := range input {
			covered := false
			for _, m := range merged {
				if m.Contains(in) {
					covered = true
					break
				}
			}
			require.True(t, covered, "input interval %v lost by merge", in)
		}
	}
}

func TestSubtract(t *testing.T) {
	tests := []struct {
		name       string
		minuend    []interval.Interval
		subtrahend []interval.Interval
		want       []interval.Interval
	}{
		{
			name:       "hole punched in the middle",
			minuend:    []interval.Interval{interval.New(0, 100)},
			subtrahend: []interval.Interval{interval.New(40, 60)},
			want:       []interval.Interval{interval.New(0, 40), interval.New(60, 100)},
		},
		{
			name:       "subtrahend covers minuend",
			minuend:    []interval.Interval{interval.New(40, 60)},
			subtrahend: []interval.Interval{interval.New(0, 100)},
			want:       nil,
		},
		{
			name:       "overlap at front",
			minuend:    []interval.Interval{interval.New(50, 150)},
			subtrahend: []interval.Interval{interval.New(0, 100)},
			want:       []interval.Interval{interval.New(100, 150)},
		},
		{
			name:       "overlap at back",
			minuend:    []interval.Interval{interval.New(0, 100)},
			subtrahend: []interval.Interval{interval.New(50, 150)},
			want:       []interval.Interval{interval.New(0, 50)},
		},
		{
			name:       "disjoint leaves minuend untouched",
			minuend:    []interval.Interval{interval.New(0, 100), interval.New(300, 400)},
			subtrahend: []interval.Interval{interval.New(150, 250)},
			want:       []interval.Interval{interval.New(0, 100), interval.New(300, 400)},
		},
		{
			name:       "empty subtrahend",
			minuend:    []interval.Interval{interval.New(0, 100)},
			subtrahend: nil,
			want:       []interval.Interval{interval.New(0, 100)},
		},
		{
			name:       "empty minuend",
			minuend:    nil,
			subtrahend: []interval.Interval{interval.New(0, 100)},
			want:       nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := interval.Subtract(tt.minuend, tt.subtrahend)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Subtracting B and intersecting the result with B again must yield nothing.
func TestSubtractThenIntersectIsEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 100; run++ {
		a := randomDisjoint(rng)
		b := randomDisjoint(rng)
		diff := interval.Subtract(a, b)
		requireSortedDisjoint(t, diff)
		require.Empty(t, interval.Intersection(diff, b))
	}
}

func TestIntersectionLists(t *testing.T) {
	a := []interval.Interval{interval.New(0, 100), interval.New(200, 300)}
	b := []interval.Interval{interval.New(50, 250)}
	got := interval.Intersection(a, b)
	assert.Equal(t, []interval.Interval{interval.New(50, 100), interval.New(200, 250)}, got)
}

func randomDisjoint(rng *rand.Rand) []interval.Interval {
	n := rng.Intn(10)
	out := make([]interval.Interval, 0, n)
	cursor := int64(0)
	for i := 0; i < n; i++ {
		cursor += int64(rng.Intn(50)) + 1
		start := cursor
		cursor += int64(rng.Intn(100)) + 1
		out = append(out, interval.New(start, cursor))
	}
	return out
}
