// Package interval provides the half-open time interval algebra underlying all
// scheduling computation. Timestamps are Unix milliseconds.
package interval

import (
	"fmt"
	"sort"
	"time"
)

// Relation describes how two intervals relate to each other. The relation of
// (a, b) is total: exactly one case applies for any pair of intervals.
type Relation int

const (
	Equal Relation = iota
	AContainsB
	BContainsA
	OverlappingAEarlier
	OverlappingBEarlier
	ABeforeB
	BBeforeA
	TouchABeforeB
	TouchBBeforeA
)

// Interval is an immutable time span [Start, End) in Unix milliseconds.
// Overlap semantics are half-open; Covers treats both ends as closed.
type Interval struct {
	Start int64
	End   int64
}

// New creates an interval from start and end in Unix milliseconds.
func New(start, end int64) Interval {
	return Interval{Start: start, End: end}
}

// Size returns the duration of the interval in milliseconds.
func (i Interval) Size() int64 {
	return i.End - i.Start
}

// Overlaps reports whether the two intervals share more than a point.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && i.End > other.Start
}

// Touches reports whether the intervals share exactly one endpoint.
func (i Interval) Touches(other Interval) bool {
	return i.Start == other.End || i.End == other.Start
}

// Contains reports whether other lies fully inside i (closed on both ends).
func (i Interval) Contains(other Interval) bool {
	return i.Start <= other.Start && other.End <= i.End
}

// Covers reports whether t lies inside the interval, both ends inclusive.
func (i Interval) Covers(t int64) bool {
	return i.Start <= t && t <= i.End
}

// Equal reports whether both endpoints match.
func (i Interval) Equal(other Interval) bool {
	return i.Start == other.Start && i.End == other.End
}

// IsMergeable reports whether the union of the two intervals is contiguous.
func (i Interval) IsMergeable(other Interval) bool {
	return i.Overlaps(other) || i.Touches(other)
}

// Merge returns the smallest interval containing both inputs. The inputs must
// be mergeable, otherwise the result covers the gap between them.
func (i Interval) Merge(other Interval) Interval {
	return Interval{Start: min(i.Start, other.Start), End: max(i.End, other.End)}
}

// Expand grows the interval by pre milliseconds at the start and post at the end.
func (i Interval) Expand(pre, post int64) Interval {
	return Interval{Start: i.Start - pre, End: i.End + post}
}

// Shrink moves the start forward by pre and the end backward by post.
// The second return value is false if the interval would invert; callers must
// treat that as "no interval", never as a zero-length one.
func (i Interval) Shrink(pre, post int64) (Interval, bool) {
	if i.Size() < pre+post {
		return Interval{}, false
	}
	return Interval{Start: i.Start + pre, End: i.End - post}, true
}

// Intersect returns the overlap of both intervals, if any.
func (i Interval) Intersect(other Interval) (Interval, bool) {
	if !i.Overlaps(other) {
		return Interval{}, false
	}
	return Interval{Start: max(i.Start, other.Start), End: min(i.End, other.End)}, true
}

// Shift translates the interval by d milliseconds.
func (i Interval) Shift(d int64) Interval {
	return Interval{Start: i.Start + d, End: i.End + d}
}

// cut removes the part of i covered by cutter, assuming cutter overlaps one
// end of i but does not contain it.
func (i Interval) cut(cutter Interval) Interval {
	if i.Start < cutter.Start {
		return Interval{Start: i.Start, End: cutter.Start}
	}
	return Interval{Start: cutter.End, End: i.End}
}

// split returns the two remainders of i around splitter, assuming i contains
// splitter. Either remainder may be empty.
func (i Interval) split(splitter Interval) (Interval, Interval) {
	return Interval{Start: i.Start, End: splitter.Start}, Interval{Start: splitter.End, End: i.End}
}

// Relate returns the relation of i (A) to other (B).
func (i Interval) Relate(other Interval) Relation {
	switch {
	case i.Equal(other):
		return Equal
	case other.Contains(i):
		return BContainsA
	case i.Contains(other):
		return AContainsB
	case i.Overlaps(other):
		if i.Start > other.Start {
			return OverlappingBEarlier
		}
		return OverlappingAEarlier
	case i.Touches(other):
		if i.Start > other.Start {
			return TouchBBeforeA
		}
		return TouchABeforeB
	case i.Start > other.Start:
		return BBeforeA
	default:
		return ABeforeB
	}
}

// String formats the interval as an ISO-8601 range for logging.
func (i Interval) String() string {
	return fmt.Sprintf("[%s - %s]",
		time.UnixMilli(i.Start).UTC().Format(time.RFC3339),
		time.UnixMilli(i.End).UTC().Format(time.RFC3339))
}

func sortByStart(intervals []Interval) []Interval {
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Start < sorted[b].Start })
	return sorted
}

// Merge collapses overlapping and touching intervals of an arbitrary list into
// a sorted, pairwise disjoint list in one pass over the sorted input.
func Merge(unmerged []Interval) []Interval {
	if len(unmerged) == 0 {
		return nil
	}
	sorted := sortByStart(unmerged)
	merged := make([]Interval, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if current.IsMergeable(next) {
			current = current.Merge(next)
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}

// Intersection computes the pairwise overlaps of two lists of sorted, disjoint
// intervals via a sweep over both lists. Output is sorted and disjoint.
func Intersection(a, b []Interval) []Interval {
	a, b = sortByStart(a), sortByStart(b)
	var out []Interval
	aPos, bPos := 0, 0
	for aPos != len(a) && bPos != len(b) {
		cur, other := a[aPos], b[bPos]
		switch cur.Relate(other) {
		case Equal:
			out = append(out, other)
			aPos++
			bPos++
		case TouchBBeforeA, BBeforeA:
			bPos++
		case TouchABeforeB, ABeforeB:
			aPos++
		case AContainsB:
			out = append(out, other)
			bPos++
		case BContainsA:
			out = append(out, cur)
			aPos++
		case OverlappingBEarlier:
			out = append(out, Interval{Start: cur.Start, End: other.End})
			bPos++
		case OverlappingAEarlier:
			out = append(out, Interval{Start: other.Start, End: cur.End})
			aPos++
		}
	}
	return out
}

// Subtract removes every subtrahend interval from the minuend list. Both
// inputs must each be pairwise disjoint; the output is sorted and disjoint.
func Subtract(minuend, subtrahend []Interval) []Interval {
	minuend, subtrahend = sortByStart(minuend), sortByStart(subtrahend)
	var out []Interval
	mPos, sPos := 0, 0
	var current Interval
	hasCurrent := false
	advanceMinuend := func() {
		mPos++
		hasCurrent = false
	}
	for mPos != len(minuend) && sPos != len(subtrahend) {
		if !hasCurrent {
			current = minuend[mPos]
			hasCurrent = true
		}
		sub := subtrahend[sPos]
		switch current.Relate(sub) {
		case Equal:
			advanceMinuend()
			sPos++
		case TouchBBeforeA, BBeforeA:
			sPos++
		case TouchABeforeB, ABeforeB:
			out = append(out, current)
			advanceMinuend()
		case AContainsB:
			left, right := current.split(sub)
			if left.Start < left.End {
				out = append(out, left)
			}
			if right.Start < right.End {
				current = right
			} else {
				advanceMinuend()
			}
			sPos++
		case BContainsA:
			advanceMinuend()
		case OverlappingBEarlier:
			current = current.cut(sub)
			sPos++
		case OverlappingAEarlier:
			out = append(out, current.cut(sub))
			advanceMinuend()
		}
	}
	if mPos != len(minuend) {
		if hasCurrent {
			out = append(out, current)
			mPos++
		}
		out = append(out, minuend[mPos:]...)
	}
	return out
}
