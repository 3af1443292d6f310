package booking

import (
	"slices"

	"booking-service/internal/timeofday"
)

// BufferWindows returns the pre- and post-interview buffer intervals around booked, clamped to
// the day. Either window may be empty when booked touches a day boundary.
func BufferWindows(booked timeofday.Range, buffer int) (before, after timeofday.Range) {
	before = timeofday.NewRange(timeofday.Clamp(int(booked.Start)-buffer), booked.Start)
	after = timeofday.NewRange(booked.End, timeofday.Clamp(int(booked.End)+buffer))
	return before, after
}

// bufferWindows are the minutes to block around a booking, split by side. Each side is sorted
// and its ranges are disjoint and non-empty.
type bufferWindows struct {
	before []timeofday.Range
	after  []timeofday.Range
}

// bufferAround covers the buffer around the booked interval and around the region it was carved
// from.
func bufferAround(booked, region timeofday.Range, buffer int) bufferWindows {
	bookedBefore, bookedAfter := BufferWindows(booked, buffer)
	regionBefore, regionAfter := BufferWindows(region, buffer)
	return bufferWindows{
		before: union(regionBefore, bookedBefore),
		after:  union(bookedAfter, regionAfter),
	}
}

func (w bufferWindows) all() []timeofday.Range {
	return append(slices.Clone(w.before), w.after...)
}

// union merges rs into sorted, disjoint ranges. Empty ranges are dropped and touching ranges
// are joined.
func union(rs ...timeofday.Range) []timeofday.Range {
	sorted := slices.Clone(rs)
	slices.SortFunc(sorted, func(a, b timeofday.Range) int { return int(a.Start) - int(b.Start) })

	var out []timeofday.Range
	for _, r := range sorted {
		if r.Empty() {
			continue
		}
		if n := len(out); n > 0 && r.Start <= out[n-1].End {
			if r.End > out[n-1].End {
				out[n-1].End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// piece is one part of a slot after blocking.
type piece struct {
	r       timeofday.Range
	blocked bool
}

// blockPlan is the rewrite of a single slot that falls inside the buffer: its interval cut into
// consecutive pieces, each blocked or left available.
type blockPlan struct {
	slot   Slot
	pieces []piece
}

// inPlace reports whether the block covers the whole slot, so it can be updated instead of split.
func (p blockPlan) inPlace() bool {
	return len(p.pieces) == 1 && p.pieces[0].blocked
}

// planBlock computes which parts of slot become blocked. A slot reaching into both sides is
// blocked entirely; otherwise its intersections with the windows of that side are blocked.
func planBlock(slot Slot, w bufferWindows) (blockPlan, bool) {
	r := slot.Range()
	inBefore := intersections(r, w.before)
	inAfter := intersections(r, w.after)

	var blocks []timeofday.Range
	switch {
	case len(inBefore) > 0 && len(inAfter) > 0:
		blocks = []timeofday.Range{r}
	case len(inBefore) > 0:
		blocks = inBefore
	case len(inAfter) > 0:
		blocks = inAfter
	default:
		return blockPlan{}, false
	}

	plan := blockPlan{slot: slot}
	cursor := r.Start
	for _, b := range blocks {
		if cursor < b.Start {
			plan.pieces = append(plan.pieces, piece{r: timeofday.NewRange(cursor, b.Start)})
		}
		plan.pieces = append(plan.pieces, piece{r: b, blocked: true})
		cursor = b.End
	}
	if cursor < r.End {
		plan.pieces = append(plan.pieces, piece{r: timeofday.NewRange(cursor, r.End)})
	}
	return plan, true
}

func intersections(r timeofday.Range, windows []timeofday.Range) []timeofday.Range {
	var out []timeofday.Range
	for _, w := range windows {
		if r.Overlaps(w) {
			out = append(out, r.Intersect(w))
		}
	}
	return out
}
