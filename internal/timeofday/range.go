package timeofday

// Range is the half-open interval [Start, End).
type Range struct {
	Start TimeOfDay `json:"startTime"`
	End   TimeOfDay `json:"endTime"`
}

func NewRange(start, end TimeOfDay) Range {
	return Range{Start: start, End: end}
}

// Valid reports whether both ends lie within the day and Start < End.
func (r Range) Valid() bool {
	return r.Start.Valid() && r.End.Valid() && r.Start < r.End
}

func (r Range) Empty() bool { return r.End <= r.Start }

// Len is the length in minutes.
func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return int(r.End - r.Start)
}

// Overlaps reports whether r and o share at least one minute.
func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End && r.End > o.Start
}

// Touches is the inclusive test used to find availability adjacent to or overlapping o.
func (r Range) Touches(o Range) bool {
	return r.Start <= o.End && r.End >= o.Start
}

// Contains reports whether o lies entirely inside r.
func (r Range) Contains(o Range) bool {
	return r.Start <= o.Start && o.End <= r.End
}

// Intersect returns the common part of r and o; the result is Empty when they do not overlap.
func (r Range) Intersect(o Range) Range {
	out := Range{Start: max(r.Start, o.Start), End: min(r.End, o.End)}
	if out.Empty() {
		return Range{}
	}
	return out
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}
