package timeofday

import (
	"encoding/json"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "09:15", want: New(9, 15)},
		{in: "00:00", want: 0},
		{in: "23:59", want: LastMinute},
		{in: "09:00:00", want: New(9, 0)},
		{in: "09:15junk", wantErr: true},
		{in: "09:15:xx", wantErr: true},
		{in: "09:00:00.000000", wantErr: true},
		{in: "9:15", wantErr: true},
		{in: "9:15:00", wantErr: true},
		{in: "24:00", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q) expected error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(-30); got != 0 {
		t.Fatalf("Clamp(-30) = %v", got)
	}
	if got := Clamp(1500); got != LastMinute {
		t.Fatalf("Clamp(1500) = %v", got)
	}
	if got := Clamp(600); got != New(10, 0) {
		t.Fatalf("Clamp(600) = %v", got)
	}
}

func TestJSON(t *testing.T) {
	r := NewRange(MustParse("09:00"), MustParse("09:45"))
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"startTime":"09:00","endTime":"09:45"}` {
		t.Fatalf("unexpected JSON %s", data)
	}

	var back Range
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != r {
		t.Fatalf("got %v, want %v", back, r)
	}

	if err := json.Unmarshal([]byte(`{"startTime":"9am"}`), &back); err == nil {
		t.Fatal("expected error for malformed time")
	}
}

func TestRangeOps(t *testing.T) {
	a := NewRange(MustParse("09:00"), MustParse("10:00"))
	b := NewRange(MustParse("10:00"), MustParse("10:30"))
	c := NewRange(MustParse("09:30"), MustParse("10:15"))

	if a.Overlaps(b) {
		t.Error("adjacent ranges must not overlap")
	}
	if !a.Touches(b) {
		t.Error("adjacent ranges must touch")
	}
	if !a.Overlaps(c) {
		t.Error("a and c overlap")
	}
	if got := a.Intersect(c); got != NewRange(MustParse("09:30"), MustParse("10:00")) {
		t.Errorf("Intersect = %v", got)
	}
	if got := a.Intersect(b); !got.Empty() {
		t.Errorf("Intersect of adjacent ranges = %v", got)
	}
	if !a.Contains(NewRange(MustParse("09:15"), MustParse("09:45"))) {
		t.Error("a contains 09:15-09:45")
	}
	if a.Contains(c) {
		t.Error("a does not contain c")
	}
	if a.Len() != 60 {
		t.Errorf("Len = %d", a.Len())
	}
	if NewRange(MustParse("10:00"), MustParse("09:00")).Valid() {
		t.Error("inverted range must be invalid")
	}
}
