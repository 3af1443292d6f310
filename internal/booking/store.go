package booking

import (
	"context"
	"time"

	"booking-service/internal/timeofday"
)

// OverlapMode selects how SlotQuery.Windows are matched against a slot.
type OverlapMode int

const (
	// OverlapTouching matches slots that overlap or share an endpoint with a window.
	OverlapTouching OverlapMode = iota
	// OverlapStrict matches slots sharing at least one minute with a window.
	OverlapStrict
)

// SlotQuery filters availability slots. Zero-valued fields do not filter.
// Results are ordered by date, start time, then id.
type SlotQuery struct {
	CandidateID   string
	Date          time.Time
	InterviewType InterviewType
	// Bookable restricts results to available slots plus reselectable blocked slots and
	// takes precedence over Statuses.
	Bookable          bool
	Statuses          []SlotStatus
	Windows           []timeofday.Range
	Mode              OverlapMode
	ExcludeIDs        []string
	BlockingBookingID string
	// ForUpdate locks the matched rows until the transaction ends. Ignored outside a Tx.
	ForUpdate bool
}

// Matches applies the query to s in memory. Reselectable must already be resolved on s.
func (q SlotQuery) Matches(s Slot) bool {
	if q.CandidateID != "" && s.CandidateID != q.CandidateID {
		return false
	}
	if !q.Date.IsZero() && !DateOf(q.Date).Equal(DateOf(s.Date)) {
		return false
	}
	if q.InterviewType != "" && s.InterviewType != q.InterviewType {
		return false
	}
	if q.Bookable {
		if !s.Bookable() {
			return false
		}
	} else if len(q.Statuses) > 0 && !containsStatus(q.Statuses, s.Status) {
		return false
	}
	if q.BlockingBookingID != "" && s.BlockingBookingID != q.BlockingBookingID {
		return false
	}
	for _, id := range q.ExcludeIDs {
		if id == s.ID {
			return false
		}
	}
	if len(q.Windows) == 0 {
		return true
	}
	for _, w := range q.Windows {
		if q.Mode == OverlapStrict && s.Range().Overlaps(w) {
			return true
		}
		if q.Mode == OverlapTouching && s.Range().Touches(w) {
			return true
		}
	}
	return false
}

func containsStatus(list []SlotStatus, s SlotStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Reader is the read side of the availability store.
type Reader interface {
	CandidateByToken(ctx context.Context, token string) (Candidate, error)
	Candidate(ctx context.Context, id string) (Candidate, error)
	Company(ctx context.Context, id string) (Company, error)
	Slot(ctx context.Context, id string) (Slot, error)
	Booking(ctx context.Context, id string) (Booking, error)
	ListSlots(ctx context.Context, q SlotQuery) ([]Slot, error)
	ListBookings(ctx context.Context, candidateID string) ([]Booking, error)
}

// Store is the availability store. WithTx runs fn as one unit of work: a returned error
// rolls back every write made through tx.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional handle passed to a unit of work.
type Tx interface {
	Slot(ctx context.Context, id string) (Slot, error)
	Booking(ctx context.Context, id string) (Booking, error)
	ListSlots(ctx context.Context, q SlotQuery) ([]Slot, error)
	InsertSlot(ctx context.Context, s Slot) error
	UpdateSlot(ctx context.Context, s Slot) error
	DeleteSlots(ctx context.Context, ids []string) error
	// DeleteCancelledBookings purges cancelled bookings that reference any of slotIDs.
	DeleteCancelledBookings(ctx context.Context, slotIDs []string) error
	InsertBooking(ctx context.Context, b Booking) error
	UpdateBooking(ctx context.Context, b Booking) error
	// InsertCandidate also creates or refreshes c.Owner when set.
	InsertCandidate(ctx context.Context, c Candidate) error
	InsertCompany(ctx context.Context, c Company) error
}
