package booking

import (
	"time"

	"booking-service/internal/timeofday"
)

type InterviewType string

const (
	Online InterviewType = "online"
	Onsite InterviewType = "onsite"
)

// ParseInterviewType defaults to Online unless s is exactly "onsite".
func ParseInterviewType(s string) InterviewType {
	if InterviewType(s) == Onsite {
		return Onsite
	}
	return Online
}

type SlotStatus string

const (
	StatusAvailable SlotStatus = "available"
	StatusBooked    SlotStatus = "booked"
	StatusBlocked   SlotStatus = "blocked"
	StatusCancelled SlotStatus = "cancelled"
)

// Slot is one contiguous, status-tagged interval of a candidate's day.
type Slot struct {
	ID            string              `json:"id"`
	CandidateID   string              `json:"candidateId"`
	Date          time.Time           `json:"date"`
	Start         timeofday.TimeOfDay `json:"startTime"`
	End           timeofday.TimeOfDay `json:"endTime"`
	InterviewType InterviewType       `json:"interviewType"`
	Status        SlotStatus          `json:"status"`
	// BlockingBookingID holds the id of the booked slot whose buffer produced this block.
	BlockingBookingID string `json:"blockingBookingId,omitempty"`
	// Reselectable is derived on read: a blocked slot whose blocking booking is no longer active.
	Reselectable bool      `json:"reselectable,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (s Slot) Range() timeofday.Range {
	return timeofday.NewRange(s.Start, s.End)
}

// Bookable reports whether the slot can be consumed by a booking or a buffer block.
func (s Slot) Bookable() bool {
	return s.Status == StatusAvailable || (s.Status == StatusBlocked && s.Reselectable)
}

type Booking struct {
	ID          string     `json:"id"`
	SlotID      string     `json:"slotId"`
	CandidateID string     `json:"candidateId"`
	CompanyID   *string    `json:"companyId,omitempty"`
	CompanyName string     `json:"companyName"`
	ConfirmedAt time.Time  `json:"confirmedAt"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

func (b Booking) Active() bool {
	return b.CancelledAt == nil
}

// Owner is the back-office user who registered a candidate.
type Owner struct {
	ID             string `json:"id" binding:"required"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	TelegramChatID int64  `json:"telegramChatId,omitempty"`
}

type Candidate struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
	// Per-candidate buffer overrides in minutes; nil falls back to the service defaults.
	OnlineBufferMinutes *int   `json:"onlineBufferMinutes,omitempty"`
	OnsiteBufferMinutes *int   `json:"onsiteBufferMinutes,omitempty"`
	Owner               *Owner `json:"owner,omitempty"`
}

type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DateOf truncates t to its calendar date at UTC midnight, the form in which slot dates are stored.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
