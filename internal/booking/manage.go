package booking

import (
	"context"
	"errors"
	"time"

	"booking-service/internal/timeofday"
)

// SlotInput is one interval of open time published by a candidate.
type SlotInput struct {
	Date          string `json:"date" binding:"required"`
	StartTime     string `json:"startTime" binding:"required"`
	EndTime       string `json:"endTime" binding:"required"`
	InterviewType string `json:"interviewType"`
}

// Publish creates available slots for a candidate. New slots must not overlap any live slot
// with the same date and interview type, including the other inputs.
func (e *Engine) Publish(ctx context.Context, candidateID string, inputs []SlotInput) ([]Slot, error) {
	if len(inputs) == 0 {
		return nil, NewError(KindInvalidRequest, "at least one slot is required")
	}
	if _, err := e.store.Candidate(ctx, candidateID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewError(KindNotFound, "candidate not found")
		}
		return nil, internal(err)
	}

	slots := make([]Slot, 0, len(inputs))
	now := e.now()
	for _, in := range inputs {
		date, err := time.Parse(time.DateOnly, in.Date)
		if err != nil {
			return nil, NewError(KindInvalidRequest, "date must be YYYY-MM-DD").Wrap(err)
		}
		start, err := timeofday.Parse(in.StartTime)
		if err != nil {
			return nil, NewError(KindInvalidRequest, "startTime must be HH:MM").Wrap(err)
		}
		end, err := timeofday.Parse(in.EndTime)
		if err != nil {
			return nil, NewError(KindInvalidRequest, "endTime must be HH:MM").Wrap(err)
		}
		if start >= end {
			return nil, NewError(KindInvalidTimeRange, "startTime must be before endTime")
		}
		slots = append(slots, Slot{
			ID:            e.newID(),
			CandidateID:   candidateID,
			Date:          DateOf(date),
			Start:         start,
			End:           end,
			InterviewType: ParseInterviewType(in.InterviewType),
			Status:        StatusAvailable,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, s := range slots {
			existing, err := tx.ListSlots(ctx, SlotQuery{
				CandidateID:   candidateID,
				Date:          s.Date,
				InterviewType: s.InterviewType,
				Statuses:      []SlotStatus{StatusAvailable, StatusBooked, StatusBlocked},
				Windows:       []timeofday.Range{s.Range()},
				Mode:          OverlapStrict,
				ForUpdate:     true,
			})
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return NewError(KindConflict, "slot "+s.Date.Format(time.DateOnly)+" "+s.Range().String()+" overlaps existing availability")
			}
			if err := tx.InsertSlot(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			return nil, internal(err)
		}
		return nil, err
	}

	e.logger.Info().Str("candidate_id", candidateID).Int("count", len(slots)).Msg("availability published")
	return slots, nil
}

// Withdraw retracts an available slot so it can no longer be booked.
func (e *Engine) Withdraw(ctx context.Context, slotID string) (Slot, error) {
	var out Slot
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		s, err := tx.Slot(ctx, slotID)
		if errors.Is(err, ErrNotFound) {
			return NewError(KindNotFound, "schedule not found")
		}
		if err != nil {
			return err
		}
		if s.Status != StatusAvailable {
			return NewError(KindConflict, "only available schedules can be withdrawn")
		}
		s.Status = StatusCancelled
		s.UpdatedAt = e.now()
		out = s
		return tx.UpdateSlot(ctx, s)
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			return Slot{}, internal(err)
		}
		return Slot{}, err
	}
	return out, nil
}

type CancelResult struct {
	Booking       Booking  `json:"booking"`
	ReleasedSlots []string `json:"releasedSchedules"`
}

// Cancel cancels an active booking and returns its slot to the candidate's availability.
// Slots blocked by its buffer are released only when ReleaseBlocksOnCancel is set; otherwise
// they remain blocked and read back as reselectable.
func (e *Engine) Cancel(ctx context.Context, bookingID string) (CancelResult, error) {
	var res CancelResult
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.Booking(ctx, bookingID)
		if errors.Is(err, ErrNotFound) {
			return NewError(KindNotFound, "booking not found")
		}
		if err != nil {
			return err
		}
		if !b.Active() {
			return NewError(KindConflict, "booking is already cancelled")
		}

		now := e.now()
		b.CancelledAt = &now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		res.Booking = b

		s, err := tx.Slot(ctx, b.SlotID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if s.Status == StatusBooked {
			s.Status = StatusAvailable
			s.UpdatedAt = now
			if err := tx.UpdateSlot(ctx, s); err != nil {
				return err
			}
		}

		if !e.cfg.ReleaseBlocksOnCancel {
			return nil
		}
		res.ReleasedSlots, err = e.releaseBlocks(ctx, tx, b.CandidateID, []string{s.ID}, now)
		return err
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			e.logger.Error().Err(err).Str("booking_id", bookingID).Msg("cancel transaction failed")
			return CancelResult{}, internal(err)
		}
		return CancelResult{}, err
	}
	if res.ReleasedSlots == nil {
		res.ReleasedSlots = []string{}
	}

	e.logger.Info().Str("booking_id", bookingID).Int("released", len(res.ReleasedSlots)).Msg("booking cancelled")
	return res, nil
}

// CandidateAvailability is the public view of a candidate's calendar.
type CandidateAvailability struct {
	CandidateName string `json:"candidateName"`
	Slots         []Slot `json:"schedules"`
}

// Availability lists the live slots of the candidate owning token, optionally for one date.
func (e *Engine) Availability(ctx context.Context, token string, date time.Time) (CandidateAvailability, error) {
	candidate, err := e.store.CandidateByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return CandidateAvailability{}, NewError(KindInvalidToken, "scheduling link is invalid or has expired")
	}
	if err != nil {
		return CandidateAvailability{}, internal(err)
	}
	slots, err := e.Slots(ctx, candidate.ID, date)
	if err != nil {
		return CandidateAvailability{}, err
	}
	return CandidateAvailability{CandidateName: candidate.Name, Slots: slots}, nil
}

// Slots lists a candidate's live (non-cancelled) slots, optionally for one date.
func (e *Engine) Slots(ctx context.Context, candidateID string, date time.Time) ([]Slot, error) {
	slots, err := e.store.ListSlots(ctx, SlotQuery{
		CandidateID: candidateID,
		Date:        date,
		Statuses:    []SlotStatus{StatusAvailable, StatusBooked, StatusBlocked},
	})
	if err != nil {
		return nil, internal(err)
	}
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

// Bookings lists every booking of a candidate, cancelled ones included.
func (e *Engine) Bookings(ctx context.Context, candidateID string) ([]Booking, error) {
	if _, err := e.store.Candidate(ctx, candidateID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewError(KindNotFound, "candidate not found")
		}
		return nil, internal(err)
	}
	out, err := e.store.ListBookings(ctx, candidateID)
	if err != nil {
		return nil, internal(err)
	}
	if out == nil {
		out = []Booking{}
	}
	return out, nil
}
