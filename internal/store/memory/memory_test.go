package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"booking-service/internal/booking"
	"booking-service/internal/timeofday"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func slot(id, start, end string, status booking.SlotStatus) booking.Slot {
	return booking.Slot{
		ID:            id,
		CandidateID:   "cand-1",
		Date:          day,
		Start:         timeofday.MustParse(start),
		End:           timeofday.MustParse(end),
		InterviewType: booking.Online,
		Status:        status,
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	s.AddSlot(slot("s1", "09:00", "10:00", booking.StatusAvailable))
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		if err := tx.DeleteSlots(ctx, []string{"s1"}); err != nil {
			return err
		}
		if err := tx.InsertSlot(ctx, slot("s2", "11:00", "12:00", booking.StatusAvailable)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx error = %v", err)
	}

	if _, err := s.Slot(ctx, "s1"); err != nil {
		t.Fatalf("s1 should survive the rollback: %v", err)
	}
	if _, err := s.Slot(ctx, "s2"); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("s2 should not exist, got %v", err)
	}
}

func TestWithTxHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithTx(ctx, func(context.Context, booking.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}

func TestBlockedSlotBecomesReselectable(t *testing.T) {
	s := New()
	s.AddSlot(slot("booked", "09:00", "10:00", booking.StatusBooked))
	blocked := slot("blk", "10:00", "10:15", booking.StatusBlocked)
	blocked.BlockingBookingID = "booked"
	s.AddSlot(blocked)
	s.AddBooking(booking.Booking{ID: "bk-1", SlotID: "booked", CandidateID: "cand-1"})
	ctx := context.Background()

	got, err := s.Slot(ctx, "blk")
	if err != nil {
		t.Fatal(err)
	}
	if got.Reselectable || got.Bookable() {
		t.Fatalf("block of an active booking must not be bookable: %+v", got)
	}

	err = s.WithTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		b, err := tx.Booking(ctx, "bk-1")
		if err != nil {
			return err
		}
		now := day.Add(8 * time.Hour)
		b.CancelledAt = &now
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		t.Fatal(err)
	}

	bookable, err := s.ListSlots(ctx, booking.SlotQuery{CandidateID: "cand-1", Bookable: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(bookable) != 1 || bookable[0].ID != "blk" || !bookable[0].Reselectable {
		t.Fatalf("expected reselectable block, got %+v", bookable)
	}
}

func TestInsertBookingAllowsOneActivePerSlot(t *testing.T) {
	s := New()
	s.AddSlot(slot("s1", "09:00", "10:00", booking.StatusBooked))
	ctx := context.Background()

	insert := func(id string) error {
		return s.WithTx(ctx, func(ctx context.Context, tx booking.Tx) error {
			return tx.InsertBooking(ctx, booking.Booking{ID: id, SlotID: "s1", CandidateID: "cand-1"})
		})
	}
	if err := insert("bk-1"); err != nil {
		t.Fatal(err)
	}
	if err := insert("bk-2"); err == nil {
		t.Fatal("second active booking on the same slot must fail")
	}
}

func TestDeleteSlotsCascadesToBookings(t *testing.T) {
	s := New()
	s.AddSlot(slot("s1", "09:00", "10:00", booking.StatusBooked))
	s.AddBooking(booking.Booking{ID: "bk-1", SlotID: "s1", CandidateID: "cand-1"})
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		return tx.DeleteSlots(ctx, []string{"s1"})
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Booking(ctx, "bk-1"); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("booking should be gone with its slot, got %v", err)
	}
}

func TestListSlotsOrdering(t *testing.T) {
	s := New()
	s.AddSlot(slot("c", "11:00", "12:00", booking.StatusAvailable))
	s.AddSlot(slot("b", "09:00", "10:00", booking.StatusAvailable))
	s.AddSlot(slot("a", "09:00", "09:30", booking.StatusAvailable))

	got, err := s.ListSlots(context.Background(), booking.SlotQuery{CandidateID: "cand-1"})
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, sl := range got {
		ids = append(ids, sl.ID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("order = %v", ids)
	}
}
