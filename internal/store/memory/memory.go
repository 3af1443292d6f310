package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"booking-service/internal/booking"
)

// Store is an in-process availability store. Transactions are serialized and run against a
// copy of the data that replaces the live state only on success.
type Store struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	candidates map[string]booking.Candidate
	companies  map[string]booking.Company
	slots      map[string]booking.Slot
	bookings   map[string]booking.Booking
}

func New() *Store {
	return &Store{st: &state{
		candidates: make(map[string]booking.Candidate),
		companies:  make(map[string]booking.Company),
		slots:      make(map[string]booking.Slot),
		bookings:   make(map[string]booking.Booking),
	}}
}

func (s *state) clone() *state {
	return &state{
		candidates: maps.Clone(s.candidates),
		companies:  maps.Clone(s.companies),
		slots:      maps.Clone(s.slots),
		bookings:   maps.Clone(s.bookings),
	}
}

// --- seeding ---

func (s *Store) AddCandidate(c booking.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.candidates[c.ID] = c
}

func (s *Store) AddCompany(c booking.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.companies[c.ID] = c
}

func (s *Store) AddSlot(slot booking.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot.Date = booking.DateOf(slot.Date)
	s.st.slots[slot.ID] = slot
}

func (s *Store) AddBooking(b booking.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.bookings[b.ID] = b
}

// --- booking.Reader ---

func (s *Store) CandidateByToken(_ context.Context, token string) (booking.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.st.candidates {
		if c.Token != "" && c.Token == token {
			return c, nil
		}
	}
	return booking.Candidate{}, booking.ErrNotFound
}

func (s *Store) Candidate(_ context.Context, id string) (booking.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.st.candidates[id]
	if !ok {
		return booking.Candidate{}, booking.ErrNotFound
	}
	return c, nil
}

func (s *Store) Company(_ context.Context, id string) (booking.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.st.companies[id]
	if !ok {
		return booking.Company{}, booking.ErrNotFound
	}
	return c, nil
}

func (s *Store) Slot(_ context.Context, id string) (booking.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.slot(id)
}

func (s *Store) Booking(_ context.Context, id string) (booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.booking(id)
}

func (s *Store) ListSlots(_ context.Context, q booking.SlotQuery) ([]booking.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listSlots(q), nil
}

func (s *Store) ListBookings(_ context.Context, candidateID string) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []booking.Booking
	for _, b := range s.st.bookings {
		if b.CandidateID == candidateID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConfirmedAt.Equal(out[j].ConfirmedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConfirmedAt.Before(out[j].ConfirmedAt)
	})
	return out, nil
}

// WithTx runs fn with exclusive access to a working copy of the store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// --- state helpers ---

func (st *state) slot(id string) (booking.Slot, error) {
	slot, ok := st.slots[id]
	if !ok {
		return booking.Slot{}, booking.ErrNotFound
	}
	return st.resolve(slot), nil
}

func (st *state) booking(id string) (booking.Booking, error) {
	b, ok := st.bookings[id]
	if !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	return b, nil
}

// resolve fills the derived Reselectable flag.
func (st *state) resolve(slot booking.Slot) booking.Slot {
	slot.Reselectable = false
	if slot.Status != booking.StatusBlocked {
		return slot
	}
	for _, b := range st.bookings {
		if b.SlotID == slot.BlockingBookingID && b.Active() {
			return slot
		}
	}
	slot.Reselectable = true
	return slot
}

func (st *state) listSlots(q booking.SlotQuery) []booking.Slot {
	var out []booking.Slot
	for _, slot := range st.slots {
		slot = st.resolve(slot)
		if q.Matches(slot) {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.ID < b.ID
	})
	return out
}

type tx struct {
	st *state
}

func (t *tx) Slot(_ context.Context, id string) (booking.Slot, error) {
	return t.st.slot(id)
}

func (t *tx) Booking(_ context.Context, id string) (booking.Booking, error) {
	return t.st.booking(id)
}

func (t *tx) ListSlots(_ context.Context, q booking.SlotQuery) ([]booking.Slot, error) {
	return t.st.listSlots(q), nil
}

func (t *tx) InsertSlot(_ context.Context, slot booking.Slot) error {
	if _, ok := t.st.slots[slot.ID]; ok {
		return fmt.Errorf("memory: slot %s already exists", slot.ID)
	}
	slot.Date = booking.DateOf(slot.Date)
	slot.Reselectable = false
	t.st.slots[slot.ID] = slot
	return nil
}

func (t *tx) UpdateSlot(_ context.Context, slot booking.Slot) error {
	if _, ok := t.st.slots[slot.ID]; !ok {
		return booking.ErrNotFound
	}
	slot.Date = booking.DateOf(slot.Date)
	slot.Reselectable = false
	t.st.slots[slot.ID] = slot
	return nil
}

func (t *tx) DeleteSlots(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(t.st.slots, id)
		for bid, b := range t.st.bookings {
			if b.SlotID == id {
				delete(t.st.bookings, bid)
			}
		}
	}
	return nil
}

func (t *tx) DeleteCancelledBookings(_ context.Context, slotIDs []string) error {
	for bid, b := range t.st.bookings {
		if b.Active() {
			continue
		}
		for _, id := range slotIDs {
			if b.SlotID == id {
				delete(t.st.bookings, bid)
				break
			}
		}
	}
	return nil
}

func (t *tx) InsertBooking(_ context.Context, b booking.Booking) error {
	if _, ok := t.st.bookings[b.ID]; ok {
		return fmt.Errorf("memory: booking %s already exists", b.ID)
	}
	if _, ok := t.st.slots[b.SlotID]; !ok {
		return fmt.Errorf("memory: booking %s references missing slot %s", b.ID, b.SlotID)
	}
	for _, existing := range t.st.bookings {
		if existing.SlotID == b.SlotID && existing.Active() {
			return fmt.Errorf("memory: slot %s already has an active booking", b.SlotID)
		}
	}
	t.st.bookings[b.ID] = b
	return nil
}

func (t *tx) UpdateBooking(_ context.Context, b booking.Booking) error {
	if _, ok := t.st.bookings[b.ID]; !ok {
		return booking.ErrNotFound
	}
	t.st.bookings[b.ID] = b
	return nil
}

func (t *tx) InsertCandidate(_ context.Context, c booking.Candidate) error {
	if _, ok := t.st.candidates[c.ID]; ok {
		return fmt.Errorf("memory: candidate %s already exists", c.ID)
	}
	for _, existing := range t.st.candidates {
		if existing.Token == c.Token {
			return errors.New("memory: candidate token already in use")
		}
	}
	t.st.candidates[c.ID] = c
	return nil
}

func (t *tx) InsertCompany(_ context.Context, c booking.Company) error {
	if _, ok := t.st.companies[c.ID]; ok {
		return fmt.Errorf("memory: company %s already exists", c.ID)
	}
	t.st.companies[c.ID] = c
	return nil
}
