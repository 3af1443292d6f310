package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"booking-service/internal/notify"
	"booking-service/internal/timeofday"
)

// Dispatcher hands confirmations to the notification sink without waiting for delivery.
type Dispatcher interface {
	Dispatch(msg notify.Message)
}

type Config struct {
	// Default buffers in minutes, used when the candidate has no override.
	OnlineBufferMinutes int
	OnsiteBufferMinutes int
	// ReleaseBlocksOnCancel reverts blocked slots to available when their booking is
	// cancelled. When false they stay blocked and are reported as reselectable.
	ReleaseBlocksOnCancel bool
	DateLayout            string
}

// Engine books interview slots against the availability store.
type Engine struct {
	store      Store
	dispatcher Dispatcher
	cfg        Config
	logger     zerolog.Logger

	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides id generation for new slots and bookings.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(store Store, dispatcher Dispatcher, cfg Config, logger zerolog.Logger, opts ...Option) *Engine {
	if cfg.DateLayout == "" {
		cfg.DateLayout = "2006-01-02 (Mon)"
	}
	e := &Engine{
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger.With().Str("component", "booking").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type BookRequest struct {
	Token         string
	ScheduleID    string
	StartTime     string
	EndTime       string
	InterviewType string
	CompanyID     string
	CompanyName   string
}

type BookingView struct {
	ID            string              `json:"id"`
	CandidateName string              `json:"candidateName"`
	CompanyName   string              `json:"companyName"`
	Date          string              `json:"date"`
	StartTime     timeofday.TimeOfDay `json:"startTime"`
	EndTime       timeofday.TimeOfDay `json:"endTime"`
	InterviewType InterviewType       `json:"interviewType"`
	ConfirmedAt   time.Time           `json:"confirmedAt"`
}

type Confirmation struct {
	Booking          BookingView       `json:"booking"`
	BlockedSchedules []string          `json:"blockedSchedules"`
	NewSchedules     []timeofday.Range `json:"newSchedules"`
}

// Book confirms a booking of [StartTime, EndTime) carved out of the candidate's contiguous
// availability around ScheduleID.
func (e *Engine) Book(ctx context.Context, req BookRequest) (Confirmation, error) {
	requested, err := validateBookRequest(req)
	if err != nil {
		return Confirmation{}, err
	}
	interviewType := ParseInterviewType(req.InterviewType)

	candidate, err := e.store.CandidateByToken(ctx, req.Token)
	if errors.Is(err, ErrNotFound) {
		return Confirmation{}, NewError(KindInvalidToken, "scheduling link is invalid or has expired")
	}
	if err != nil {
		return Confirmation{}, internal(err)
	}

	base, err := e.store.Slot(ctx, req.ScheduleID)
	if errors.Is(err, ErrNotFound) || (err == nil && base.CandidateID != candidate.ID) {
		return Confirmation{}, NewError(KindScheduleNotFound, "schedule not found")
	}
	if err != nil {
		return Confirmation{}, internal(err)
	}

	coverQuery := SlotQuery{
		CandidateID:   candidate.ID,
		Date:          base.Date,
		InterviewType: base.InterviewType,
		Bookable:      true,
		Windows:       []timeofday.Range{requested},
		Mode:          OverlapTouching,
	}
	covering, err := e.store.ListSlots(ctx, coverQuery)
	if err != nil {
		return Confirmation{}, internal(err)
	}
	if _, err := mergeCovering(covering, requested); err != nil {
		return Confirmation{}, err
	}

	companyName := e.resolveCompanyName(ctx, req)

	var (
		bookingRow Booking
		bookedSlot Slot
		leftovers  []timeofday.Range
		blocked    []string
	)
	err = e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		locked := coverQuery
		locked.ForUpdate = true
		current, err := tx.ListSlots(ctx, locked)
		if err != nil {
			return err
		}
		if !sameSlots(covering, current) {
			return NewError(KindScheduleNotFound, "schedule was changed by another request, please reload")
		}
		merged, err := mergeCovering(current, requested)
		if err != nil {
			return err
		}

		now := e.now()
		first := current[0]

		if lead := timeofday.NewRange(merged.Start, requested.Start); !lead.Empty() {
			leftovers = append(leftovers, lead)
		}
		if trail := timeofday.NewRange(requested.End, merged.End); !trail.Empty() {
			leftovers = append(leftovers, trail)
		}

		bookedSlot = first
		bookedSlot.Start, bookedSlot.End = requested.Start, requested.End
		bookedSlot.Status = StatusBooked
		bookedSlot.BlockingBookingID = ""
		bookedSlot.Reselectable = false
		bookedSlot.UpdatedAt = now
		if err := tx.UpdateSlot(ctx, bookedSlot); err != nil {
			return err
		}

		ids := make([]string, 0, len(current))
		for _, s := range current {
			ids = append(ids, s.ID)
		}
		if err := tx.DeleteSlots(ctx, ids[1:]); err != nil {
			return err
		}

		exclude := []string{bookedSlot.ID}
		for _, r := range leftovers {
			leftover := e.deriveSlot(first, r, StatusAvailable, "", now)
			if err := tx.InsertSlot(ctx, leftover); err != nil {
				return err
			}
			exclude = append(exclude, leftover.ID)
		}

		if err := tx.DeleteCancelledBookings(ctx, ids); err != nil {
			return err
		}
		// Blocks left behind by cancelled bookings on these slots are re-derived below from
		// the new booking's buffer.
		if _, err := e.releaseBlocks(ctx, tx, candidate.ID, ids, now); err != nil {
			return err
		}

		bookingRow = Booking{
			ID:          e.newID(),
			SlotID:      bookedSlot.ID,
			CandidateID: candidate.ID,
			CompanyName: companyName,
			ConfirmedAt: now,
		}
		if req.CompanyID != "" {
			companyID := req.CompanyID
			bookingRow.CompanyID = &companyID
		}
		if err := tx.InsertBooking(ctx, bookingRow); err != nil {
			return err
		}

		blocked, err = e.propagateBuffer(ctx, tx, bookedSlot, merged, e.bufferFor(candidate, interviewType), exclude, now)
		return err
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			e.logger.Error().Err(err).Str("schedule_id", req.ScheduleID).Msg("booking transaction failed")
			return Confirmation{}, internal(err)
		}
		return Confirmation{}, err
	}

	e.logger.Info().
		Str("booking_id", bookingRow.ID).
		Str("slot_id", bookedSlot.ID).
		Str("candidate_id", candidate.ID).
		Str("range", requested.String()).
		Int("blocked", len(blocked)).
		Msg("booking confirmed")

	view := BookingView{
		ID:            bookingRow.ID,
		CandidateName: candidate.Name,
		CompanyName:   companyName,
		Date:          e.formatDate(bookedSlot.Date),
		StartTime:     requested.Start,
		EndTime:       requested.End,
		InterviewType: interviewType,
		ConfirmedAt:   bookingRow.ConfirmedAt,
	}
	if e.dispatcher != nil {
		e.dispatcher.Dispatch(notificationFor(view, bookedSlot.Date, candidate))
	}

	if leftovers == nil {
		leftovers = []timeofday.Range{}
	}
	if blocked == nil {
		blocked = []string{}
	}
	return Confirmation{Booking: view, BlockedSchedules: blocked, NewSchedules: leftovers}, nil
}

func validateBookRequest(req BookRequest) (timeofday.Range, error) {
	if strings.TrimSpace(req.ScheduleID) == "" || req.StartTime == "" || req.EndTime == "" {
		return timeofday.Range{}, NewError(KindInvalidRequest, "scheduleId, startTime and endTime are required")
	}
	if strings.TrimSpace(req.CompanyID) == "" && strings.TrimSpace(req.CompanyName) == "" {
		return timeofday.Range{}, NewError(KindInvalidRequest, "companyId or companyName is required")
	}
	start, err := timeofday.Parse(req.StartTime)
	if err != nil {
		return timeofday.Range{}, NewError(KindInvalidRequest, "startTime must be HH:MM").Wrap(err)
	}
	end, err := timeofday.Parse(req.EndTime)
	if err != nil {
		return timeofday.Range{}, NewError(KindInvalidRequest, "endTime must be HH:MM").Wrap(err)
	}
	requested := timeofday.NewRange(start, end)
	if !requested.Valid() {
		return timeofday.Range{}, NewError(KindInvalidTimeRange, "startTime must be before endTime")
	}
	return requested, nil
}

// mergeCovering walks slots ordered by start and returns their union, failing when the chain
// has a gap or does not contain requested.
func mergeCovering(slots []Slot, requested timeofday.Range) (timeofday.Range, error) {
	if len(slots) == 0 {
		return timeofday.Range{}, NewError(KindScheduleNotFound, "no availability for the requested time")
	}
	merged := slots[0].Range()
	for _, s := range slots[1:] {
		if s.Start > merged.End {
			return timeofday.Range{}, NewError(KindInvalidTimeRange, "requested time is not continuously available")
		}
		merged.End = max(merged.End, s.End)
	}
	if !merged.Contains(requested) {
		return timeofday.Range{}, NewError(KindInvalidTimeRange, "requested time is outside the available schedule")
	}
	return merged, nil
}

func sameSlots(a, b []Slot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Range() != b[i].Range() || a[i].Status != b[i].Status {
			return false
		}
	}
	return true
}

func (e *Engine) resolveCompanyName(ctx context.Context, req BookRequest) string {
	if req.CompanyID != "" {
		company, err := e.store.Company(ctx, req.CompanyID)
		if err == nil && company.Name != "" {
			return company.Name
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			e.logger.Warn().Err(err).Str("company_id", req.CompanyID).Msg("company lookup failed")
		}
	}
	return strings.TrimSpace(req.CompanyName)
}

func (e *Engine) bufferFor(c Candidate, t InterviewType) int {
	if t == Onsite {
		if c.OnsiteBufferMinutes != nil {
			return *c.OnsiteBufferMinutes
		}
		return e.cfg.OnsiteBufferMinutes
	}
	if c.OnlineBufferMinutes != nil {
		return *c.OnlineBufferMinutes
	}
	return e.cfg.OnlineBufferMinutes
}

// propagateBuffer blocks the buffer around the booked interval and around region, the covering
// region it was carved from, on every other bookable slot of the candidate's day except those in
// exclude. Slots only partly inside the buffer are split. It returns the blocked slot ids.
func (e *Engine) propagateBuffer(ctx context.Context, tx Tx, booked Slot, region timeofday.Range, buffer int, exclude []string, now time.Time) ([]string, error) {
	if buffer <= 0 {
		return nil, nil
	}
	w := bufferAround(booked.Range(), region, buffer)
	windows := w.all()
	if len(windows) == 0 {
		return nil, nil
	}

	others, err := tx.ListSlots(ctx, SlotQuery{
		CandidateID: booked.CandidateID,
		Date:        booked.Date,
		Bookable:    true,
		Windows:     windows,
		Mode:        OverlapStrict,
		ExcludeIDs:  exclude,
		ForUpdate:   true,
	})
	if err != nil {
		return nil, err
	}

	var blocked []string
	for _, s := range others {
		plan, ok := planBlock(s, w)
		if !ok {
			continue
		}

		if plan.inPlace() {
			s.Status = StatusBlocked
			s.BlockingBookingID = booked.ID
			s.Reselectable = false
			s.UpdatedAt = now
			if err := tx.UpdateSlot(ctx, s); err != nil {
				return nil, err
			}
			blocked = append(blocked, s.ID)
			continue
		}

		if err := tx.DeleteSlots(ctx, []string{s.ID}); err != nil {
			return nil, err
		}
		for _, p := range plan.pieces {
			status, blockingID := StatusAvailable, ""
			if p.blocked {
				status, blockingID = StatusBlocked, booked.ID
			}
			part := e.deriveSlot(s, p.r, status, blockingID, now)
			if err := tx.InsertSlot(ctx, part); err != nil {
				return nil, err
			}
			if p.blocked {
				blocked = append(blocked, part.ID)
			}
		}
	}
	return blocked, nil
}

// releaseBlocks returns to availability every blocked slot whose block was caused by a booking
// on one of slotIDs. It returns the released slot ids.
func (e *Engine) releaseBlocks(ctx context.Context, tx Tx, candidateID string, slotIDs []string, now time.Time) ([]string, error) {
	var released []string
	for _, id := range slotIDs {
		stale, err := tx.ListSlots(ctx, SlotQuery{
			CandidateID:       candidateID,
			Statuses:          []SlotStatus{StatusBlocked},
			BlockingBookingID: id,
			ForUpdate:         true,
		})
		if err != nil {
			return nil, err
		}
		for _, s := range stale {
			s.Status = StatusAvailable
			s.BlockingBookingID = ""
			s.Reselectable = false
			s.UpdatedAt = now
			if err := tx.UpdateSlot(ctx, s); err != nil {
				return nil, err
			}
			released = append(released, s.ID)
		}
	}
	return released, nil
}

// deriveSlot creates a new slot on the same candidate, date and interview type as parent.
func (e *Engine) deriveSlot(parent Slot, r timeofday.Range, status SlotStatus, blockingID string, now time.Time) Slot {
	return Slot{
		ID:                e.newID(),
		CandidateID:       parent.CandidateID,
		Date:              parent.Date,
		Start:             r.Start,
		End:               r.End,
		InterviewType:     parent.InterviewType,
		Status:            status,
		BlockingBookingID: blockingID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (e *Engine) formatDate(d time.Time) string {
	return DateOf(d).Format(e.cfg.DateLayout)
}

func notificationFor(view BookingView, date time.Time, c Candidate) notify.Message {
	msg := notify.Message{
		BookingID:     view.ID,
		CandidateName: view.CandidateName,
		CompanyName:   view.CompanyName,
		Date:          DateOf(date),
		DateLabel:     view.Date,
		StartTime:     view.StartTime,
		EndTime:       view.EndTime,
		InterviewType: string(view.InterviewType),
		ConfirmedAt:   view.ConfirmedAt,
	}
	if c.Owner != nil {
		msg.Recipients = notify.Recipients{
			Name:           c.Owner.Name,
			Email:          c.Owner.Email,
			TelegramChatID: c.Owner.TelegramChatID,
		}
	}
	return msg
}
