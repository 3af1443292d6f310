package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"booking-service/internal/booking"
	"booking-service/internal/timeofday"
)

//go:embed schema.sql
var schema string

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements booking.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) CandidateByToken(ctx context.Context, token string) (booking.Candidate, error) {
	return scanCandidate(s.pool.QueryRow(ctx, candidateSelect+` WHERE c.token = $1`, token))
}

func (s *Store) Candidate(ctx context.Context, id string) (booking.Candidate, error) {
	return scanCandidate(s.pool.QueryRow(ctx, candidateSelect+` WHERE c.id = $1`, id))
}

func (s *Store) Company(ctx context.Context, id string) (booking.Company, error) {
	var c booking.Company
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM companies WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if err != nil {
		return booking.Company{}, notFound(err)
	}
	return c, nil
}

func (s *Store) Slot(ctx context.Context, id string) (booking.Slot, error) {
	return getSlot(ctx, s.pool, id, false)
}

func (s *Store) Booking(ctx context.Context, id string) (booking.Booking, error) {
	return getBooking(ctx, s.pool, id, false)
}

func (s *Store) ListSlots(ctx context.Context, q booking.SlotQuery) ([]booking.Slot, error) {
	return listSlots(ctx, s.pool, q, false)
}

func (s *Store) ListBookings(ctx context.Context, candidateID string) ([]booking.Booking, error) {
	rows, err := s.pool.Query(ctx, bookingSelect+` WHERE candidate_id = $1 ORDER BY confirmed_at, id`, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// WithTx runs fn inside a read-committed transaction. Rows read with ForUpdate stay locked
// until fn returns.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &tx{q: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

type tx struct {
	q querier
}

func (t *tx) Slot(ctx context.Context, id string) (booking.Slot, error) {
	return getSlot(ctx, t.q, id, true)
}

func (t *tx) Booking(ctx context.Context, id string) (booking.Booking, error) {
	return getBooking(ctx, t.q, id, true)
}

func (t *tx) ListSlots(ctx context.Context, q booking.SlotQuery) ([]booking.Slot, error) {
	return listSlots(ctx, t.q, q, true)
}

func (t *tx) InsertSlot(ctx context.Context, s booking.Slot) error {
	q := `INSERT INTO availability_slots
	      (id, candidate_id, date, start_minute, end_minute, interview_type, status, blocking_slot_id, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := t.q.Exec(ctx, q,
		s.ID, s.CandidateID, booking.DateOf(s.Date), int(s.Start), int(s.End),
		string(s.InterviewType), string(s.Status), nullable(s.BlockingBookingID),
		timestamp(s.CreatedAt), timestamp(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("postgres: insert slot %s: %w", s.ID, err)
	}
	return nil
}

func (t *tx) UpdateSlot(ctx context.Context, s booking.Slot) error {
	q := `UPDATE availability_slots
	      SET date=$2, start_minute=$3, end_minute=$4, interview_type=$5, status=$6, blocking_slot_id=$7, updated_at=$8
	      WHERE id=$1`
	tag, err := t.q.Exec(ctx, q,
		s.ID, booking.DateOf(s.Date), int(s.Start), int(s.End),
		string(s.InterviewType), string(s.Status), nullable(s.BlockingBookingID), timestamp(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("postgres: update slot %s: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (t *tx) DeleteSlots(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.q.Exec(ctx, `DELETE FROM availability_slots WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("postgres: delete slots: %w", err)
	}
	return nil
}

func (t *tx) DeleteCancelledBookings(ctx context.Context, slotIDs []string) error {
	if len(slotIDs) == 0 {
		return nil
	}
	_, err := t.q.Exec(ctx, `DELETE FROM bookings WHERE slot_id = ANY($1) AND cancelled_at IS NOT NULL`, slotIDs)
	if err != nil {
		return fmt.Errorf("postgres: delete cancelled bookings: %w", err)
	}
	return nil
}

func (t *tx) InsertBooking(ctx context.Context, b booking.Booking) error {
	q := `INSERT INTO bookings (id, slot_id, candidate_id, company_id, company_name, confirmed_at, cancelled_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := t.q.Exec(ctx, q, b.ID, b.SlotID, b.CandidateID, b.CompanyID, b.CompanyName, b.ConfirmedAt, b.CancelledAt)
	if err != nil {
		return fmt.Errorf("postgres: insert booking %s: %w", b.ID, err)
	}
	return nil
}

func (t *tx) UpdateBooking(ctx context.Context, b booking.Booking) error {
	tag, err := t.q.Exec(ctx, `UPDATE bookings SET company_id=$2, company_name=$3, cancelled_at=$4 WHERE id=$1`,
		b.ID, b.CompanyID, b.CompanyName, b.CancelledAt)
	if err != nil {
		return fmt.Errorf("postgres: update booking %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (t *tx) InsertCandidate(ctx context.Context, c booking.Candidate) error {
	var ownerID *string
	if o := c.Owner; o != nil {
		q := `INSERT INTO owners (id, name, email, telegram_chat_id) VALUES ($1,$2,$3,$4)
		      ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, email=EXCLUDED.email, telegram_chat_id=EXCLUDED.telegram_chat_id`
		if _, err := t.q.Exec(ctx, q, o.ID, o.Name, o.Email, o.TelegramChatID); err != nil {
			return fmt.Errorf("postgres: upsert owner %s: %w", o.ID, err)
		}
		ownerID = &o.ID
	}
	q := `INSERT INTO candidates (id, owner_id, name, token, online_buffer_minutes, onsite_buffer_minutes)
	      VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := t.q.Exec(ctx, q, c.ID, ownerID, c.Name, c.Token, c.OnlineBufferMinutes, c.OnsiteBufferMinutes); err != nil {
		return fmt.Errorf("postgres: insert candidate %s: %w", c.ID, err)
	}
	return nil
}

func (t *tx) InsertCompany(ctx context.Context, c booking.Company) error {
	if _, err := t.q.Exec(ctx, `INSERT INTO companies (id, name) VALUES ($1,$2)`, c.ID, c.Name); err != nil {
		return fmt.Errorf("postgres: insert company %s: %w", c.ID, err)
	}
	return nil
}

// --- queries ---

const candidateSelect = `SELECT c.id, c.name, c.token, c.online_buffer_minutes, c.onsite_buffer_minutes,
       o.id, o.name, o.email, o.telegram_chat_id
FROM candidates c LEFT JOIN owners o ON o.id = c.owner_id`

const bookingSelect = `SELECT id, slot_id, candidate_id, company_id, company_name, confirmed_at, cancelled_at FROM bookings`

// reselectable is true for a blocked slot whose blocking booked slot has no active booking.
const reselectable = `(s.status = 'blocked' AND NOT EXISTS (
    SELECT 1 FROM bookings b WHERE b.slot_id = s.blocking_slot_id AND b.cancelled_at IS NULL))`

const slotSelect = `SELECT s.id, s.candidate_id, s.date, s.start_minute, s.end_minute, s.interview_type, s.status,
       COALESCE(s.blocking_slot_id, ''), ` + reselectable + `, s.created_at, s.updated_at
FROM availability_slots s`

func scanCandidate(row pgx.Row) (booking.Candidate, error) {
	var (
		c                    booking.Candidate
		ownerID, name, email *string
		chatID               *int64
	)
	err := row.Scan(&c.ID, &c.Name, &c.Token, &c.OnlineBufferMinutes, &c.OnsiteBufferMinutes,
		&ownerID, &name, &email, &chatID)
	if err != nil {
		return booking.Candidate{}, notFound(err)
	}
	if ownerID != nil {
		c.Owner = &booking.Owner{ID: *ownerID}
		if name != nil {
			c.Owner.Name = *name
		}
		if email != nil {
			c.Owner.Email = *email
		}
		if chatID != nil {
			c.Owner.TelegramChatID = *chatID
		}
	}
	return c, nil
}

func scanSlot(row pgx.Row) (booking.Slot, error) {
	var (
		s            booking.Slot
		start, end   int
		kind, status string
	)
	err := row.Scan(&s.ID, &s.CandidateID, &s.Date, &start, &end, &kind, &status,
		&s.BlockingBookingID, &s.Reselectable, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return booking.Slot{}, err
	}
	s.Date = booking.DateOf(s.Date)
	s.Start, s.End = timeofday.TimeOfDay(start), timeofday.TimeOfDay(end)
	s.InterviewType = booking.InterviewType(kind)
	s.Status = booking.SlotStatus(status)
	return s, nil
}

func scanBooking(row pgx.Row) (booking.Booking, error) {
	var b booking.Booking
	err := row.Scan(&b.ID, &b.SlotID, &b.CandidateID, &b.CompanyID, &b.CompanyName, &b.ConfirmedAt, &b.CancelledAt)
	return b, err
}

func getSlot(ctx context.Context, q querier, id string, lock bool) (booking.Slot, error) {
	sql := slotSelect + ` WHERE s.id = $1`
	if lock {
		sql += ` FOR UPDATE OF s`
	}
	s, err := scanSlot(q.QueryRow(ctx, sql, id))
	if err != nil {
		return booking.Slot{}, notFound(err)
	}
	return s, nil
}

func getBooking(ctx context.Context, q querier, id string, lock bool) (booking.Booking, error) {
	sql := bookingSelect + ` WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	b, err := scanBooking(q.QueryRow(ctx, sql, id))
	if err != nil {
		return booking.Booking{}, notFound(err)
	}
	return b, nil
}

func listSlots(ctx context.Context, q querier, sq booking.SlotQuery, inTx bool) ([]booking.Slot, error) {
	sql, args := buildSlotQuery(sq, inTx)
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// buildSlotQuery translates a SlotQuery into SQL with the same semantics as SlotQuery.Matches.
func buildSlotQuery(sq booking.SlotQuery, inTx bool) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if sq.CandidateID != "" {
		where = append(where, "s.candidate_id = "+arg(sq.CandidateID))
	}
	if !sq.Date.IsZero() {
		where = append(where, "s.date = "+arg(booking.DateOf(sq.Date)))
	}
	if sq.InterviewType != "" {
		where = append(where, "s.interview_type = "+arg(string(sq.InterviewType)))
	}
	if sq.Bookable {
		where = append(where, "(s.status = 'available' OR "+reselectable+")")
	} else if len(sq.Statuses) > 0 {
		statuses := make([]string, len(sq.Statuses))
		for i, st := range sq.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "s.status = ANY("+arg(statuses)+")")
	}
	if sq.BlockingBookingID != "" {
		where = append(where, "s.blocking_slot_id = "+arg(sq.BlockingBookingID))
	}
	if len(sq.ExcludeIDs) > 0 {
		where = append(where, "NOT (s.id = ANY("+arg(sq.ExcludeIDs)+"))")
	}
	if len(sq.Windows) > 0 {
		lt, gt := "<", ">"
		if sq.Mode == booking.OverlapTouching {
			lt, gt = "<=", ">="
		}
		var ors []string
		for _, w := range sq.Windows {
			ors = append(ors, fmt.Sprintf("(s.start_minute %s %s AND s.end_minute %s %s)",
				lt, arg(int(w.End)), gt, arg(int(w.Start))))
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}

	sql := slotSelect
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY s.date, s.start_minute, s.id"
	if sq.ForUpdate && inTx {
		sql += " FOR UPDATE OF s"
	}
	return sql, args
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.ErrNotFound
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
