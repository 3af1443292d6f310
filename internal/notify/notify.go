package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"booking-service/internal/timeofday"
)

// Message describes a confirmed interview booking.
type Message struct {
	BookingID     string              `json:"bookingId"`
	CandidateName string              `json:"candidateName"`
	CompanyName   string              `json:"companyName"`
	Date          time.Time           `json:"date"`
	DateLabel     string              `json:"dateLabel"`
	StartTime     timeofday.TimeOfDay `json:"startTime"`
	EndTime       timeofday.TimeOfDay `json:"endTime"`
	InterviewType string              `json:"interviewType"`
	ConfirmedAt   time.Time           `json:"confirmedAt"`
	Recipients    Recipients          `json:"recipients"`
}

// Recipients are derived from the candidate's registering owner.
type Recipients struct {
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	TelegramChatID int64  `json:"telegramChatId,omitempty"`
}

// Text renders the message for chat channels.
func (m Message) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Interview confirmed: %s with %s\n", m.CandidateName, m.CompanyName)
	fmt.Fprintf(&b, "%s %s-%s (%s)", m.DateLabel, m.StartTime, m.EndTime, m.InterviewType)
	return b.String()
}

// Notifier delivers a booking confirmation to one channel.
type Notifier interface {
	NotifyBookingConfirmed(ctx context.Context, msg Message) error
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) NotifyBookingConfirmed(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyBookingConfirmed(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher runs notifications as detached tasks. A failed delivery is logged and
// never reported back to the caller.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

func (d *Dispatcher) Dispatch(msg Message) {
	if d == nil || d.notifier == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().Interface("panic", r).Str("booking_id", msg.BookingID).Msg("notification panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.NotifyBookingConfirmed(ctx, msg); err != nil {
			d.logger.Error().Err(err).Str("booking_id", msg.BookingID).Msg("booking notification failed")
			return
		}
		d.logger.Debug().Str("booking_id", msg.BookingID).Msg("booking notification sent")
	}()
}

// Wait blocks until every dispatched notification has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
