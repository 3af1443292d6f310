package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes confirmations to the application log. It is the fallback sink when
// no external channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyBookingConfirmed(_ context.Context, msg Message) error {
	n.logger.Info().
		Str("booking_id", msg.BookingID).
		Str("candidate", msg.CandidateName).
		Str("company", msg.CompanyName).
		Str("date", msg.DateLabel).
		Str("start", msg.StartTime.String()).
		Str("end", msg.EndTime.String()).
		Str("interview_type", msg.InterviewType).
		Str("recipient", msg.Recipients.Email).
		Msg("interview booked")
	return nil
}
