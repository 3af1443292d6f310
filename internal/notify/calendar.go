package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleOAuthConfig builds the OAuth2 client used both for the consent flow and for the
// calendar notifier. It returns nil when any credential is missing.
func GoogleOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{calendar.CalendarEventsScope},
		Endpoint:     google.Endpoint,
	}
}

// NewCalendarService creates a Calendar client that refreshes its access token from refreshToken.
func NewCalendarService(ctx context.Context, cfg *oauth2.Config, refreshToken string) (*calendar.Service, error) {
	client := cfg.Client(ctx, &oauth2.Token{RefreshToken: refreshToken})
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return srv, nil
}

// CalendarNotifier records every confirmed interview as an event in a Google Calendar and
// invites the candidate's owner.
type CalendarNotifier struct {
	srv        *calendar.Service
	calendarID string
	loc        *time.Location
	logger     zerolog.Logger
}

func NewCalendarNotifier(srv *calendar.Service, calendarID string, loc *time.Location, logger zerolog.Logger) *CalendarNotifier {
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarNotifier{
		srv:        srv,
		calendarID: calendarID,
		loc:        loc,
		logger:     logger.With().Str("notifier", "calendar").Logger(),
	}
}

func (n *CalendarNotifier) NotifyBookingConfirmed(ctx context.Context, msg Message) error {
	start := msg.StartTime.On(msg.Date, n.loc)
	end := msg.EndTime.On(msg.Date, n.loc)

	event := &calendar.Event{
		Summary:     fmt.Sprintf("Interview: %s / %s", msg.CandidateName, msg.CompanyName),
		Description: fmt.Sprintf("Interview type: %s\nBooking: %s", msg.InterviewType, msg.BookingID),
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: n.loc.String()},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: n.loc.String()},
	}
	if msg.Recipients.Email != "" {
		event.Attendees = []*calendar.EventAttendee{{
			Email:       msg.Recipients.Email,
			DisplayName: msg.Recipients.Name,
		}}
	}

	created, err := n.srv.Events.Insert(n.calendarID, event).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("calendar: insert event for booking %s: %w", msg.BookingID, err)
	}
	n.logger.Debug().Str("booking_id", msg.BookingID).Str("event_id", created.Id).Msg("calendar event created")
	return nil
}
