package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
)

const oauthStateTTL = 10 * time.Minute

// oauthStates remembers issued consent states until they are used or expire.
type oauthStates = expirable.LRU[string, struct{}]

func newOAuthStates() *oauthStates {
	return expirable.NewLRU[string, struct{}](128, nil, oauthStateTTL)
}

// CalendarEvent is an interview event read back from Google Calendar.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Status      string    `json:"status"`
	Attendees   []string  `json:"attendees,omitempty"`
}

// GoogleAuthHandler starts the consent flow that yields the refresh token used to write
// interview events.
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if a.OAuth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "NotConfigured", "message": "Google Calendar not configured"})
		return
	}

	state := uuid.NewString()
	a.states.Add(state, struct{}{})

	url := a.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	c.JSON(http.StatusOK, gin.H{
		"authUrl": url,
		"state":   state,
	})
}

// GoogleOAuth2CallbackHandler exchanges the authorization code. The refresh token in the
// response is meant for GOOGLE_REFRESH_TOKEN.
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if a.OAuth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "NotConfigured", "message": "Google Calendar not configured"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest", "message": "authorization code required"})
		return
	}
	if state := c.Query("state"); state == "" || !a.states.Remove(state) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest", "message": "unknown or expired state"})
		return
	}

	token, err := a.OAuth.Exchange(c.Request.Context(), code)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("oauth code exchange failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest", "message": "failed to exchange code for token"})
		return
	}
	if token.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest", "message": "no refresh token granted, revoke access and retry"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Authorization successful",
		"refreshToken": token.RefreshToken,
	})
}

// GET /api/calendar/events?time_min=RFC3339&time_max=RFC3339
// Lists the interview events on the configured calendar.
func (a *App) CalendarEventsHandler(c *gin.Context) {
	if a.Calendar == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "NotConfigured", "message": "Google Calendar not configured"})
		return
	}

	calendarID := a.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	eventsCall := a.Calendar.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250).
		Context(c.Request.Context())

	timeMin, timeMax := c.Query("time_min"), c.Query("time_max")
	for _, p := range []struct{ name, value string }{
		{"time_min", timeMin},
		{"time_max", timeMax},
	} {
		if p.value == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, p.value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest", "message": p.name + " must be RFC3339"})
			return
		}
	}
	if timeMin != "" {
		eventsCall = eventsCall.TimeMin(timeMin)
	}
	if timeMax != "" {
		eventsCall = eventsCall.TimeMax(timeMax)
	}

	events, err := eventsCall.Do()
	if err != nil {
		a.Logger.Error().Err(err).Msg("calendar events list failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "InternalError", "message": fmt.Sprintf("failed to retrieve events: %v", err)})
		return
	}

	out := make([]CalendarEvent, 0, len(events.Items))
	for _, item := range events.Items {
		event := CalendarEvent{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Status:      item.Status,
		}
		event.StartTime = eventTime(item.Start)
		event.EndTime = eventTime(item.End)
		for _, at := range item.Attendees {
			event.Attendees = append(event.Attendees, at.Email)
		}
		out = append(out, event)
	}

	c.JSON(http.StatusOK, gin.H{
		"events": out,
		"count":  len(out),
	})
}

// eventTime reads a timed event's DateTime, or the Date of an all-day event as midnight UTC.
func eventTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t
		}
	}
	if dt.Date != "" {
		if t, err := time.Parse(time.DateOnly, dt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}
