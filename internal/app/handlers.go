package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"booking-service/internal/booking"
)

type bookRequest struct {
	ScheduleID    string `json:"scheduleId"`
	StartTime     string `json:"startTime"`
	EndTime       string `json:"endTime"`
	InterviewType string `json:"interviewType"`
	CompanyID     string `json:"companyId"`
	CompanyName   string `json:"companyName"`
}

// POST /schedule/:token/book
func (a *App) BookHandler(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, booking.NewError(booking.KindInvalidRequest, "request body must be a JSON object").Wrap(err))
		return
	}

	conf, err := a.Engine.Book(c.Request.Context(), booking.BookRequest{
		Token:         c.Param("token"),
		ScheduleID:    req.ScheduleID,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		InterviewType: req.InterviewType,
		CompanyID:     req.CompanyID,
		CompanyName:   req.CompanyName,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"booking":          conf.Booking,
		"blockedSchedules": conf.BlockedSchedules,
		"newSchedules":     conf.NewSchedules,
	})
}

// GET /schedule/:token?date=YYYY-MM-DD
func (a *App) AvailabilityHandler(c *gin.Context) {
	date, ok := a.dateQuery(c)
	if !ok {
		return
	}
	out, err := a.Engine.Availability(c.Request.Context(), c.Param("token"), date)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// POST /api/candidates
func (a *App) RegisterCandidateHandler(c *gin.Context) {
	var in booking.CandidateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		a.fail(c, booking.NewError(booking.KindInvalidRequest, err.Error()))
		return
	}
	candidate, err := a.Engine.RegisterCandidate(c.Request.Context(), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"candidate":    candidate,
		"schedulePath": "/schedule/" + candidate.Token,
	})
}

type companyRequest struct {
	Name string `json:"name" binding:"required"`
}

// POST /api/companies
func (a *App) RegisterCompanyHandler(c *gin.Context) {
	var req companyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, booking.NewError(booking.KindInvalidRequest, err.Error()))
		return
	}
	company, err := a.Engine.RegisterCompany(c.Request.Context(), req.Name)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, company)
}

// POST /api/candidates/:id/slots
// Accepts a list of slots; either all of them are created or none.
func (a *App) PublishSlotsHandler(c *gin.Context) {
	var payload []booking.SlotInput
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.fail(c, booking.NewError(booking.KindInvalidRequest, err.Error()))
		return
	}
	slots, err := a.Engine.Publish(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, slots)
}

// GET /api/candidates/:id/slots?date=YYYY-MM-DD
func (a *App) ListSlotsHandler(c *gin.Context) {
	date, ok := a.dateQuery(c)
	if !ok {
		return
	}
	slots, err := a.Engine.Slots(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

// DELETE /api/slots/:id
func (a *App) WithdrawSlotHandler(c *gin.Context) {
	slot, err := a.Engine.Withdraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

// GET /api/candidates/:id/bookings
func (a *App) ListBookingsHandler(c *gin.Context) {
	bookings, err := a.Engine.Bookings(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// DELETE /api/bookings/:id
func (a *App) CancelBookingHandler(c *gin.Context) {
	res, err := a.Engine.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	a.Logger.Info().Str("booking_id", res.Booking.ID).Str("by", c.GetString(subjectKey)).Msg("booking cancelled via api")
	c.JSON(http.StatusOK, res)
}

// GET /healthz
func (a *App) HealthHandler(c *gin.Context) {
	if a.Ping != nil {
		if err := a.Ping(c.Request.Context()); err != nil {
			a.Logger.Error().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) dateQuery(c *gin.Context) (time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		return time.Time{}, true
	}
	date, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		a.fail(c, booking.NewError(booking.KindInvalidRequest, "date must be YYYY-MM-DD"))
		return time.Time{}, false
	}
	return date, true
}

// fail writes the {error, message} body for err. Unclassified errors are logged and reported
// as InternalError without their details.
func (a *App) fail(c *gin.Context, err error) {
	kind := booking.KindOf(err)
	message := "internal server error"
	var e *booking.Error
	if errors.As(err, &e) && kind != booking.KindInternal {
		message = e.Message
	}
	if kind == booking.KindInternal {
		a.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(kind.HTTPStatus(), gin.H{"error": kind, "message": message})
}
