package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"

	"booking-service/internal/booking"
	"booking-service/internal/logging"
	"booking-service/internal/ratelimit"
)

// App carries the dependencies of the HTTP handlers.
type App struct {
	Engine  *booking.Engine
	Limiter *ratelimit.Limiter // nil disables rate limiting
	Limits  ratelimit.Limits
	Auth    AuthConfig
	Logger  zerolog.Logger

	// Google Calendar integration; both optional.
	OAuth      *oauth2.Config
	Calendar   *calendar.Service
	CalendarID string

	// Ping reports storage health for /healthz.
	Ping func(ctx context.Context) error

	states *oauthStates
}

// Router builds the gin engine with every route of the service.
func (a *App) Router() *gin.Engine {
	if a.states == nil {
		a.states = newOAuthStates()
	}

	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(a.Logger))

	router.GET("/healthz", a.HealthHandler)

	// OAuth2 callback (must be before auth middleware)
	router.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	schedule := router.Group("/schedule")
	{
		schedule.GET("/:token", a.rateLimit("view"), a.AvailabilityHandler)
		schedule.POST("/:token/book", a.rateLimit("book"), a.BookHandler)
	}

	api := router.Group("/api")
	api.Use(AuthMiddleware(a.Auth))
	{
		api.POST("/companies", a.RegisterCompanyHandler)

		candidates := api.Group("/candidates")
		{
			candidates.POST("", a.RegisterCandidateHandler)
			candidates.POST("/:id/slots", a.PublishSlotsHandler)
			candidates.GET("/:id/slots", a.ListSlotsHandler)
			candidates.GET("/:id/bookings", a.ListBookingsHandler)
		}
		api.DELETE("/slots/:id", a.WithdrawSlotHandler)
		api.DELETE("/bookings/:id", a.CancelBookingHandler)

		// Google Calendar integration routes
		cal := api.Group("/calendar")
		{
			cal.GET("/auth", a.GoogleAuthHandler)
			cal.GET("/events", a.CalendarEventsHandler)
		}
	}

	return router
}

func (a *App) rateLimit(scope string) gin.HandlerFunc {
	if a.Limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return ratelimit.Middleware(a.Limiter, scope, a.Limits, a.Logger)
}
