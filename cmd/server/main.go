package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"google.golang.org/api/calendar/v3"

	"booking-service/internal/app"
	"booking-service/internal/booking"
	"booking-service/internal/config"
	"booking-service/internal/logging"
	"booking-service/internal/notify"
	"booking-service/internal/ratelimit"
	"booking-service/internal/server"
	"booking-service/internal/store/memory"
	"booking-service/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.New(true, "info")
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.IsLocal(), cfg.App.LogLevel)
	if !cfg.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var (
		store booking.Store
		ping  func(ctx context.Context) error
	)
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		pg := postgres.New(pool)
		if err := pg.Ping(ctx); err != nil {
			return err
		}
		if cfg.Database.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
			logger.Info().Msg("database schema applied")
		}
		store, ping = pg, pg.Ping
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		store = memory.New()
	}

	var limitStore ratelimit.Store
	if cfg.RateLimit.RedisURL != "" {
		client := ratelimit.NewRedisClient(cfg.RateLimit.RedisURL)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		limitStore = ratelimit.NewRedisStore(client, "ratelimit:")
	} else {
		mem, err := ratelimit.NewMemoryStore(cfg.RateLimit.CacheSize)
		if err != nil {
			return err
		}
		limitStore = mem
	}

	notifiers := notify.Multi{notify.NewLogNotifier(logger)}

	if cfg.Notify.Telegram.Token != "" {
		bot, err := notify.NewTelegramBot(cfg.Notify.Telegram.Token)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, notify.NewTelegramNotifier(bot, cfg.Notify.Telegram.ChatID, logger))
	}

	if cfg.Notify.AMQP.URL != "" {
		conn, err := notify.DialAMQP(cfg.Notify.AMQP.URL, cfg.Notify.AMQP.Exchange)
		if err != nil {
			return err
		}
		defer conn.Close()
		notifiers = append(notifiers, conn.Notifier(cfg.Notify.AMQP.Exchange, logger))
	}

	google := cfg.Notify.Google
	var srv *calendar.Service
	oauthCfg := notify.GoogleOAuthConfig(google.ClientID, google.ClientSecret, google.RedirectURL)
	if oauthCfg != nil {
		if google.RefreshToken != "" {
			srv, err = notify.NewCalendarService(ctx, oauthCfg, google.RefreshToken)
			if err != nil {
				return err
			}
			notifiers = append(notifiers, notify.NewCalendarNotifier(srv, google.CalendarID, loc, logger))
		} else {
			logger.Warn().Msg("GOOGLE_REFRESH_TOKEN not set, calendar events disabled until authorized")
		}
	}

	dispatcher := notify.NewDispatcher(notifiers, cfg.Notify.Timeout, logger)
	defer dispatcher.Wait()

	engine := booking.NewEngine(store, dispatcher, booking.Config{
		OnlineBufferMinutes:   cfg.Booking.OnlineBufferMinutes,
		OnsiteBufferMinutes:   cfg.Booking.OnsiteBufferMinutes,
		ReleaseBlocksOnCancel: cfg.Booking.ReleaseBlocksOnCancel,
		DateLayout:            cfg.App.DateLayout,
	}, logger)

	a := &app.App{
		Engine:  engine,
		Limiter: ratelimit.New(limitStore),
		Limits: ratelimit.Limits{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateLimit.Window,
		},
		Auth: app.AuthConfig{
			StaticTokens: cfg.Auth.StaticTokens,
			JWTSecret:    cfg.Auth.JWTSecret,
		},
		Logger:     logger,
		OAuth:      oauthCfg,
		Calendar:   srv,
		CalendarID: google.CalendarID,
		Ping:       ping,
	}

	return server.Run(ctx, a.Router(), cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout, logger)
}
