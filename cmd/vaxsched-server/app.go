package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/vaxsched/vaxsched/internal/config"
	"github.com/vaxsched/vaxsched/internal/domain/appointment"
	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
	"github.com/vaxsched/vaxsched/internal/domain/reminder"
	"github.com/vaxsched/vaxsched/internal/domain/vaccineschedule"
	"github.com/vaxsched/vaxsched/internal/domain/verification"
	"github.com/vaxsched/vaxsched/internal/platform/db"
	"github.com/vaxsched/vaxsched/internal/platform/middleware"
	"github.com/vaxsched/vaxsched/internal/platform/notification"
)

const version = "0.1.0"

type app struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	logger   zerolog.Logger
	migrator *db.Migrator

	schedules     *vaccineschedule.Service
	appointments  *appointment.Service
	verification  *verification.Service
	notifications *notification.Manager
	reminder      *reminder.Reminder
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("HOSPITAL_TIMEZONE: %w", err)
	}

	a := &app{
		cfg:      cfg,
		pool:     pool,
		logger:   logger,
		migrator: db.NewMigrator(pool, cfg.MigrationsDir),
	}

	a.schedules = vaccineschedule.NewService(vaccineschedule.NewRepoPG(pool))
	a.appointments = appointment.NewService(
		appointment.NewPatientRepoPG(pool),
		appointment.NewAppointmentRepoPG(pool),
	)
	tx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	a.verification = verification.NewService(a.schedules, a.appointments, tx, logger)

	var line notification.LineSender
	if cfg.LineChannelToken != "" {
		line = notification.NewLineClient(cfg.LineAPIBaseURL, cfg.LineChannelToken)
	} else {
		logger.Warn().Msg("LINE_CHANNEL_ACCESS_TOKEN not set, LINE reminders disabled")
	}
	a.notifications = notification.NewManager(line, notification.NewLogSMSSender(logger), notification.NewTemplateEngine())
	a.reminder = reminder.New(a.appointments, a.schedules, a.notifications, cfg.ReminderLeadDays, loc, logger)
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// verifyOptions applies command-line overrides on top of the configured
// defaults.
func (a *app) verifyOptions(vaccineType, pairing string) (verification.Options, error) {
	opts := verification.Options{
		VaccineType: vaccineType,
		Pairing:     a.cfg.Pairing(),
		Workers:     a.cfg.VerifyWorkers,
	}
	if pairing != "" {
		mode, err := doseschedule.ParsePairingMode(pairing)
		if err != nil {
			return opts, err
		}
		opts.Pairing = mode
	}
	return opts, nil
}

func (a *app) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders(!a.cfg.IsDev()))
	e.Use(middleware.BodyLimit(a.cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool, a.migrator))
	}

	api := e.Group("/api/v1")
	if a.cfg.RateLimitRPS > 0 {
		api.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: a.cfg.RateLimitRPS,
			BurstSize:         a.cfg.RateLimitBurst,
			IdleTTL:           10 * time.Minute,
		}))
	}
	api.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))
	vaccineschedule.NewHandler(a.schedules).RegisterRoutes(api)
	appointment.NewHandler(a.appointments).RegisterRoutes(api)
	verification.NewHandler(a.verification, verification.Options{
		Pairing: a.cfg.Pairing(),
		Workers: a.cfg.VerifyWorkers,
	}).RegisterRoutes(api)
	notification.NewHandler(a.notifications).RegisterRoutes(api)
	return e
}

// serve runs the HTTP server and, when enabled, the reminder loop until ctx
// is cancelled, then shuts both down.
func (a *app) serve(ctx context.Context) error {
	e := a.router()

	if a.cfg.ReminderEnabled {
		go a.reminder.Run(ctx, a.cfg.ReminderInterval)
		a.logger.Info().
			Dur("interval", a.cfg.ReminderInterval).
			Int("lead_days", a.cfg.ReminderLeadDays).
			Msg("reminder loop started")
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.cfg.Port
		a.logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.logger.Info().Msg("server stopped")
	return nil
}
