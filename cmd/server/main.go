package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/hostel-occupancy/internal/config"
	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/handler"
	"github.com/iliyamo/hostel-occupancy/internal/middleware"
	"github.com/iliyamo/hostel-occupancy/internal/notify"
	"github.com/iliyamo/hostel-occupancy/internal/queue"
	"github.com/iliyamo/hostel-occupancy/internal/repository"
	"github.com/iliyamo/hostel-occupancy/internal/router"
	"github.com/iliyamo/hostel-occupancy/internal/scheduler"
	"github.com/iliyamo/hostel-occupancy/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h).With("env", cfg.Env)
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := database.Open(database.Options{
		User:             cfg.DBUser,
		Pass:             cfg.DBPass,
		Host:             cfg.DBHost,
		Port:             cfg.DBPort,
		Name:             cfg.DBName,
		MaxConns:         cfg.DBMaxConns,
		StatementTimeout: cfg.DBStatementTimeout,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	txr := database.NewTxRunner(db)
	probe := repository.NewSchemaProbe(db, cfg.SchemaProbeTTL, logger)
	stores := service.Stores{
		Users:        repository.NewUserRepo(db),
		Rooms:        repository.NewRoomRepo(db),
		Semesters:    repository.NewSemesterRepo(db),
		Enrollments:  repository.NewEnrollmentRepo(),
		Assignments:  repository.NewAssignmentRepo(),
		Payments:     repository.NewPaymentRepo(),
		Bookings:     repository.NewBookingRepo(db),
		Reservations: repository.NewReservationRepo(),
	}

	// Broker: audit events and queued e-mail.  Without RABBITMQ_URL audit
	// goes to the log and e-mail is sent from goroutines.
	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	var (
		audit      *queue.AuditLog
		dispatcher *notify.Dispatcher
	)
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, logger)
		defer pub.Close()
		audit = queue.NewAuditLog(pub, logger)
		dispatcher = notify.NewDispatcher(mailer, pub, logger)

		consumer := queue.NewConsumer(cfg.RabbitURL, map[string]queue.Handler{
			queue.AuditQueue: queue.AuditFileHandler(cfg.AuditLogDir),
			queue.EmailQueue: queue.EmailHandler(mailer),
		}, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("queue consumer stopped", "err", err)
			}
		}()
	} else {
		logger.Warn("RABBITMQ_URL not set; audit events are logged only")
		audit = queue.NewAuditLog(nil, logger)
		dispatcher = notify.NewDispatcher(mailer, nil, logger)
	}
	defer dispatcher.Wait()
	if !mailer.Enabled() {
		logger.Warn("SMTP_HOST not set; notifications will not be delivered")
	}

	// Redis backs the reminder ledger and the rate limiter.
	var (
		ledger service.ReminderLedger
		rdb    redis.Scripter
	)
	rc := config.LoadRedisConfig()
	if client := config.NewRedisClient(rc); client != nil {
		defer client.Close()
		ledger = notify.NewRedisLedger(client, rc.Prefix)
		rdb = client
	} else {
		logger.Warn("redis unavailable; reminder ledger is per-process and rate limiting is off")
		ledger = notify.NewMemoryLedger()
	}

	occupancy := service.NewOccupancyService(txr, probe, stores, audit, logger)
	registration := service.NewRegistrationService(txr, probe, stores, occupancy, dispatcher, audit, service.RegistrationOptions{
		BcryptCost:      cfg.BcryptCost,
		DefaultCurrency: cfg.DefaultCurrency,
	}, logger)
	sweeper := service.NewBookingSweeper(txr, stores.Bookings, cfg.BookingExpiryThreshold, cfg.BookingSweepBatch, logger)
	semesters := service.NewSemesterScheduler(txr, probe, stores, occupancy, dispatcher, ledger, audit, service.SemesterOptions{
		ReminderLookahead: cfg.SemesterReminderLookahead,
		Location:          cfg.Location,
	}, logger)

	jobs, err := scheduler.New(sweeper, semesters, scheduler.Options{
		SweepInterval: cfg.BookingSweepInterval,
		SemesterAt:    cfg.SemesterJobAt,
		Location:      cfg.Location,
		RunOnStart:    cfg.RunJobsOnStart,
	}, logger)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	jobs.Start()
	defer func() {
		if err := jobs.Shutdown(); err != nil {
			logger.Warn("scheduler shutdown", "err", err)
		}
	}()
	logger.Info("background jobs scheduled", "jobs", jobs.Jobs())

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Handlers{
		Health:       handler.NewHealthHandler(db),
		Registration: handler.NewRegistrationHandler(registration),
		Rooms:        handler.NewRoomHandler(occupancy),
		Jobs:         handler.NewJobsHandler(sweeper, semesters),
	}, cfg.JWTSecret, rateLimiter(rdb))

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// rateLimiter returns nil when rate limiting is disabled or Redis is
// unavailable.
func rateLimiter(rdb redis.Scripter) echo.MiddlewareFunc {
	rl := config.LoadRateLimitConfig()
	if rdb == nil || !rl.Enabled {
		return nil
	}
	return middleware.NewTokenBucket(rl, rdb)
}
