package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nailbook/internal/api"
	"nailbook/internal/config"
	"nailbook/internal/confirmation"
	"nailbook/internal/database"
	"nailbook/internal/domain"
	"nailbook/internal/events"
	"nailbook/internal/export"
	"nailbook/internal/google"
	"nailbook/internal/logging"
	"nailbook/internal/metrics"
	"nailbook/internal/notify"
	"nailbook/internal/payments"
	"nailbook/internal/repository"
	"nailbook/internal/service"
	"nailbook/internal/slots"
	"nailbook/internal/supabase"
	"nailbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	loc, _ := cfg.Location()
	closedWeekday, _ := cfg.ClosedWeekday()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, db, err := initRepository(cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	holds := initHoldStore(redisClient, logger)

	paymentsClient := payments.NewClient(cfg.Payments, logging.Component(logger, "payments"))
	var checker domain.StatusChecker = paymentsClient
	if cfg.Payments.StatusSource == "ledger" {
		checker = payments.NewRepositoryStatusChecker(repo)
	}

	eventBus := events.NewEventBus(logging.Component(logger, "events"))
	dispatcher := initNotifiers(cfg, logger)
	dispatcher.Subscribe(eventBus)

	agenda := initAgendaSheet(ctx, cfg, loc, logger)
	var syncWorker domain.SyncWorker
	if agenda != nil {
		w := initSyncWorker(cfg, db, agenda, redisClient, logger)
		go w.Start(ctx)
		syncWorker = w
	}

	projection := slots.Projection{
		Days:          cfg.Schedule.ProjectionDays,
		Slots:         cfg.Schedule.DefaultSlots,
		ClosedWeekday: closedWeekday,
	}
	window := slots.Window{
		Days:          cfg.Schedule.WindowDays,
		ScanLimit:     cfg.Schedule.ScanLimitDays,
		ClosedWeekday: closedWeekday,
	}

	bookingService := service.NewBookingService(repo, holds, paymentsClient, eventBus, syncWorker, service.BookingOptions{
		PublicBaseURL: cfg.Payments.PublicBaseURL,
		HoldTTL:       cfg.Payments.HoldTTL,
		Location:      loc,
		Projection:    projection,
		Window:        window,
	}, logging.Component(logger, "booking"))
	scheduleService := service.NewScheduleService(repo, eventBus, syncWorker, service.ScheduleOptions{
		Location:       loc,
		Projection:     projection,
		AdminHourStart: cfg.Schedule.AdminHourStart,
		AdminHourEnd:   cfg.Schedule.AdminHourEnd,
	}, logging.Component(logger, "schedule"))
	catalogService := service.NewCatalogService(repo, logging.Component(logger, "catalog"))

	exporter := export.NewExporter(repo, cfg.Exports.Path)
	if err := startScheduler(ctx, cfg, loc, repo, agenda, exporter, logger); err != nil {
		return err
	}
	if db != nil && cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
		go func() {
			if err := backupService.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("backup service stopped")
			}
		}()
	}

	startMetrics(ctx, cfg, logger)

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Bookings:      bookingService,
		Schedule:      scheduleService,
		Catalog:       catalogService,
		Watcher:       confirmation.NewWatcher(checker, cfg.Payments.PollInterval, cfg.Payments.PollBudget, logging.Component(logger, "confirmation")),
		Status:        checker,
		Exporter:      exporter,
		Window:        window,
		WebhookSecret: cfg.Payments.WebhookSecret,
		Ready: func(ctx context.Context) error {
			if err := repo.Ping(ctx); err != nil {
				return err
			}
			if redisClient != nil {
				return repository.Ping(ctx, redisClient)
			}
			return nil
		},
	}, logging.Component(logger, "http"))

	err = serve(ctx, httpServer, cfg, logger)
	dispatcher.Wait()
	return err
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initRepository(cfg *config.Config, logger *zerolog.Logger) (domain.Repository, *database.DB, error) {
	if cfg.Database.Driver == config.DriverSupabase {
		client, err := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
		if err != nil {
			logger.Error().Err(err).Msg("init supabase")
			return nil, nil, err
		}
		logger.Info().Str("url", cfg.Supabase.URL).Msg("supabase repository selected")
		return supabase.NewRepository(client, logging.Component(logger, "supabase")), nil, nil
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, nil, err
	}
	return db, db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initHoldStore(redisClient *redis.Client, logger *zerolog.Logger) domain.HoldStore {
	memory := repository.NewMemoryHoldStore()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverHoldStore(repository.NewRedisHoldStore(redisClient), memory, logging.Component(logger, "holds"))
}

func initNotifiers(cfg *config.Config, logger *zerolog.Logger) *notify.Dispatcher {
	notifyLogger := logging.Component(logger, "notify")
	var notifiers []domain.Notifier

	if cfg.Telegram.Enabled {
		bot, err := notify.NewTelegramBot(cfg.Telegram)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, admin notifications disabled")
		} else {
			notifiers = append(notifiers, notify.NewTelegramNotifier(bot, cfg.Telegram.AdminChatIDs, notifyLogger))
		}
	}
	if cfg.SendGrid.Enabled {
		notifiers = append(notifiers, notify.NewEmailNotifier(notify.NewSendGridClient(cfg.SendGrid), cfg.SendGrid, notifyLogger))
	}
	if cfg.Twilio.Enabled {
		notifiers = append(notifiers, notify.NewSMSNotifier(notify.NewTwilioClient(cfg.Twilio).Api, cfg.Twilio.FromNumber, notifyLogger))
	}

	logger.Info().Int("channels", len(notifiers)).Msg("notifications configured")
	return notify.NewDispatcher(notifyLogger, notifiers...)
}

func initAgendaSheet(ctx context.Context, cfg *config.Config, loc *time.Location, logger *zerolog.Logger) *google.AgendaSheet {
	if !cfg.Google.Enabled {
		return nil
	}

	agenda, err := google.NewAgendaSheet(ctx, cfg.Google, loc)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without agenda sync")
		return nil
	}
	if err := agenda.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets connection test failed, continuing without agenda sync")
		return nil
	}
	if err := agenda.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("agenda cache warm-up failed")
	}

	logger.Info().Str("spreadsheet_id", cfg.Google.AgendaSpreadsheetID).Msg("google sheets connected")
	return agenda
}

func initSyncWorker(cfg *config.Config, db *database.DB, agenda domain.SheetsWriter, redisClient *redis.Client, logger *zerolog.Logger) *worker.SheetsWorker {
	var store worker.TaskStore = worker.NewMemoryTaskStore()
	if db != nil {
		store = db
	}
	var queue *redis.Client
	if cfg.Worker.UseRedisQueue {
		queue = redisClient
	}
	return worker.NewSheetsWorker(store, agenda, queue, worker.RetryPolicyFromConfig(cfg.Worker), cfg.Worker.QueueSize, logging.Component(logger, "sheets-worker"))
}

func startScheduler(ctx context.Context, cfg *config.Config, loc *time.Location, repo domain.Repository, agenda *google.AgendaSheet, exporter *export.Exporter, logger *zerolog.Logger) error {
	scheduler := worker.NewScheduler(loc, logging.Component(logger, "scheduler"))

	orphans := worker.NewOrphanReporter(repo, cfg.Schedule.OrphanAfter, logging.Component(logger, "orphans"))
	if err := scheduler.Add(cfg.Schedule.OrphanSchedule, "orphan_report", orphans.Job()); err != nil {
		return err
	}
	if agenda != nil {
		if err := scheduler.Add(cfg.Google.ResyncSchedule, "agenda_resync", worker.AgendaResync(repo, agenda)); err != nil {
			return err
		}
	}
	if cfg.Exports.Schedule != "" {
		exportLogger := logging.Component(logger, "export")
		err := scheduler.Add(cfg.Exports.Schedule, "agenda_export", func(ctx context.Context) error {
			path, err := exporter.SaveFile(ctx, "", "")
			if err != nil {
				return err
			}
			exportLogger.Info().Str("path", path).Msg("agenda export written")
			return nil
		})
		if err != nil {
			return err
		}
	}

	go scheduler.Start(ctx)
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Str("db_driver", cfg.Database.Driver).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
