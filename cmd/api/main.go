package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opdstack/clinic-platform/cmd/mainconfig"
	"github.com/opdstack/clinic-platform/internal/api/router"
	"github.com/opdstack/clinic-platform/internal/app/bootstrap"
	"github.com/opdstack/clinic-platform/internal/attachments"
	"github.com/opdstack/clinic-platform/internal/availability"
	"github.com/opdstack/clinic-platform/internal/billing"
	"github.com/opdstack/clinic-platform/internal/clinicians"
	appconfig "github.com/opdstack/clinic-platform/internal/config"
	"github.com/opdstack/clinic-platform/internal/consultations"
	"github.com/opdstack/clinic-platform/internal/notify"
	"github.com/opdstack/clinic-platform/internal/observability/metrics"
	"github.com/opdstack/clinic-platform/internal/patients"
	"github.com/opdstack/clinic-platform/internal/realtime"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

func main() {
	// Load .env in development; harmless when the file is absent.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	coreMetrics := metrics.NewCoreMetrics(registry)

	// Redis-backed infrastructure, with in-memory fallbacks for dev.
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}
	broker := bootstrap.BuildBroker(redisClient, cfg, logger)
	availabilityStore := bootstrap.BuildAvailabilityStore(redisClient, logger)

	// Storage. An empty DATABASE_URL runs everything on in-memory stores.
	var (
		patientsRepo      patients.Repository
		consultationsRepo consultations.Repository
		directory         clinicians.Directory
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}

		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open clinician directory database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		patientsRepo = patients.NewPostgresRepository(pool)
		consultationsRepo = consultations.NewPostgresRepository(pool)
		directory = clinicians.NewRepository(db)
		logger.Info("postgres storage ready")
	} else {
		patientsRepo = patients.NewInMemoryRepository()
		consultationsRepo = consultations.NewInMemoryRepository()
		directory = clinicians.NewInMemoryDirectory()
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	blobStore, err := setupBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pipeline := attachments.NewPipeline(attachments.PipelineConfig{
		Blob:     blobStore,
		ClinicID: cfg.ClinicID,
		Timeout:  cfg.UploadTimeout,
		Logger:   logger,
		Metrics:  coreMetrics,
	})

	invites := setupInvites(cfg, logger)

	registryService := patients.NewRegistry(patientsRepo, broker, logger)
	consultationService := consultations.NewService(consultations.ServiceConfig{
		Repo:                    consultationsRepo,
		Registry:                registryService,
		Pipeline:                pipeline,
		Bus:                     broker,
		Invites:                 invites,
		Metrics:                 coreMetrics,
		Logger:                  logger,
		BaseConsultationFee:     cfg.BaseConsultationFee,
		AllowDraftAfterFinalize: cfg.AllowDraftCompleted,
	})
	aggregator := billing.NewAggregator(consultationsRepo, time.UTC, logger)

	hub := realtime.NewHub(broker, logger)
	go hub.Run(ctx)

	r := router.New(&router.Config{
		Logger:               logger,
		PatientsHandler:      patients.NewHandler(registryService, logger),
		AttachmentsHandler:   attachments.NewHandler(pipeline, logger),
		ConsultationsHandler: consultations.NewHandler(consultationService, logger),
		BillingHandler:       billing.NewHandler(aggregator, logger),
		AvailabilityHandler:  availability.NewHandler(availabilityStore, broker, logger),
		CliniciansHandler:    clinicians.NewHandler(directory, broker, logger),
		RealtimeHandler:      realtime.NewHandler(hub, logger),
		MetricsHandler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		SessionJWTSecret:     cfg.SessionJWTSecret,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		RateLimitPerSecond:   cfg.RateLimitPerSecond,
		RateLimitBurst:       cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupBlobStore wires the S3 blob tier for report attachments. Without a
// bucket the pipeline still runs, it just rejects files over the inline
// limit with a named failure.
func setupBlobStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*attachments.BlobStore, error) {
	if cfg.ReportsBucket == "" {
		logger.Warn("REPORTS_BUCKET not set, large reports will be rejected")
		return nil, nil
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s3Client := mainconfig.NewS3Client(awsCfg, cfg)
	logger.Info("blob store ready", "bucket", cfg.ReportsBucket)
	return attachments.NewBlobStore(s3Client, cfg.ReportsBucket, cfg.PublicBaseURL), nil
}

// setupInvites picks the invitation sender. SendGrid when configured, a
// logging stub outside production, nothing otherwise.
func setupInvites(cfg *appconfig.Config, logger *logging.Logger) consultations.InviteSender {
	if cfg.SendGridAPIKey != "" {
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		return notify.NewInviteService(sender, cfg.ClinicName, logger)
	}
	if cfg.Env != "production" {
		return notify.NewInviteService(notify.NewStubEmailSender(logger), cfg.ClinicName, logger)
	}
	return nil
}
