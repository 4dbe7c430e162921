package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	"store-monitoring/internal/audit"
	"store-monitoring/internal/auth"
	"store-monitoring/internal/monitoring/application"
	"store-monitoring/internal/monitoring/infrastructure/artifact"
	"store-monitoring/internal/monitoring/infrastructure/breaker"
	"store-monitoring/internal/monitoring/infrastructure/memory"
	reportpostgres "store-monitoring/internal/monitoring/infrastructure/postgres"
	"store-monitoring/internal/monitoring/ingest"
	reporthttp "store-monitoring/internal/monitoring/interfaces/http"
	reportmetrics "store-monitoring/internal/monitoring/metrics"
	httpmetrics "store-monitoring/internal/observability/metrics"
	"store-monitoring/internal/observability/tracing"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const serviceName = "store-monitoring"

// storeData is the store data port seen by both the report pipeline and the loader.
type storeData interface {
	application.StoreDataReader
	ingest.Writer
}

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.CollectorAddr)
	if err != nil {
		logger.Fatalf("tracing init error: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Printf("event=tracing_shutdown_failed error=%v", err)
		}
	}()

	reportCfg, err := application.LoadConfig()
	if err != nil {
		logger.Fatalf("report config error: %v", err)
	}
	policy, err := reportCfg.Policy()
	if err != nil {
		logger.Fatalf("report policy error: %v", err)
	}

	var (
		db       *sql.DB
		data     storeData
		jobs     application.JobRepository
		auditLog audit.Logger
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		data = reportpostgres.NewStoreDataRepository(db)
		jobs = reportpostgres.NewReportJobRepository(db)
		auditLog = audit.NewRepository(db)
		httpmetrics.RegisterJobGauges(nil, db, logger)
	} else {
		logger.Printf("event=storage_memory reason=no_database_url")
		data = memory.NewStoreDataRepository()
		jobs = memory.NewReportJobRepository()
		auditLog = audit.NewLogWriter(logger)
	}

	metrics := reportmetrics.New(nil)

	loader, err := ingest.NewLoader(data, ingest.WithLogger(logger), ingest.WithMetrics(metrics))
	if err != nil {
		logger.Fatalf("ingest loader error: %v", err)
	}
	if cfg.DataArchive != "" {
		result, err := loader.LoadArchive(ctx, cfg.DataArchive)
		if err != nil {
			logger.Fatalf("ingest archive error: %v", err)
		}
		logger.Printf("event=archive_loaded path=%s accepted=%d rejected=%d", cfg.DataArchive, result.Accepted(), result.Rejected())
	}

	var reader application.StoreDataReader = data
	if reportCfg.Breaker.Enabled {
		guarded, err := breaker.NewStoreDataReader(data, breaker.Config{
			ConsecutiveFailures: reportCfg.Breaker.ConsecutiveFailures,
			OpenTimeout:         time.Duration(reportCfg.Breaker.OpenSeconds) * time.Second,
		}, logger)
		if err != nil {
			logger.Fatalf("breaker error: %v", err)
		}
		reader = guarded
	}

	estimator, err := application.NewOccupancyEstimator(reader, policy, application.WithDaySplit(reportCfg.DaySplit))
	if err != nil {
		logger.Fatalf("estimator error: %v", err)
	}
	builder, err := application.NewStoreReportBuilder(estimator)
	if err != nil {
		logger.Fatalf("report builder error: %v", err)
	}
	artifacts, err := artifact.NewFileStore(reportCfg.StorageRoot)
	if err != nil {
		logger.Fatalf("artifact store error: %v", err)
	}
	pipeline, err := application.NewReportPipeline(jobs, reader, builder, artifacts,
		application.WithBatchSize(reportCfg.BatchSize),
		application.WithLogger(logger),
		application.WithMetrics(metrics),
	)
	if err != nil {
		logger.Fatalf("report pipeline error: %v", err)
	}
	if recovered, err := pipeline.RecoverInterrupted(ctx); err != nil {
		logger.Fatalf("recover interrupted reports error: %v", err)
	} else if recovered > 0 {
		logger.Printf("event=reports_recovered count=%d", recovered)
	}

	var uploadGuard func(http.Handler) http.Handler
	if cfg.IngestSecret != "" {
		uploadGuard = auth.NewSignatureMiddleware([]byte(cfg.IngestSecret), time.Duration(cfg.IngestSkewSeconds)*time.Second, cfg.UploadLimitBytes).Wrap
	} else {
		logger.Printf("event=upload_signing_disabled")
	}
	handler, err := reporthttp.NewHandler(pipeline, artifacts,
		reporthttp.WithLogger(logger),
		reporthttp.WithAuditLogger(auditLog),
		reporthttp.WithArchiveUpload(loader, uploadGuard, cfg.UploadLimitBytes),
	)
	if err != nil {
		logger.Fatalf("report handler error: %v", err)
	}

	router := mux.NewRouter()
	router.Use(httpmetrics.NewHTTP(nil).Middleware)
	handler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var root http.Handler = router
	if cfg.JWTSecret != "" {
		authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil))
		authMiddleware.Logger = logger
		root = authMiddleware.Wrap(root)
	} else {
		logger.Printf("event=auth_disabled reason=no_jwt_secret")
	}
	root = handlers.RecoveryHandler(handlers.RecoveryLogger(logger))(loggingMiddleware(root, logger))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	scheduler := application.NewScheduler(pipeline, reportCfg.Schedule.DailyAt, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return pipeline.Run(gctx)
	})
	g.Go(func() error {
		scheduler.Start(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Printf("event=shutdown error=%v", err)
		return
	}
	logger.Printf("event=shutdown")
}

type config struct {
	DatabaseURL       string
	HTTPAddr          string
	JWTSecret         string
	IngestSecret      string
	IngestSkewSeconds int
	UploadLimitBytes  int64
	DataArchive       string
	CollectorAddr     string
	ShutdownTimeout   time.Duration
}

func loadConfig() config {
	return config{
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:         getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:      getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds: getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
		UploadLimitBytes:  int64(getenvIntDefault("INGEST_MAX_UPLOAD_MB", 512)) << 20,
		DataArchive:       getenvDefault("DATA_ARCHIVE", ""),
		CollectorAddr:     getenvDefault("OTEL_COLLECTOR_ADDR", ""),
		ShutdownTimeout:   getenvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("event=http_request method=%s path=%s status=%d duration=%s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
