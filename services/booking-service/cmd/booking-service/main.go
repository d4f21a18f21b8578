package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/healthcarepro/clinicbook/libs/config"
	"github.com/healthcarepro/clinicbook/libs/db"
	"github.com/healthcarepro/clinicbook/libs/grpcx"
	"github.com/healthcarepro/clinicbook/libs/httpx"
	"github.com/healthcarepro/clinicbook/libs/kafkax"
	otelx "github.com/healthcarepro/clinicbook/libs/otel"
	"github.com/healthcarepro/clinicbook/libs/outbox"
	"github.com/healthcarepro/clinicbook/libs/runtime"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/audit"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/directory"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/handlers"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/identity"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/media"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/reconcile"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/storage"
	"github.com/healthcarepro/clinicbook/services/booking-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	_ = config.Load(".env")
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service, config.String("ENV", "development"))
	defer func() { _ = logger.Sync() }()

	if err := run(logger, service); err != nil {
		logger.Error("booking-service exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, service string) error {
	port, err := config.Port("PORT", "8083")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		return err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(config.String("CLINIC_TIMEZONE", "UTC"))
	if err != nil {
		return err
	}
	cacheTTL, err := config.Duration("DIRECTORY_CACHE_TTL", 30*time.Second)
	if err != nil {
		return err
	}
	retryAttempts, err := config.Int("SLOT_RETRY_ATTEMPTS", 3)
	if err != nil {
		return err
	}
	retryInitial, err := config.Duration("SLOT_RETRY_INITIAL", 100*time.Millisecond)
	if err != nil {
		return err
	}
	reconcileEvery, err := config.Duration("RECONCILE_EVERY", time.Minute)
	if err != nil {
		return err
	}
	reconcileEscalate, err := config.Int("RECONCILE_ESCALATE_AFTER", 5)
	if err != nil {
		return err
	}
	brokers := config.String("KAFKA_BROKERS", "")

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Warn("otel setup failed", zap.Error(err))
	}
	defer func() { _ = runtime.Shutdown(5*time.Second, otelShutdown) }()

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		if err := db.Migrate(ctx, pool, migrations.FS, ".", logger); err != nil {
			return err
		}
	}

	opts := booking.Options{Location: loc, Now: time.Now}
	store := storage.NewStore(pool)
	auditRepo := audit.NewRepository(pool)

	var cache directory.Cache = directory.NopCache{}
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		cache = directory.NewRedisCache(rdb, "clinicbook:directory")
	}
	dir := directory.NewService(store, directory.Config{
		Cache:    cache,
		CacheTTL: cacheTTL,
		Logger:   logger.Named("directory"),
		Options:  opts,
	})

	var uploader media.Uploader = media.Disabled{}
	if url := config.String("CLOUDINARY_URL", ""); url != "" {
		cld, err := media.NewCloudinary(url, "doctor-profiles")
		if err != nil {
			return err
		}
		uploader = cld
	}

	var provisioner identity.Provisioner
	if url := config.String("IDENTITY_ADMIN_URL", ""); url != "" {
		provisioner = identity.NewWebhookProvisioner(url, config.String("IDENTITY_ADMIN_TOKEN", ""))
	} else {
		logger.Warn("IDENTITY_ADMIN_URL not set; staff passwords are stored locally")
		provisioner = identity.NewLocalProvisioner(store.Staff(), storage.IsConflict)
	}

	reserver := booking.NewReserver(store, logger.Named("reservation"), opts)
	transitioner := booking.NewTransitioner(store, booking.StaffAuthorizer{Staff: store}, logger.Named("transition"), booking.RetryPolicy{
		MaxTries:        uint(max(retryAttempts, 1)),
		InitialInterval: retryInitial,
	})

	publisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger.Named("outbox"), outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	worker := reconcile.NewWorker(reconcile.RunnerFunc(func(ctx context.Context, fn func(reconcile.Batch) error) error {
		return store.Tx(ctx, func(tx *storage.Store) error { return fn(tx) })
	}), logger.Named("reconcile"), reconcile.WorkerConfig{Interval: reconcileEvery, EscalateAfter: reconcileEscalate})
	go worker.Run(ctx)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkax.SplitBrokers(brokers))})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)

	guard := handlers.Guard{Staff: store, Logger: logger}
	staffOnly := guard.Require(model.RoleStaff, model.RoleAdmin)
	adminOnly := guard.Require(model.RoleAdmin)

	handlers.NewPublicHandler(dir, reserver, logger).Register(mux)
	handlers.NewAppointmentHandler(store, transitioner, auditRepo, logger).Register(mux, staffOnly)
	handlers.NewDoctorHandler(store, dir, uploader, auditRepo, logger, opts).Register(mux, staffOnly)
	handlers.NewSlotHandler(store, auditRepo, logger, opts).Register(mux, staffOnly)
	handlers.NewAdminHandler(store, provisioner, auditRepo, logger).Register(mux, adminOnly)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(media.MaxImageBytes+1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(httpHandler, "booking"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcx.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	go grpcx.HealthReporter{
		Server:  healthServer,
		Service: "booking.v1.BookingService",
		Check:   db.ReadyCheck(pool),
		Every:   10 * time.Second,
		Logger:  logger,
	}.Run(ctx)

	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		return err
	}
	go func() {
		logger.Info("grpc server starting", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	grpcServer.GracefulStop()
	if err := runtime.Shutdown(10*time.Second, srv.Shutdown); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	logger.Info("booking-service stopped")
	return nil
}
