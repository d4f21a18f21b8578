package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/healthcarepro/clinicbook/libs/config"
	"github.com/healthcarepro/clinicbook/libs/db"
	"github.com/healthcarepro/clinicbook/libs/httpx"
	"github.com/healthcarepro/clinicbook/libs/kafkax"
	otelx "github.com/healthcarepro/clinicbook/libs/otel"
	"github.com/healthcarepro/clinicbook/libs/runtime"
	"github.com/healthcarepro/clinicbook/services/notification-service/internal/consumer"
	"github.com/healthcarepro/clinicbook/services/notification-service/internal/email"
	"github.com/healthcarepro/clinicbook/services/notification-service/internal/inbox"
	"github.com/healthcarepro/clinicbook/services/notification-service/internal/notify"
	"github.com/healthcarepro/clinicbook/services/notification-service/internal/storage"
	"github.com/healthcarepro/clinicbook/services/notification-service/migrations"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	_ = config.Load(".env")
	service := config.String("SERVICE_NAME", "notification-service")
	logger := runtime.NewLogger(service, config.String("ENV", "development"))
	defer func() { _ = logger.Sync() }()

	if err := run(logger, service); err != nil {
		logger.Error("notification-service exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, service string) error {
	port, err := config.Port("PORT", "8085")
	if err != nil {
		return err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	brokers, err := config.RequiredString("KAFKA_BROKERS")
	if err != nil {
		return err
	}
	clinicName := config.String("CLINIC_NAME", "The Clinic")
	sender, err := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@clinic.local"),
		clinicName,
	)
	if err != nil {
		return err
	}

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

	notifier := notify.New(sender, clinicName, logger.Named("notify"))
	eventConsumer := consumer.New(logger.Named("consumer"), inbox.NewRepository(pool), consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics:  config.List("KAFKA_CONSUME_TOPICS", notify.Topics),
	}, func(ctx context.Context, msg kafka.Message, q db.Querier) error {
		return notifier.Handle(ctx, msg, storage.NewRepository(q))
	})
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkax.SplitBrokers(brokers))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "notification"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	if err := runtime.Shutdown(10*time.Second, srv.Shutdown); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	logger.Info("notification-service stopped")
	return nil
}
