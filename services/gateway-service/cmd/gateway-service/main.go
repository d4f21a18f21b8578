package main

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/healthcarepro/clinicbook/libs/auth"
	"github.com/healthcarepro/clinicbook/libs/config"
	"github.com/healthcarepro/clinicbook/libs/grpcx"
	"github.com/healthcarepro/clinicbook/libs/httpx"
	otelx "github.com/healthcarepro/clinicbook/libs/otel"
	"github.com/healthcarepro/clinicbook/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	_ = config.Load(".env")
	service := config.String("SERVICE_NAME", "gateway-service")
	logger := runtime.NewLogger(service, config.String("ENV", "development"))
	defer func() { _ = logger.Sync() }()

	if err := run(logger, service); err != nil {
		logger.Error("gateway-service exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, service string) error {
	port, err := config.Port("PORT", "8080")
	if err != nil {
		return err
	}
	bookingURL, err := url.Parse(config.String("BOOKING_URL", "http://booking-service:8083"))
	if err != nil {
		return err
	}
	jwksTTL, err := config.Duration("JWKS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return err
	}
	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 6<<20)
	if err != nil {
		return err
	}
	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 15*time.Second)
	if err != nil {
		return err
	}
	limitPerMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		return err
	}
	corsMaxAge, err := config.Duration("CORS_MAX_AGE", 10*time.Minute)
	if err != nil {
		return err
	}

	verifier := auth.Verifier{
		Issuer:   config.String("JWT_ISSUER", ""),
		Audience: config.String("JWT_AUDIENCE", ""),
	}
	if secret := config.String("JWT_SECRET", ""); secret != "" {
		verifier.Secret = []byte(secret)
	}
	jwksURL := config.String("JWKS_URL", "")
	if len(verifier.Secret) == 0 && jwksURL == "" {
		return errors.New("one of JWT_SECRET or JWKS_URL is required")
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	if jwksURL != "" {
		keys, err := auth.NewJWKS(ctx, jwksURL, jwksTTL, logger.Named("jwks"))
		if err != nil {
			return err
		}
		verifier.Keys = keys
	}

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Warn("otel setup failed", zap.Error(err))
	}
	defer func() { _ = runtime.Shutdown(5*time.Second, otelShutdown) }()

	var checks []runtime.ReadyCheck
	if addr := config.String("BOOKING_GRPC_ADDR", ""); addr != "" {
		conn, err := grpcx.Dial(addr, grpcx.DialOptions{})
		if err != nil {
			return err
		}
		defer conn.Close()
		checks = append(checks, runtime.ReadyCheck{
			Name:  "booking",
			Check: grpcx.HealthCheck(conn, "booking.v1.BookingService"),
		})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, newProxy(bookingURL), verifier, logger)

	var rateLimitMW httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", zap.Int("per_minute", limitPerMinute), zap.String("redis_addr", addr))
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", zap.Int("per_minute", limitPerMinute))
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", nil),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Request-Id"}),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           corsMaxAge,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "gateway"),
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
	logger.Info("gateway-service stopped")
	return nil
}
