package main

import (
	"context"
	"net/http"
	"os"
	"time"

	_ "time/tzdata"

	"github.com/agendave/micita/libs/auth"
	"github.com/agendave/micita/libs/cache"
	"github.com/agendave/micita/libs/db"
	"github.com/agendave/micita/libs/grpcx"
	"github.com/agendave/micita/libs/httpx"
	"github.com/agendave/micita/libs/kafkax"
	otelx "github.com/agendave/micita/libs/otel"
	"github.com/agendave/micita/libs/runtime"
	"github.com/agendave/micita/services/booking-service/internal/cachedstore"
	"github.com/agendave/micita/services/booking-service/internal/consumer"
	"github.com/agendave/micita/services/booking-service/internal/handlers"
	"github.com/agendave/micita/services/booking-service/internal/outbox"
	"github.com/agendave/micita/services/booking-service/internal/storage"
	"github.com/agendave/micita/services/booking-service/internal/supabase"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
	}

	var kv cache.Cache
	if cfg.CacheBackend == "redis" {
		kv = cache.NewRedis(rdb, "micita:cache", 24*time.Hour)
	} else {
		mem, err := cache.NewMemory(cfg.CacheSize)
		if err != nil {
			panic(err)
		}
		kv = mem
	}

	outboxRepo := outbox.NewRepository(pool)
	scheduleRepo := storage.NewScheduleRepository(pool, outboxRepo)
	serviceRepo := storage.NewServiceRepository(pool, outboxRepo)
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo, scheduleRepo)

	var (
		schedules cachedstore.ScheduleSource = scheduleRepo
		catalog   cachedstore.CatalogSource  = serviceRepo
		ledger    handlers.LedgerReader      = bookingRepo
	)
	if cfg.StoreBackend == "supabase" {
		sb, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey)
		if err != nil {
			logger.Error("supabase client init failed", "err", err)
			panic(err)
		}
		schedules, catalog, ledger = sb, sb, sb
	}
	cached := cachedstore.New(schedules, catalog, kv, cfg.CacheMaxAge(), logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	if cfg.KafkaBrokers != "" {
		invalidations := consumer.New(logger, consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: invalidationGroupID(cfg),
			Topics:  consumer.ProviderTopics,
		}, consumer.InvalidateOnProviderUpdate(cached))
		go invalidations.Run(ctx)
	}

	defaultLoc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		panic(err)
	}
	bookingHandler := handlers.NewBookingHandler(ledger, cached, cached, bookingRepo, logger, handlers.BookingConfig{
		GranularityMinutes: cfg.SlotGranularityMinutes,
		DefaultLocation:    defaultLoc,
	})
	providerHandler := handlers.NewProviderHandler(cached, scheduleRepo, cached, serviceRepo, cached, logger)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers), Optional: true})
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb), Optional: cfg.CacheBackend != "redis"})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)

	verifier := auth.NewVerifier(cfg.SupabaseJWTSecret, cfg.JWTAudience)
	user := func(h http.HandlerFunc) http.Handler { return auth.RequireUser(h, verifier) }
	provider := func(h http.HandlerFunc) http.Handler { return auth.RequireUser(auth.RequireProvider(h), verifier) }

	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/services", providerHandler.PublicServices)
	mux.Handle("/api/v1/public/book", user(bookingHandler.Book))
	mux.Handle("/api/v1/appointments", provider(bookingHandler.Appointments))
	mux.Handle("/api/v1/appointments/status", provider(bookingHandler.UpdateStatus))
	mux.Handle("/api/v1/appointments/cancel", user(bookingHandler.Cancel))
	mux.Handle("/api/v1/availability", provider(providerHandler.Availability))
	mux.Handle("/api/v1/services", provider(providerHandler.Services))

	proxies, err := httpx.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		panic(err)
	}
	limiter := httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).WithTrustedProxies(proxies).Middleware()
	if rdb != nil {
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "micita:rl").
			WithTrustedProxies(proxies).
			Middleware(logger, true)
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id", "Idempotent-Replayed", "Retry-After"},
			MaxAge:         10 * time.Minute,
		}),
		limiter,
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")

	if cfg.GRPCPort != "" {
		health := grpcx.NewHealthServer(logger)
		health.SetServing("", true)
		health.SetServing("micita.booking", true)
		go func() {
			if err := health.Serve(ctx, ":"+cfg.GRPCPort); err != nil {
				logger.Error("grpc server error", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}

// invalidationGroupID gives each replica its own consumer group when caches
// are per process, so every replica sees every invalidation.
func invalidationGroupID(cfg Config) string {
	group := cfg.KafkaGroupID + ".cache"
	if cfg.CacheBackend == "redis" {
		return group
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return group + "." + host
}
