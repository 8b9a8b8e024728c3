package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/fleetlink/internal/booking/domain"
	"github.com/example/fleetlink/internal/booking/handler"
	"github.com/example/fleetlink/internal/booking/repository"
	bookingservice "github.com/example/fleetlink/internal/booking/service"
	outboxworker "github.com/example/fleetlink/internal/outbox"
	"github.com/example/fleetlink/pkg/events"
	"github.com/example/fleetlink/pkg/observability"
)

type appConfig struct {
	HTTPAddr      string
	PostgresDSN   string
	RedisAddr     string
	NATSURL       string
	EventsSubject string
	IdemTTL       time.Duration
	OutboxPoll    time.Duration
	OutboxBatch   int
	OutboxRetry   int
	SeedDemoData  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("booking-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "booking-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("postgres ping", zap.Error(err))
		}
		defer db.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("bookingservice")); err == nil {
			natsConn = conn
			defer conn.Drain()
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	var store domain.Store
	if db != nil {
		pg := repository.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("ensure schema", zap.Error(err))
		}
		store = pg
	} else {
		logger.Warn("no postgres configured: using memory store, reservations degrade to the non-atomic fallback path")
		store = repository.NewMemoryStore()
	}

	var idem domain.IdempotencyStore
	if redisClient != nil {
		idem = repository.NewRedisIdempotencyStore(redisClient, "", cfg.IdemTTL)
	} else {
		idem = repository.NewMemoryIdempotencyStore()
	}

	var publisher domain.EventPublisher
	if db != nil && natsConn != nil {
		publisher = repository.NewOutboxQueue(db, cfg.EventsSubject)
		worker := outboxworker.NewWorker(db, natsConn, logger.Named("outbox"), outboxworker.WorkerConfig{
			PollInterval: cfg.OutboxPoll,
			BatchSize:    cfg.OutboxBatch,
			RetryMax:     cfg.OutboxRetry,
		})
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", zap.Error(err))
			}
		}()
	} else {
		publisher = events.NewPublisher(natsConn, cfg.EventsSubject)
		logger.Warn("outbox worker disabled", zap.Bool("db", db != nil), zap.Bool("nats", natsConn != nil))
	}

	svc := bookingservice.New(store, publisher, idem, domain.SystemClock{})

	if cfg.SeedDemoData {
		if err := seedDemoData(ctx, store, domain.SystemClock{}); err != nil {
			logger.Warn("demo data seeding failed", zap.Error(err))
		}
	}

	bookingHTTP := handler.NewHTTP(svc, logger.Named("http"))

	r := chi.NewRouter()
	r.Mount("/", bookingHTTP.Router())
	r.Mount("/observability", observability.MetricsRouter())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("booking service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PostgresDSN:   firstNonEmpty(os.Getenv("POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		NATSURL:       os.Getenv("NATS_URL"),
		EventsSubject: getenv("EVENTS_SUBJECT", "booking.events"),
		IdemTTL:       time.Duration(parseIntEnv("IDEMPOTENCY_TTL_SEC", 86400)) * time.Second,
		OutboxPoll:    time.Duration(parseIntEnv("OUTBOX_POLL_MS", 200)) * time.Millisecond,
		OutboxBatch:   parseIntEnv("OUTBOX_BATCH", 100),
		OutboxRetry:   parseIntEnv("OUTBOX_RETRY_MAX", 3),
		SeedDemoData:  os.Getenv("SEED_DEMO_DATA") == "true",
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
