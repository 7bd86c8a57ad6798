package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/rentora/rentora/config"
	"github.com/rentora/rentora/internal/availability"
	"github.com/rentora/rentora/internal/bootstrap"
	"github.com/rentora/rentora/internal/cache"
	"github.com/rentora/rentora/internal/clock"
	"github.com/rentora/rentora/internal/kafka"
	"github.com/rentora/rentora/internal/notify"
	"github.com/rentora/rentora/internal/repository"
	"github.com/rentora/rentora/internal/service/booking"
	"github.com/rentora/rentora/internal/service/payments"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	log := newLogger(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.Log.Level != "" {
		log = newLogger(cfg.Log.Level)
	}

	loc, err := cfg.Engine.Location()
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Engine.Timezone).Msg("load reference timezone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Engine.ListingCacheTTL)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	emitter := notify.NewEmitter(producer, cfg.Kafka.NotificationsTopic, cfg.Kafka.BookingEventsTopic, log)

	bookingRepo := repository.NewBookingRepository(pool)
	listingRepo := repository.NewListingRepository(pool)
	oracle := availability.NewOracle(bookingRepo, listingRepo, loc)
	clk := clock.NewSystem()
	lockTTL := time.Duration(cfg.Engine.LockTTLSeconds) * time.Second

	bookingService := booking.NewService(
		bookingRepo,
		listingRepo,
		oracle,
		redisCache,
		emitter,
		clk,
		loc,
		cfg.Engine.MaxHorizonDays,
		log,
		booking.WithLockTTL(lockTTL),
	)
	reconciler := payments.NewReconciler(bookingRepo, redisCache, emitter, clk, lockTTL, log)

	if err := bootstrap.Run(ctx, cfg, bookingService, reconciler, listingRepo, loc, log); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
