package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/rentora/rentora/config"
	"github.com/rentora/rentora/internal/availability"
	"github.com/rentora/rentora/internal/cache"
	"github.com/rentora/rentora/internal/clock"
	"github.com/rentora/rentora/internal/kafka"
	"github.com/rentora/rentora/internal/notify"
	"github.com/rentora/rentora/internal/repository"
	"github.com/rentora/rentora/internal/service/booking"
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

	bookingService := booking.NewService(
		bookingRepo,
		listingRepo,
		oracle,
		redisCache,
		emitter,
		clock.NewSystem(),
		loc,
		cfg.Engine.MaxHorizonDays,
		log,
	)

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.NotificationsTopic, log)
	defer consumer.Close()

	sender := notify.NewSender(log)

	go func() {
		err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
			var n notify.Notification
			if err := json.Unmarshal(msg.Value, &n); err != nil {
				log.Warn().Err(err).Msg("decode notification")
				return nil
			}
			return sender.Send(ctx, n)
		})
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("consumer stopped")
		}
	}()

	sweepTicker := time.NewTicker(time.Duration(cfg.Worker.SweepIntervalSeconds) * time.Second)
	defer sweepTicker.Stop()

	log.Info().Int("interval_seconds", cfg.Worker.SweepIntervalSeconds).Msg("sweeper running")

	for {
		select {
		case <-sweepTicker.C:
			result, err := bookingService.Sweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("sweep error")
				continue
			}
			if result.Started > 0 || result.Completed > 0 {
				log.Info().
					Int("started", result.Started).
					Int("completed", result.Completed).
					Msg("sweep advanced bookings")
			}
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		}
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
