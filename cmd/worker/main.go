package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/payment-router/internal/config"
	"github.com/noah-isme/payment-router/internal/obs"
	"github.com/noah-isme/payment-router/internal/payment"
	"github.com/noah-isme/payment-router/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	registry, err := payment.BuildRegistry(cfg, nil, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build provider registry")
	}
	reliability := payment.NewReliability(redisClient, cfg.ReliabilityWindow)
	if cfg.ReliabilityRefresh > 0 {
		reliability.SnapshotTTL = 3 * cfg.ReliabilityRefresh
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	asynqOpt := asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Username: redisOpts.Username,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	}

	server := asynq.NewServer(asynqOpt, asynq.Config{
		Concurrency: 2,
		Logger:      asynqLogger{logger},
	})
	mux := tasks.NewMux(tasks.ReliabilityRefresher{
		Reliability: reliability,
		Registry:    registry,
		Logger:      logger,
	})

	scheduler := asynq.NewScheduler(asynqOpt, &asynq.SchedulerOpts{Logger: asynqLogger{logger}})
	spec := fmt.Sprintf("@every %s", refreshInterval(cfg))
	if _, err := scheduler.Register(spec, tasks.NewReliabilityRefreshTask()); err != nil {
		logger.Fatal().Err(err).Msg("register reliability refresh schedule")
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error().Err(err).Msg("scheduler stopped with error")
		}
	}()

	go func() {
		logger.Info().Str("schedule", spec).Msg("worker starting")
		if err := server.Run(mux); err != nil {
			logger.Fatal().Err(err).Msg("worker stopped with error")
		}
	}()

	<-ctx.Done()
	scheduler.Shutdown()
	server.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func refreshInterval(cfg *config.Config) string {
	if cfg.ReliabilityRefresh <= 0 {
		return "1m"
	}
	return cfg.ReliabilityRefresh.String()
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

// asynqLogger adapts zerolog to the asynq logging contract.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
