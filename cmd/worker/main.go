package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/app"
	"github.com/dvloznov/receipt-tracker/internal/config"
	"github.com/dvloznov/receipt-tracker/internal/jobs"
	"github.com/dvloznov/receipt-tracker/internal/logger"
)

// worker consumes scan jobs published by the API when JOBS_BACKEND=amqp.
func main() {
	cfg := config.Load()
	log := logger.NewWithLevel(cfg.LogLevel)

	if cfg.JobsBackend != config.BackendAMQP {
		log.Fatal().Str("jobs_backend", cfg.JobsBackend).Msg("The worker needs JOBS_BACKEND=amqp; the API runs memory jobs itself")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start receipt tracker")
	}
	defer a.Close()

	if !a.Scanning {
		log.Fatal().Msg("GEMINI_API_KEY is required to run scan workers")
	}

	jobQueue, err := app.OpenJobs(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open job queue")
	}
	defer jobQueue.Close()

	if err := jobQueue.Consumer.Start(ctx, jobs.NewScanHandler(a.Service)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start consuming")
	}
	log.Info().
		Str("exchange", cfg.AMQPExchange).
		Str("queue", cfg.AMQPQueue).
		Msg("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := jobQueue.Consumer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping worker")
	}

	log.Info().Msg("Worker exited")
}
