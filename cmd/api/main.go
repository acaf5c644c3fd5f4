package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/api/handlers"
	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/app"
	"github.com/dvloznov/receipt-tracker/internal/config"
	"github.com/dvloznov/receipt-tracker/internal/jobs"
	"github.com/dvloznov/receipt-tracker/internal/logger"
)

func main() {
	cfg := config.Load()

	port := flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
	flag.Parse()
	cfg.Port = *port

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start receipt tracker")
	}
	defer a.Close()

	// Initialize job infrastructure
	jobQueue, err := app.OpenJobs(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open job queue")
	}
	defer jobQueue.Close()

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	// With JOBS_BACKEND=amqp the scans run in cmd/worker; the API only publishes.
	var publisher jobs.Publisher
	switch {
	case !jobQueue.Local:
		publisher = jobQueue.Publisher
		log.Info().Str("queue", cfg.AMQPQueue).Msg("Publishing scan jobs to AMQP")
	case a.Scanning:
		if err := jobQueue.Consumer.Start(workerCtx, jobs.NewScanHandler(a.Service)); err != nil {
			log.Fatal().Err(err).Msg("Failed to start job workers")
		}
		publisher = jobQueue.Publisher
		log.Info().Int("workers", cfg.ScanWorkers).Msg("Started scan workers")
	}

	mux := handlers.NewRouter(a.Service, publisher, jobQueue.Store, log)

	handler := middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS,
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight scans finish; their completed items are saved even if
	// the worker context is cancelled afterwards.
	if err := jobQueue.Consumer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
