package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fairroc/internal/cfg"
	"fairroc/internal/metrics"
	"fairroc/internal/scorer"
	"fairroc/internal/server"
	"fairroc/internal/storage"
)

func main() {
	// Local .env files are optional.
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store := initializeStorage(c)
	if store == nil {
		log.Fatal().Msg("DATA_PATH must point at the calibration store")
	}
	defer store.Close()

	model, err := store.LoadModel(c.ModelID)
	if err != nil {
		log.Fatal().Err(err).Str("model", c.ModelID).Msg("no fitted model, run calibrate first")
	}
	mw.FairnessValueSet(model.FairnessValue)
	mw.BalancedAccuracySet(model.BalancedAccuracy)
	log.Info().
		Str("model", model.ModelID).
		Float64("threshold", model.Params.ClassificationThreshold).
		Float64("margin", model.Params.ROCMargin).
		Time("calibrated_at", model.CalibratedAt).
		Msg("Fitted model loaded")

	if c.ScorerBaseURL != "" {
		client := scorer.NewClient(c.ScorerBaseURL, c.ScorerAPIKey, c.ScorerTimeout)
		mw.ScorerRequestsInc()
		if err := client.Health(ctx); err != nil {
			mw.ScorerErrorsInc()
			log.Warn().Err(err).Str("url", c.ScorerBaseURL).Msg("scorer health check failed, continuing")
		} else {
			log.Info().Str("url", c.ScorerBaseURL).Msg("scorer reachable")
		}
	}

	startMetricsServer(ctx, c)

	var wg sync.WaitGroup
	startStreamConsumer(ctx, &wg, c, store, mw)

	ds := server.NewDecisionServer(model, mw, c.ServerPort)
	go func() {
		if err := ds.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("decision server failed")
			cancel()
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := ds.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown decision server")
		}
	}()

	waitForShutdown(ctx, cancel, &wg)
}

// initializeStorage opens the BoltDB store when DATA_PATH is configured.
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed")
		return nil
	}
	return store
}

// startMetricsServer starts the Prometheus metrics HTTP server.
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := srv.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// startStreamConsumer subscribes to the scorer's instance stream and persists
// received records for later re-calibration. Skipped when no stream URL is
// configured.
func startStreamConsumer(ctx context.Context, wg *sync.WaitGroup, c cfg.Settings, store *storage.Store, mw *metrics.Wrapper) {
	if c.ScorerStreamURL == "" {
		log.Info().Msg("No scorer stream configured, serving fitted model only")
		return
	}

	instances := make(chan storage.ScoredInstance, 64)
	streamErrs := make(chan error, 32)

	stream := scorer.NewStream(c.ScorerStreamURL)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := stream.Run(ctx, c.ModelID, instances, streamErrs, c.PingInterval, mw); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("scorer stream ended")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		batchSize := 20
		batch := make([]storage.ScoredInstance, 0, batchSize)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			if err := store.StoreInstances(batch); err != nil {
				log.Error().Err(err).Msg("failed to persist instance batch")
				mw.ErrorsInc()
			}
			batch = batch[:0]
		}

		for {
			select {
			case <-ctx.Done():
				flush()
				return
			case inst := <-instances:
				mw.InstancesReceivedInc()
				batch = append(batch, inst)
				if len(batch) >= batchSize {
					flush()
				}
			case <-ticker.C:
				flush()
			case err := <-streamErrs:
				log.Error().Err(err).Msg("background stream error")
				mw.ErrorsInc()
			}
		}
	}()
}

// waitForShutdown waits for shutdown signals and drains worker goroutines.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
