package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fairroc/internal/calib"
	"fairroc/internal/cfg"
	"fairroc/internal/dataset"
	"fairroc/internal/storage"
)

func main() {
	var (
		dataPath   = flag.String("data", "", "Path to validation data (CSV, JSONL, or BoltDB directory)")
		dataFormat = flag.String("format", "auto", "Data format: auto, csv, jsonl, boltdb")
		outputPath = flag.String("output", "calibration_results", "Output directory for reports")
		modelID    = flag.String("model-id", "", "Model ID (overrides config)")
		startDate  = flag.String("start", "", "Start date for BoltDB range (YYYY-MM-DD)")
		endDate    = flag.String("end", "", "End date for BoltDB range (YYYY-MM-DD)")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	// Local .env files are optional.
	_ = godotenv.Load()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *modelID != "" {
		config.ModelID = *modelID
	}
	if *dataPath == "" {
		*dataPath = config.DataPath
	}
	if *dataPath == "" {
		log.Fatal().Msg("No data path given: set -data or DATA_PATH")
	}

	fmt.Println("=== Calibration Configuration ===")
	fmt.Printf("Model ID: %s\n", config.ModelID)
	fmt.Printf("Constraint: %s in [%.4f, %.4f]\n",
		config.Calibration.Constraint,
		config.Calibration.MetricLowerBound, config.Calibration.MetricUpperBound)
	fmt.Printf("Grid: %d thresholds x %d margins over [%.2f, %.2f]\n",
		config.Calibration.ThresholdSteps, config.Calibration.MarginSteps,
		config.Calibration.LowThreshold, config.Calibration.HighThreshold)
	fmt.Printf("Data Path: %s\n", *dataPath)
	fmt.Printf("Output Directory: %s\n", *outputPath)
	fmt.Println("=================================")

	var (
		data  *dataset.Dataset
		store *storage.Store
	)
	switch *dataFormat {
	case "csv":
		data, err = dataset.LoadCSV(*dataPath)
		if err == nil {
			err = data.Validate()
		}
	case "jsonl":
		data, err = dataset.LoadJSONL(*dataPath)
		if err == nil {
			err = data.Validate()
		}
	case "boltdb":
		store, data, err = loadFromBoltDB(*dataPath, config.ModelID, *startDate, *endDate)
	case "auto":
		store, data, err = autoLoadData(*dataPath, config.ModelID, *startDate, *endDate)
	default:
		log.Fatal().Str("format", *dataFormat).Msg("Unknown data format")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load data")
	}
	if store != nil {
		defer store.Close()
	}

	// Persist the fitted model next to the instance data when available.
	engine := calib.NewEngine(&config, data, nil, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Calibration failed")
	}

	reporter := calib.NewReporter(engine.GetResults(), *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}
	reporter.PrintSummary()

	log.Info().Str("output", *outputPath).Msg("Calibration completed successfully")
}

func loadFromBoltDB(path, modelID, startDate, endDate string) (*storage.Store, *dataset.Dataset, error) {
	start, end, err := parseRange(startDate, endDate)
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.New(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	data, err := dataset.LoadFromStore(store, modelID, start, end)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, data, nil
}

// autoLoadData detects the data format: directories are BoltDB stores, files
// dispatch on extension.
func autoLoadData(path, modelID, startDate, endDate string) (*storage.Store, *dataset.Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		return loadFromBoltDB(path, modelID, startDate, endDate)
	}

	switch {
	case strings.HasSuffix(path, ".csv"), strings.HasSuffix(path, ".jsonl"), strings.HasSuffix(path, ".json"):
		data, err := dataset.Load(path)
		return nil, data, err
	default:
		return nil, nil, fmt.Errorf("cannot determine file format for: %s", path)
	}
}

func parseRange(startDate, endDate string) (time.Time, time.Time, error) {
	start := time.Now().AddDate(0, -1, 0) // Default: 1 month ago
	end := time.Now()

	var err error
	if startDate != "" {
		start, err = time.Parse("2006-01-02", startDate)
		if err != nil {
			return start, end, fmt.Errorf("invalid start date: %w", err)
		}
	}
	if endDate != "" {
		end, err = time.Parse("2006-01-02", endDate)
		if err != nil {
			return start, end, fmt.Errorf("invalid end date: %w", err)
		}
	}
	return start, end, nil
}
