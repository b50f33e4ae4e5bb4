// Package cfg loads and validates configuration for the calibration CLI and
// the serving daemon. A YAML config file is used when CONFIG_FILE is set;
// individual environment variables override file values either way.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"fairroc/internal/common"
	"fairroc/internal/fairness"
	"fairroc/internal/roc"
)

type Settings struct {
	Calibration roc.Config

	ModelID  string
	DataPath string

	ScorerBaseURL   string
	ScorerStreamURL string
	ScorerAPIKey    string
	ScorerTimeout   time.Duration
	PingInterval    time.Duration

	MetricsPort int
	ServerPort  int
}

type ConfigFile struct {
	// The float fields are pointers: zero is a legitimate threshold or
	// bound, so absence must be distinguishable from an explicit 0.
	Calibration struct {
		Constraint       string   `yaml:"constraint"`
		LowThreshold     *float64 `yaml:"lowThreshold"`
		HighThreshold    *float64 `yaml:"highThreshold"`
		ThresholdSteps   int      `yaml:"thresholdSteps"`
		MarginSteps      int      `yaml:"marginSteps"`
		MetricLowerBound *float64 `yaml:"metricLowerBound"`
		MetricUpperBound *float64 `yaml:"metricUpperBound"`
		Workers          int      `yaml:"workers"`
	} `yaml:"calibration"`

	Scorer struct {
		BaseURL   string `yaml:"baseURL"`
		StreamURL string `yaml:"streamURL"`
		APIKey    string `yaml:"apiKey"`
		Timeout   string `yaml:"timeout"`
		Ping      string `yaml:"pingInterval"`
	} `yaml:"scorer"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		ModelID     string `yaml:"modelID"`
		MetricsPort int    `yaml:"metricsPort"`
		ServerPort  int    `yaml:"serverPort"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout, err := time.ParseDuration(config.Scorer.Timeout)
	if err != nil {
		timeout = 5 * time.Second
	}
	ping, err := time.ParseDuration(config.Scorer.Ping)
	if err != nil {
		ping = 15 * time.Second
	}

	settings := Settings{
		Calibration: roc.Config{
			Constraint:       fairness.Constraint(getEnvOrDefault(common.EnvConstraint, stringOrDefault(config.Calibration.Constraint, common.DefaultConstraint))),
			LowThreshold:     getFloatFromEnvOrFile(common.EnvLowThreshold, config.Calibration.LowThreshold, common.DefaultLowThreshold),
			HighThreshold:    getFloatFromEnvOrFile(common.EnvHighThreshold, config.Calibration.HighThreshold, common.DefaultHighThreshold),
			ThresholdSteps:   getIntFromEnvOrConfig(common.EnvThresholdSteps, config.Calibration.ThresholdSteps, common.DefaultThresholdSteps),
			MarginSteps:      getIntFromEnvOrConfig(common.EnvMarginSteps, config.Calibration.MarginSteps, common.DefaultMarginSteps),
			MetricLowerBound: getFloatFromEnvOrFile(common.EnvMetricLowerBound, config.Calibration.MetricLowerBound, common.DefaultMetricLowerBound),
			MetricUpperBound: getFloatFromEnvOrFile(common.EnvMetricUpperBound, config.Calibration.MetricUpperBound, common.DefaultMetricUpperBound),
			Workers:          getIntFromEnvOrConfig(common.EnvGridWorkers, config.Calibration.Workers, 0),
		},
		ModelID:         getEnvOrDefault(common.EnvModelID, stringOrDefault(config.System.ModelID, common.DefaultModelID)),
		DataPath:        getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		ScorerBaseURL:   getEnvOrDefault(common.EnvScorerBaseURL, config.Scorer.BaseURL),
		ScorerStreamURL: getEnvOrDefault(common.EnvScorerStreamURL, config.Scorer.StreamURL),
		ScorerAPIKey:    getEnvOrDefault(common.EnvScorerAPIKey, config.Scorer.APIKey),
		ScorerTimeout:   timeout,
		PingInterval:    ping,
		MetricsPort:     getIntFromEnvOrConfig(common.EnvMetricsPort, config.System.MetricsPort, common.DefaultMetricsPort),
		ServerPort:      getIntFromEnvOrConfig(common.EnvServerPort, config.System.ServerPort, common.DefaultServerPort),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Calibration: roc.Config{
			Constraint:       fairness.Constraint(getEnvOrDefault(common.EnvConstraint, common.DefaultConstraint)),
			LowThreshold:     getFloatOrDefault(common.EnvLowThreshold, common.DefaultLowThreshold),
			HighThreshold:    getFloatOrDefault(common.EnvHighThreshold, common.DefaultHighThreshold),
			ThresholdSteps:   getIntOrDefault(common.EnvThresholdSteps, common.DefaultThresholdSteps),
			MarginSteps:      getIntOrDefault(common.EnvMarginSteps, common.DefaultMarginSteps),
			MetricLowerBound: getFloatOrDefault(common.EnvMetricLowerBound, common.DefaultMetricLowerBound),
			MetricUpperBound: getFloatOrDefault(common.EnvMetricUpperBound, common.DefaultMetricUpperBound),
			Workers:          getIntOrDefault(common.EnvGridWorkers, 0),
		},
		ModelID:         getEnvOrDefault(common.EnvModelID, common.DefaultModelID),
		DataPath:        os.Getenv(common.EnvDataPath), // optional
		ScorerBaseURL:   os.Getenv(common.EnvScorerBaseURL),
		ScorerStreamURL: os.Getenv(common.EnvScorerStreamURL),
		ScorerAPIKey:    os.Getenv(common.EnvScorerAPIKey),
		ScorerTimeout:   getDurationOrDefault(common.EnvScorerTimeout, 5*time.Second),
		PingInterval:    getDurationOrDefault(common.EnvPingInterval, 15*time.Second),
		MetricsPort:     getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		ServerPort:      getIntOrDefault(common.EnvServerPort, common.DefaultServerPort),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func stringOrDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// getFloatFromEnvOrFile treats a nil file value as absent rather than zero;
// an explicit 0 in the config file is kept.
func getFloatFromEnvOrFile(key string, fileValue *float64, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if fileValue != nil {
		return *fileValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if err := settings.Calibration.Validate(); err != nil {
		return err
	}

	if settings.ModelID == "" {
		return fmt.Errorf("model ID cannot be empty")
	}

	if settings.ScorerTimeout < time.Second || settings.ScorerTimeout > time.Minute {
		return fmt.Errorf("scorer timeout must be between 1s and 1m, got %v", settings.ScorerTimeout)
	}
	if settings.PingInterval < time.Second || settings.PingInterval > 5*time.Minute {
		return fmt.Errorf("ping interval must be between 1s and 5m, got %v", settings.PingInterval)
	}

	if settings.MetricsPort < common.MinMetricsPort || settings.MetricsPort > common.MaxMetricsPort {
		return fmt.Errorf("metrics port must be between %d and %d, got %d",
			common.MinMetricsPort, common.MaxMetricsPort, settings.MetricsPort)
	}
	if settings.ServerPort < common.MinMetricsPort || settings.ServerPort > common.MaxMetricsPort {
		return fmt.Errorf("server port must be between %d and %d, got %d",
			common.MinMetricsPort, common.MaxMetricsPort, settings.ServerPort)
	}
	if settings.ServerPort == settings.MetricsPort {
		return fmt.Errorf("server port and metrics port must differ, both are %d", settings.ServerPort)
	}

	return nil
}
