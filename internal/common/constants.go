package common

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvDataPath         = "DATA_PATH"
	EnvModelID          = "MODEL_ID"
	EnvConstraint       = "FAIRNESS_CONSTRAINT"
	EnvLowThreshold     = "LOW_THRESHOLD"
	EnvHighThreshold    = "HIGH_THRESHOLD"
	EnvThresholdSteps   = "THRESHOLD_STEPS"
	EnvMarginSteps      = "MARGIN_STEPS"
	EnvMetricLowerBound = "METRIC_LOWER_BOUND"
	EnvMetricUpperBound = "METRIC_UPPER_BOUND"
	EnvGridWorkers      = "GRID_WORKERS"
	EnvScorerBaseURL    = "SCORER_BASE_URL"
	EnvScorerStreamURL  = "SCORER_STREAM_URL"
	EnvScorerAPIKey     = "SCORER_API_KEY"
	EnvScorerTimeout    = "SCORER_TIMEOUT"
	EnvPingInterval     = "PING_INTERVAL"
	EnvMetricsPort      = "METRICS_PORT"
	EnvServerPort       = "SERVER_PORT"
)

// Configuration defaults
const (
	DefaultModelID          = "default"
	DefaultConstraint       = "statistical_parity"
	DefaultLowThreshold     = 0.01
	DefaultHighThreshold    = 0.99
	DefaultThresholdSteps   = 100
	DefaultMarginSteps      = 50
	DefaultMetricLowerBound = -0.05
	DefaultMetricUpperBound = 0.05
	DefaultMetricsPort      = 8080
	DefaultServerPort       = 8090
)

// Validation constants
const (
	MinMetricsPort = 1024
	MaxMetricsPort = 65535
)
