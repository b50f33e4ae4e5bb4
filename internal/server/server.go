// Package server exposes the calibrated post-processor over HTTP: batch
// decisions, model metadata, and a health probe.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"fairroc/internal/metrics"
	"fairroc/internal/roc"
	"fairroc/internal/storage"
)

// DecisionServer serves post-processed decisions for a fitted model.
type DecisionServer struct {
	model   storage.FittedModel
	metrics *metrics.Wrapper
	mux     *http.ServeMux
	server  *http.Server
}

// DecisionRequest carries a batch of scores with their group flags.
type DecisionRequest struct {
	Scores     []float64 `json:"scores"`
	Privileged []bool    `json:"privileged"`
	RequestID  string    `json:"request_id,omitempty"`
}

// DecisionResponse is the post-processed batch result.
type DecisionResponse struct {
	Decisions       []bool    `json:"decisions"`
	Threshold       float64   `json:"threshold"`
	Margin          float64   `json:"margin"`
	RegionOverrides int       `json:"region_overrides"`
	RequestID       string    `json:"request_id,omitempty"`
	Latency         float64   `json:"latency_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewDecisionServer creates an HTTP server for the given fitted model.
// Metrics may be nil.
func NewDecisionServer(model storage.FittedModel, m *metrics.Wrapper, port int) *DecisionServer {
	ds := &DecisionServer{
		model:   model,
		metrics: m,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/predict", ds.handlePredict)
	mux.HandleFunc("/health", ds.handleHealth)
	mux.HandleFunc("/model/info", ds.handleModelInfo)
	ds.mux = mux

	ds.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return ds
}

// Handler returns the route handler, mainly for tests.
func (ds *DecisionServer) Handler() http.Handler {
	return ds.mux
}

// Start begins serving HTTP requests.
func (ds *DecisionServer) Start() error {
	log.Info().Str("addr", ds.server.Addr).Str("model", ds.model.ModelID).Msg("starting decision server")
	return ds.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (ds *DecisionServer) Shutdown(ctx context.Context) error {
	return ds.server.Shutdown(ctx)
}

func (ds *DecisionServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Scores) == 0 {
		http.Error(w, "scores cannot be empty", http.StatusBadRequest)
		return
	}

	p := ds.model.Params
	decisions, err := roc.Predict(req.Scores, req.Privileged, p.ClassificationThreshold, p.ROCMargin)
	if err != nil {
		log.Error().Err(err).Str("request_id", req.RequestID).Msg("decision failed")
		if ds.metrics != nil {
			ds.metrics.ErrorsInc()
		}
		http.Error(w, fmt.Sprintf("decision failed: %v", err), http.StatusBadRequest)
		return
	}

	overrides := 0
	for _, s := range req.Scores {
		if math.Abs(s-p.ClassificationThreshold) <= p.ROCMargin {
			overrides++
		}
	}

	if ds.metrics != nil {
		ds.metrics.PredictionsAdd(float64(len(decisions)))
		ds.metrics.RegionOverridesAdd(float64(overrides))
		for _, s := range req.Scores {
			ds.metrics.PredictionScoreObserve(s)
		}
	}

	resp := DecisionResponse{
		Decisions:       decisions,
		Threshold:       p.ClassificationThreshold,
		Margin:          p.ROCMargin,
		RegionOverrides: overrides,
		RequestID:       req.RequestID,
		Latency:         float64(time.Since(start).Milliseconds()),
		Timestamp:       time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Debug().Err(err).Str("request_id", req.RequestID).Msg("failed to write decision response")
	}
}

func (ds *DecisionServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := ds.model.ModelID != ""

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"healthy":       healthy,
		"model_id":      ds.model.ModelID,
		"calibrated_at": ds.model.CalibratedAt,
	}); err != nil {
		log.Debug().Err(err).Msg("failed to write health response")
	}
}

func (ds *DecisionServer) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	lo, hi := roc.Region(ds.model.Params.ClassificationThreshold, ds.model.Params.ROCMargin)
	info := map[string]interface{}{
		"model_id":           ds.model.ModelID,
		"threshold":          ds.model.Params.ClassificationThreshold,
		"margin":             ds.model.Params.ROCMargin,
		"critical_region":    []float64{lo, hi},
		"constraint":         ds.model.Constraint,
		"metric_lower_bound": ds.model.MetricLowerBound,
		"metric_upper_bound": ds.model.MetricUpperBound,
		"fairness_value":     ds.model.FairnessValue,
		"balanced_accuracy":  ds.model.BalancedAccuracy,
		"calibrated_at":      ds.model.CalibratedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		log.Debug().Err(err).Msg("failed to write model info response")
	}
}
