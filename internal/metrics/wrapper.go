package metrics

// Wrapper adapts Metrics to the narrow interfaces consumed by the calibrator
// and the decision server, avoiding circular imports between those packages
// and the Prometheus wiring.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

// Calibration hooks, satisfying the calibrator's metrics interface.

func (w *Wrapper) CalibrationsInc() {
	w.m.CalibrationsTotal.Inc()
}

func (w *Wrapper) CalibrationFailuresInc() {
	w.m.CalibrationFailures.Inc()
}

func (w *Wrapper) GridPointsAdd(n float64) {
	w.m.GridPointsEvaluated.Add(n)
}

func (w *Wrapper) CalibrationDurationObserve(seconds float64) {
	w.m.CalibrationDuration.Observe(seconds)
}

// Fitted-model gauges, set after a successful calibration.

func (w *Wrapper) FairnessValueSet(v float64) {
	w.m.FairnessValue.Set(v)
}

func (w *Wrapper) BalancedAccuracySet(v float64) {
	w.m.BalancedAccuracy.Set(v)
}

// Serving hooks.

func (w *Wrapper) PredictionsAdd(n float64) {
	w.m.PredictionsTotal.Add(n)
}

func (w *Wrapper) RegionOverridesAdd(n float64) {
	w.m.RegionOverrides.Add(n)
}

func (w *Wrapper) PredictionScoreObserve(score float64) {
	w.m.PredictionScores.Observe(score)
}

// Stream and scorer hooks.

func (w *Wrapper) WSReconnectsInc() {
	w.m.WSReconnects.Inc()
}

func (w *Wrapper) InstancesReceivedInc() {
	w.m.InstancesReceived.Inc()
}

func (w *Wrapper) ScorerRequestsInc() {
	w.m.ScorerRequests.Inc()
}

func (w *Wrapper) ScorerErrorsInc() {
	w.m.ScorerErrors.Inc()
}

func (w *Wrapper) ErrorsInc() {
	w.m.ErrorsTotal.Inc()
}
