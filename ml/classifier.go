// Package ml provides the statistical cryptojacking classifier the
// pipeline consults each cycle: a system metrics collector and a logistic
// scorer over those metrics. The pipeline only depends on the Classifier
// interface; the model itself is an external collaborator whose training
// happens elsewhere.
package ml

import (
	"context"
)

// Metrics is one snapshot of host behavior, the classifier's feature set.
type Metrics struct {
	CPUPercent   float64 `json:"cpu_percent"`
	RAMPercent   float64 `json:"ram_percent"`
	BytesSent    uint64  `json:"bytes_sent"`
	BytesRecv    uint64  `json:"bytes_recv"`
	ProcessCount int     `json:"process_count"`
	// MinerProcess is set when a known miner process name is running.
	MinerProcess bool `json:"miner_process"`
}

// Prediction is the classifier's verdict for one metrics snapshot.
type Prediction struct {
	// Label is 1 for suspected mining, 0 otherwise.
	Label int `json:"prediction"`
	// Probability is the mining-class probability in [0,1].
	Probability float64 `json:"probability"`
}

// Classifier detects cryptojacking behavior from system metrics.
type Classifier interface {
	// CollectMetrics samples the current host state.
	CollectMetrics(ctx context.Context) (Metrics, error)

	// Predict classifies a metrics snapshot.
	Predict(m Metrics) (Prediction, error)
}

// Descriptive states derived from a prediction, used for logging and
// branching only; the detection decision itself is Label==1.
const (
	StateSuspiciousMining = "mineria_sospechosa"
	StateNormal           = "normal"
	StateLegitimate       = "actividad_legitima"
)

// StateFor buckets a prediction into its descriptive state.
func StateFor(p Prediction) string {
	switch {
	case p.Label == 1:
		return StateSuspiciousMining
	case p.Probability < 0.3:
		return StateNormal
	default:
		return StateLegitimate
	}
}

// SystemClassifier is the default Classifier: gopsutil metrics plus a
// logistic model.
type SystemClassifier struct {
	collector *SystemCollector
	model     *LogisticModel
}

// NewSystemClassifier wires a collector and model together.
func NewSystemClassifier(collector *SystemCollector, model *LogisticModel) *SystemClassifier {
	return &SystemClassifier{collector: collector, model: model}
}

// CollectMetrics samples the host via the collector.
func (c *SystemClassifier) CollectMetrics(ctx context.Context) (Metrics, error) {
	return c.collector.Collect(ctx)
}

// Predict scores the snapshot with the logistic model.
func (c *SystemClassifier) Predict(m Metrics) (Prediction, error) {
	return c.model.Predict(m)
}
