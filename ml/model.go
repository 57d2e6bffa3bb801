package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"go.uber.org/zap"
)

// featureOrder fixes the order in which metrics map onto model weights,
// matching the column order the model was trained with.
var featureOrder = []string{
	"cpu_percent", "ram_percent", "bytes_sent",
	"bytes_recv", "process_count", "miner_process",
}

// ModelFile is the JSON persistence format for a trained logistic model:
// per-feature standardization parameters plus weights and bias.
type ModelFile struct {
	Weights   map[string]float64 `json:"weights"`
	Bias      float64            `json:"bias"`
	Means     map[string]float64 `json:"means"`
	Scales    map[string]float64 `json:"scales"`
	Threshold float64            `json:"threshold"`
	Version   string             `json:"version,omitempty"`
}

// LogisticModel scores metrics snapshots with standardized logistic
// regression.
type LogisticModel struct {
	file      ModelFile
	threshold float64
}

// NewLogisticModel loads a model from path. An empty path or a missing
// file falls back to the built-in weights so the pipeline can run before
// any model has been trained; any other read or decode error is fatal to
// startup. threshold overrides the file's own decision threshold when
// positive.
func NewLogisticModel(path string, threshold float64, logger *zap.SugaredLogger) (*LogisticModel, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	file := builtinModel()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			logger.Warnf("Model file %s not found, using built-in weights", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
		default:
			var loaded ModelFile
			if err := json.Unmarshal(data, &loaded); err != nil {
				return nil, fmt.Errorf("failed to parse model file %s: %w", path, err)
			}
			if err := validateModel(loaded); err != nil {
				return nil, fmt.Errorf("invalid model file %s: %w", path, err)
			}
			file = loaded
			logger.Infof("Loaded classifier model from %s (version %q)", path, loaded.Version)
		}
	}

	if threshold <= 0 {
		threshold = file.Threshold
	}
	if threshold <= 0 {
		threshold = 0.5
	}

	return &LogisticModel{file: file, threshold: threshold}, nil
}

// Predict standardizes the snapshot and applies the logistic function.
func (m *LogisticModel) Predict(metrics Metrics) (Prediction, error) {
	values := map[string]float64{
		"cpu_percent":   metrics.CPUPercent,
		"ram_percent":   metrics.RAMPercent,
		"bytes_sent":    float64(metrics.BytesSent),
		"bytes_recv":    float64(metrics.BytesRecv),
		"process_count": float64(metrics.ProcessCount),
		"miner_process": boolToFloat(metrics.MinerProcess),
	}

	z := m.file.Bias
	for _, feature := range featureOrder {
		scale := m.file.Scales[feature]
		if scale == 0 {
			scale = 1
		}
		standardized := (values[feature] - m.file.Means[feature]) / scale
		z += m.file.Weights[feature] * standardized
	}

	probability := 1.0 / (1.0 + math.Exp(-z))

	label := 0
	if probability >= m.threshold {
		label = 1
	}
	return Prediction{Label: label, Probability: probability}, nil
}

// Threshold returns the decision threshold in effect.
func (m *LogisticModel) Threshold() float64 { return m.threshold }

func validateModel(f ModelFile) error {
	for _, feature := range featureOrder {
		if _, ok := f.Weights[feature]; !ok {
			return fmt.Errorf("missing weight for feature %q", feature)
		}
	}
	return nil
}

// builtinModel returns conservative default weights: a running miner
// process dominates, sustained CPU and outbound traffic contribute, and
// the bias keeps an idle host well below the decision threshold.
func builtinModel() ModelFile {
	return ModelFile{
		Weights: map[string]float64{
			"cpu_percent":   1.6,
			"ram_percent":   0.4,
			"bytes_sent":    1.1,
			"bytes_recv":    0.6,
			"process_count": 0.2,
			"miner_process": 6.0,
		},
		Bias: -3.0,
		Means: map[string]float64{
			"cpu_percent":   25.0,
			"ram_percent":   40.0,
			"bytes_sent":    20000,
			"bytes_recv":    50000,
			"process_count": 200,
			"miner_process": 0,
		},
		Scales: map[string]float64{
			"cpu_percent":   25.0,
			"ram_percent":   20.0,
			"bytes_sent":    50000,
			"bytes_recv":    100000,
			"process_count": 100,
			"miner_process": 1,
		},
		Threshold: 0.5,
		Version:   "builtin",
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
