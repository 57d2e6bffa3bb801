package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinModelIdleHost(t *testing.T) {
	model, err := NewLogisticModel("", 0, nil)
	require.NoError(t, err)

	pred, err := model.Predict(Metrics{
		CPUPercent:   10,
		RAMPercent:   35,
		BytesSent:    5000,
		BytesRecv:    20000,
		ProcessCount: 180,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, pred.Label)
	assert.Less(t, pred.Probability, 0.5)
}

func TestBuiltinModelMinerProcess(t *testing.T) {
	model, err := NewLogisticModel("", 0, nil)
	require.NoError(t, err)

	pred, err := model.Predict(Metrics{
		CPUPercent:   98,
		RAMPercent:   70,
		BytesSent:    250000,
		BytesRecv:    300000,
		ProcessCount: 220,
		MinerProcess: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, pred.Label)
	assert.Greater(t, pred.Probability, 0.9)
}

func TestModelLoadFromFile(t *testing.T) {
	content := `{
		"weights": {"cpu_percent": 0, "ram_percent": 0, "bytes_sent": 0,
		            "bytes_recv": 0, "process_count": 0, "miner_process": 10},
		"bias": -5,
		"means": {},
		"scales": {},
		"threshold": 0.5,
		"version": "test-1"
	}`
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	model, err := NewLogisticModel(path, 0, nil)
	require.NoError(t, err)

	pred, err := model.Predict(Metrics{MinerProcess: true})
	require.NoError(t, err)
	assert.Equal(t, 1, pred.Label)

	pred, err = model.Predict(Metrics{})
	require.NoError(t, err)
	assert.Equal(t, 0, pred.Label)
}

func TestModelMissingFileFallsBack(t *testing.T) {
	model, err := NewLogisticModel(filepath.Join(t.TempDir(), "absent.json"), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, model.Threshold())
}

func TestModelRejectsIncompleteWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"weights":{"cpu_percent":1}}`), 0o644))

	_, err := NewLogisticModel(path, 0, nil)
	assert.Error(t, err)
}

func TestThresholdOverride(t *testing.T) {
	model, err := NewLogisticModel("", 0.9, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.9, model.Threshold())
}

func TestStateFor(t *testing.T) {
	assert.Equal(t, StateSuspiciousMining, StateFor(Prediction{Label: 1, Probability: 0.95}))
	assert.Equal(t, StateNormal, StateFor(Prediction{Label: 0, Probability: 0.1}))
	assert.Equal(t, StateLegitimate, StateFor(Prediction{Label: 0, Probability: 0.4}))
}

func TestIsMinerProcess(t *testing.T) {
	assert.True(t, isMinerProcess("xmrig"))
	assert.True(t, isMinerProcess("XMRig-worker"))
	assert.False(t, isMinerProcess("chromium"))
}
