package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventAccessors(t *testing.T) {
	event := Event{
		"event_type": "http",
		"dest_ip":    "10.0.0.5",
		"dest_port":  float64(3333),
		"proto":      "TCP",
		"http": map[string]any{
			"hostname":        "pool.minexmr.com",
			"url":             "/api/v1/submit",
			"http_user_agent": "XMRig/6.18.0",
		},
	}

	assert.Equal(t, "http", event.Type())
	assert.Equal(t, "10.0.0.5", event.DestIP())
	assert.Equal(t, 3333, event.DestPort())
	assert.Equal(t, "TCP", event.Proto())
	assert.False(t, event.Synthetic())

	http := event.HTTP()
	require.NotNil(t, http)
	assert.Equal(t, "pool.minexmr.com", StringFrom(http, "hostname"))
}

func TestEventAccessorsMissingFields(t *testing.T) {
	event := Event{}

	assert.Equal(t, "", event.Type())
	assert.Equal(t, "", event.DestIP())
	assert.Equal(t, 0, event.DestPort())
	assert.Equal(t, "TCP", event.Proto(), "proto defaults to TCP")
	assert.Nil(t, event.HTTP())
}

func TestEventAliasFields(t *testing.T) {
	event := Event{
		"destination_ip": "192.168.1.20",
		"source_ip":      "192.168.1.2",
	}
	assert.Equal(t, "192.168.1.20", event.DestIP())
	assert.Equal(t, "192.168.1.2", event.SrcIP())
}

func TestEventTimestamp(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		wantOK bool
	}{
		{"eve format", "2026-08-30T12:00:00.123456+0000", true},
		{"rfc3339", "2026-08-30T12:00:00Z", true},
		{"epoch float", float64(1756555200), true},
		{"garbage", "not-a-time", false},
		{"missing", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := Event{}
			if tt.value != nil {
				event["timestamp"] = tt.value
			}
			ts, ok := event.Timestamp()
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.False(t, ts.IsZero())
			}
		})
	}
}

func TestEventTimestampEpochValue(t *testing.T) {
	event := Event{"timestamp": float64(1756555200)}
	ts, ok := event.Timestamp()
	require.True(t, ok)
	assert.Equal(t, time.Unix(1756555200, 0), ts)
}
