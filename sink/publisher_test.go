package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"minerwatch/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishCountsAcceptedRules(t *testing.T) {
	var requests int32
	var lastPath, lastAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		lastPath = r.URL.Path
		lastAuth = r.Header.Get("Authorization")

		var rule core.Rule
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rule))
		assert.NotZero(t, rule.SID)

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	publisher := NewPublisher(server.URL, "secret-token", 5*time.Second, 100, nil)
	count := publisher.Publish(context.Background(), sampleRules())

	assert.Equal(t, 2, count)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
	assert.Equal(t, "/rulesets/rules", lastPath)
	assert.Equal(t, "Bearer secret-token", lastAuth)
}

func TestPublishContinuesPastServerErrors(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	publisher := NewPublisher(server.URL, "", 5*time.Second, 100, nil)
	count := publisher.Publish(context.Background(), sampleRules())

	assert.Equal(t, 1, count)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestPublishSkipsInvalidRules(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rules := sampleRules()
	rules[0].Body = "" // fails required validation

	publisher := NewPublisher(server.URL, "", 5*time.Second, 100, nil)
	count := publisher.Publish(context.Background(), rules)

	assert.Equal(t, 1, count)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestPublishDisabledWithoutBackendURL(t *testing.T) {
	publisher := NewPublisher("", "", 5*time.Second, 100, nil)

	assert.False(t, publisher.Enabled())
	assert.Zero(t, publisher.Publish(context.Background(), sampleRules()))
}

func TestPublishEmptyBatch(t *testing.T) {
	publisher := NewPublisher("http://localhost:1", "", time.Second, 100, nil)
	assert.Zero(t, publisher.Publish(context.Background(), nil))
}

func TestPublishUnreachableBackend(t *testing.T) {
	publisher := NewPublisher("http://127.0.0.1:1", "", time.Second, 100, nil)
	assert.Zero(t, publisher.Publish(context.Background(), sampleRules()))
}

func TestPublishTrimsTrailingSlash(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	publisher := NewPublisher(server.URL+"/", "", 5*time.Second, 100, nil)
	publisher.Publish(context.Background(), sampleRules()[:1])

	assert.Equal(t, "/rulesets/rules", path)
}
