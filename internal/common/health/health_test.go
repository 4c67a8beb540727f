package health_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.sqslistener.dev/internal/common/health"
)

func TestHandleLiveAlwaysUp(t *testing.T) {
	c := health.NewChecker(func() bool { return false })

	rec := httptest.NewRecorder()
	c.HandleLive(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReadyReflectsRunningState(t *testing.T) {
	running := false
	c := health.NewChecker(func() bool { return running })

	rec := httptest.NewRecorder()
	c.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	running = true
	c.RecordPoll(true)
	rec = httptest.NewRecorder()
	c.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "UP", body["status"])
	assert.Equal(t, true, body["lastPollOk"])
	assert.NotEmpty(t, body["lastPolledAt"])
}

func TestHandleHealthAliasesReady(t *testing.T) {
	c := health.NewChecker(func() bool { return true })

	rec := httptest.NewRecorder()
	c.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWaitHealthyReturnsOnceRunning(t *testing.T) {
	var running atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		running.Store(true)
	}()

	err := health.WaitHealthy(context.Background(), running.Load, 5*time.Millisecond)
	require.NoError(t, err)
}

func TestWaitHealthyTimesOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := health.WaitHealthy(ctx, func() bool { return false }, 5*time.Millisecond)
	require.Error(t, err)
}
