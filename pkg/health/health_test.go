package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysPass(_ context.Context) error { return nil }

func alwaysFail(msg string) CheckFunc {
	return func(_ context.Context) error { return errors.New(msg) }
}

func probeStatus(t *testing.T, h http.HandlerFunc, path string) (int, statusResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func TestLiveEndpoint_AllPassing(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, alwaysPass)
	h.AddLivenessCheck("gc", time.Second, alwaysPass)

	code, body := probeStatus(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
}

func TestLiveEndpoint_FailingCheckPastThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("db", time.Second, alwaysFail("connection refused"))

	// Probes start healthy; three consecutive failures flip them.
	ctx := context.Background()
	for range defaultFailureThreshold {
		h.liveness[0].sample(ctx)
	}

	code, body := probeStatus(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["db"])
}

func TestLiveEndpoint_FailureBelowThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("flaky", time.Second, alwaysFail("temporary"))

	ctx := context.Background()
	h.liveness[0].sample(ctx)
	h.liveness[0].sample(ctx)

	code, _ := probeStatus(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, code)
}

func TestReadyEndpoint_GateAndChecks(t *testing.T) {
	h := New()
	h.AddReadinessCheck("database", time.Second, alwaysPass)

	// The manual gate starts closed.
	code, body := probeStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)
	code, body = probeStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	// Closing the gate again drains the instance.
	h.SetReady(false)
	code, _ = probeStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyEndpoint_OneFailingCheckNamed(t *testing.T) {
	h := New()
	h.AddReadinessCheck("database", time.Second, alwaysPass)
	h.AddReadinessCheck("cache", time.Second, alwaysFail("cache miss"))
	h.SetReady(true)

	ctx := context.Background()
	for range defaultFailureThreshold {
		h.readiness[1].sample(ctx)
	}

	code, body := probeStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "cache")
	assert.NotContains(t, body.Checks, "database")
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("database", time.Second, alwaysPass)

	assert.False(t, h.IsReady())
	h.SetReady(true)
	assert.True(t, h.IsReady())
	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestStopIsIdempotent(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, alwaysPass)

	h.Start(context.Background(), 100*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestEndpoints_NoChecksRegistered(t *testing.T) {
	h := New()
	h.SetReady(true)

	code, _ := probeStatus(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, code)

	code, _ = probeStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestProbeRecovery(t *testing.T) {
	failing := true
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(_ context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	})
	p := h.liveness[0]
	ctx := context.Background()

	for range defaultFailureThreshold {
		p.sample(ctx)
	}
	_, failed := p.failure()
	assert.True(t, failed)

	// One pass recovers with the default success threshold of 1.
	failing = false
	p.sample(ctx)
	_, failed = p.failure()
	assert.False(t, failed)
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("liveness", time.Second, alwaysFail("err"))
	h.AddReadinessCheck("readiness", time.Second, alwaysPass)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 10*time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h.IsReady()

				w := httptest.NewRecorder()
				h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

				w = httptest.NewRecorder()
				h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestDatabasePingCheck(t *testing.T) {
	assert.NoError(t, DatabasePingCheck(fakePinger{})(context.Background()))

	err := DatabasePingCheck(fakePinger{err: errors.New("dial refused")})(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database ping")
}
