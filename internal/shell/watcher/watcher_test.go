package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ForumViriumHelsinki/microclimate-sensor-analysis/internal/observability"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeProber struct {
	mu     sync.Mutex
	err    error
	probes int
}

func (f *fakeProber) Probe(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.err
}

func (f *fakeProber) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeProber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

type fakeRestarter struct {
	mu       sync.Mutex
	err      error
	restarts int
}

func (f *fakeRestarter) Restart(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return f.err
}

func (f *fakeRestarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}

func testWatcher(prober Prober, restarter Restarter, clock clockwork.Clock, threshold int) *Watcher {
	return New(prober, restarter, clock, Config{
		Interval:         time.Minute,
		ProbeTimeout:     time.Second,
		FailureThreshold: threshold,
	}, observability.NewUnregisteredMetrics(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_ZeroConfigGetsDefaults(t *testing.T) {
	w := New(&fakeProber{}, &fakeRestarter{}, clockwork.NewFakeClock(), Config{},
		observability.NewUnregisteredMetrics(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, DefaultConfig(), w.config)
}

// =============================================================================
// Cycle Tests
// =============================================================================

func TestCycle_HealthyResetsFailures(t *testing.T) {
	prober := &fakeProber{}
	restarter := &fakeRestarter{}
	w := testWatcher(prober, restarter, clockwork.NewFakeClock(), 3)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	defer w.cancel()

	w.state.ConsecutiveFailures = 2
	w.cycle()

	state := w.Snapshot()
	assert.True(t, state.Healthy)
	assert.Zero(t, state.ConsecutiveFailures)
	assert.Empty(t, state.LastProbeError)
	assert.Zero(t, restarter.count())
}

func TestCycle_FailuresBelowThresholdDoNotRestart(t *testing.T) {
	prober := &fakeProber{err: errors.New("connection refused")}
	restarter := &fakeRestarter{}
	w := testWatcher(prober, restarter, clockwork.NewFakeClock(), 3)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	defer w.cancel()

	w.cycle()
	w.cycle()

	state := w.Snapshot()
	assert.False(t, state.Healthy)
	assert.Equal(t, 2, state.ConsecutiveFailures)
	assert.Contains(t, state.LastProbeError, "connection refused")
	assert.Zero(t, restarter.count())
}

func TestCycle_ThresholdTriggersRestart(t *testing.T) {
	prober := &fakeProber{err: errors.New("boom")}
	restarter := &fakeRestarter{}
	w := testWatcher(prober, restarter, clockwork.NewFakeClock(), 3)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	defer w.cancel()

	w.cycle()
	w.cycle()
	w.cycle()

	state := w.Snapshot()
	assert.Equal(t, 1, restarter.count())
	assert.Equal(t, 1, state.RestartsTriggered)
	assert.Zero(t, state.ConsecutiveFailures, "failure streak resets after restart")
}

func TestCycle_FailedRestartStillResetsStreak(t *testing.T) {
	prober := &fakeProber{err: errors.New("down")}
	restarter := &fakeRestarter{err: errors.New("docker unreachable")}
	w := testWatcher(prober, restarter, clockwork.NewFakeClock(), 1)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	defer w.cancel()

	w.cycle()
	w.cycle()

	// Each failed cycle reaches the threshold of 1 and retries the restart.
	assert.Equal(t, 2, restarter.count())
}

func TestCycle_RecoveryAfterRestart(t *testing.T) {
	prober := &fakeProber{err: errors.New("down")}
	restarter := &fakeRestarter{}
	w := testWatcher(prober, restarter, clockwork.NewFakeClock(), 2)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	defer w.cancel()

	w.cycle()
	w.cycle()
	require.Equal(t, 1, restarter.count())

	prober.setErr(nil)
	w.cycle()

	state := w.Snapshot()
	assert.True(t, state.Healthy)
	assert.Equal(t, 1, state.RestartsTriggered)
}

// =============================================================================
// Loop Tests
// =============================================================================

func TestWatcher_StartProbesImmediately(t *testing.T) {
	prober := &fakeProber{}
	restarter := &fakeRestarter{}
	w := testWatcher(prober, restarter, clockwork.NewFakeClock(), 3)

	w.Start()
	defer w.Stop()

	assert.Eventually(t, func() bool {
		return prober.count() >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestWatcher_TicksOnInterval(t *testing.T) {
	fc := clockwork.NewFakeClock()
	prober := &fakeProber{}
	restarter := &fakeRestarter{}
	w := testWatcher(prober, restarter, fc, 3)

	w.Start()
	defer w.Stop()

	// Wait for the initial probe and the ticker to be registered.
	require.Eventually(t, func() bool {
		return prober.count() == 1
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))

	fc.Advance(time.Minute)
	assert.Eventually(t, func() bool {
		return prober.count() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestWatcher_StopIsIdempotentlySafe(t *testing.T) {
	prober := &fakeProber{}
	w := testWatcher(prober, &fakeRestarter{}, clockwork.NewFakeClock(), 3)

	w.Start()
	w.Stop()
	// Second stop must not panic or hang.
	w.Stop()
}

// =============================================================================
// HTTP Prober Tests
// =============================================================================

func TestHTTPProber_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sensor-map/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProber(srv.URL+"/sensor-map/healthz", time.Second)
	assert.NoError(t, p.Probe(context.Background()))
}

func TestHTTPProber_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPProber(srv.URL, time.Second)
	err := p.Probe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPProber_Unreachable(t *testing.T) {
	p := NewHTTPProber("http://127.0.0.1:1/healthz", 100*time.Millisecond)
	assert.Error(t, p.Probe(context.Background()))
}
