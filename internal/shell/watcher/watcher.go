// Package watcher runs the recurring health check that keeps the sensor-map
// service alive between data refreshes. It replaces the cron-driven restart
// described in the operations docs with an in-process loop.
package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ForumViriumHelsinki/microclimate-sensor-analysis/internal/observability"
)

// Restarter brings the service back up after sustained probe failure.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Config configures the watcher.
type Config struct {
	// Interval is the time between probes. Default: 60 seconds.
	Interval time.Duration

	// ProbeTimeout bounds a single probe. Default: 5 seconds.
	ProbeTimeout time.Duration

	// FailureThreshold is the number of consecutive probe failures that
	// triggers a restart. Default: 3.
	FailureThreshold int
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		Interval:         60 * time.Second,
		ProbeTimeout:     5 * time.Second,
		FailureThreshold: 3,
	}
}

// State is a snapshot of the watcher's view of the service.
type State struct {
	LastProbeAt         time.Time
	LastProbeError      string
	ConsecutiveFailures int
	RestartsTriggered   int
	Healthy             bool
}

// Watcher periodically probes the service and restarts it on sustained
// failure.
type Watcher struct {
	prober    Prober
	restarter Restarter
	clock     clockwork.Clock
	config    Config
	metrics   *observability.Metrics
	logger    *slog.Logger

	mu    sync.Mutex
	state State

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher. A nil clock defaults to the wall clock.
func New(prober Prober, restarter Restarter, clock clockwork.Clock, config Config, metrics *observability.Metrics, logger *slog.Logger) *Watcher {
	def := DefaultConfig()
	if config.Interval == 0 {
		config.Interval = def.Interval
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = def.ProbeTimeout
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		prober:    prober,
		restarter: restarter,
		clock:     clock,
		config:    config,
		metrics:   metrics,
		logger:    logger.With("component", "watcher"),
	}
}

// Start begins the watch loop in a background goroutine.
func (w *Watcher) Start() {
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.wg.Add(1)
	go w.run()

	w.logger.Info("watcher started",
		"interval", w.config.Interval,
		"failure_threshold", w.config.FailureThreshold,
	)
}

// Stop gracefully stops the watcher, waiting for an in-flight probe.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("watcher stopped")
}

// Snapshot returns the current watcher state.
func (w *Watcher) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// run is the main loop.
func (w *Watcher) run() {
	defer w.wg.Done()

	// Probe immediately on start.
	w.cycle()

	ticker := w.clock.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.Chan():
			w.cycle()
		}
	}
}

// cycle runs one probe and, past the failure threshold, a restart.
func (w *Watcher) cycle() {
	ctx, cancel := context.WithTimeout(w.ctx, w.config.ProbeTimeout)
	start := time.Now()
	err := w.prober.Probe(ctx)
	cancel()

	if w.metrics != nil {
		w.metrics.ProbeDuration.Observe(time.Since(start).Seconds())
	}

	w.mu.Lock()
	w.state.LastProbeAt = w.clock.Now()

	if err == nil {
		w.state.Healthy = true
		w.state.LastProbeError = ""
		w.state.ConsecutiveFailures = 0
		w.mu.Unlock()

		if w.metrics != nil {
			w.metrics.ProbesTotal.WithLabelValues("success").Inc()
			w.metrics.ServiceUp.Set(1)
			w.metrics.ConsecutiveFailures.Set(0)
		}
		w.logger.Debug("probe succeeded")
		return
	}

	w.state.Healthy = false
	w.state.LastProbeError = err.Error()
	w.state.ConsecutiveFailures++
	failures := w.state.ConsecutiveFailures
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.ProbesTotal.WithLabelValues("failure").Inc()
		w.metrics.ServiceUp.Set(0)
		w.metrics.ConsecutiveFailures.Set(float64(failures))
	}
	w.logger.Warn("probe failed", "error", err, "consecutive_failures", failures)

	if failures < w.config.FailureThreshold {
		return
	}

	w.logger.Info("failure threshold reached, restarting service", "failures", failures)
	restartErr := w.restarter.Restart(w.ctx)

	w.mu.Lock()
	w.state.RestartsTriggered++
	w.state.ConsecutiveFailures = 0
	w.mu.Unlock()

	if restartErr != nil {
		if w.metrics != nil {
			w.metrics.RestartsTotal.WithLabelValues("failure").Inc()
		}
		w.logger.Error("restart failed", "error", restartErr)
		return
	}

	if w.metrics != nil {
		w.metrics.RestartsTotal.WithLabelValues("success").Inc()
		w.metrics.ConsecutiveFailures.Set(0)
	}
	w.logger.Info("service restarted by watcher")
}
