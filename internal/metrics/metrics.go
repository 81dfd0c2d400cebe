// Package metrics exposes Prometheus collectors that report chair activity:
// script runs, command latency, relay switching, background playback and master state.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the chair's Prometheus collectors.
type Metrics struct {
	scriptRuns      *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	relaySwitches   *prometheus.CounterVec
	playbackActive  *prometheus.GaugeVec
	masterState     *prometheus.GaugeVec
	gatherer        prometheus.Gatherer
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// Default returns the package-level metrics instance registered with the global
// Prometheus registry. The collectors are created only once so several kernels in one
// process (tests, the console) do not trigger duplicate registration panics.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Registration errors panic, mirroring promauto, so configuration bugs surface at boot.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		scriptRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chair",
				Subsystem: "script",
				Name:      "runs_total",
				Help:      "Script runs by script id and result.",
			},
			[]string{"script", "result"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "chair",
				Subsystem: "script",
				Name:      "command_duration_seconds",
				Help:      "Time spent performing each script command, excluding its post-pause.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		relaySwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chair",
				Subsystem: "relay",
				Name:      "switches_total",
				Help:      "Relay switch operations by relay and target state.",
			},
			[]string{"relay", "state"},
		),
		playbackActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "chair",
				Subsystem: "playback",
				Name:      "workers_active",
				Help:      "Background playback workers currently running.",
			},
			[]string{"kind"},
		),
		masterState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "chair",
				Name:      "master_state",
				Help:      "1 for the current master state, 0 otherwise.",
			},
			[]string{"state"},
		),
	}

	for _, c := range []prometheus.Collector{m.scriptRuns, m.commandDuration, m.relaySwitches, m.playbackActive, m.masterState} {
		reg.MustRegister(c)
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}

	return m
}

// ObserveScriptRun counts one finished script run.
func (m *Metrics) ObserveScriptRun(script, result string) {
	if m == nil {
		return
	}
	m.scriptRuns.WithLabelValues(script, result).Inc()
}

// ObserveCommand records how long a command's perform step took.
func (m *Metrics) ObserveCommand(command string, d time.Duration) {
	if m == nil {
		return
	}
	m.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ObserveRelay counts one relay switch.
func (m *Metrics) ObserveRelay(relay string, on bool) {
	if m == nil {
		return
	}
	state := "off"
	if on {
		state = "on"
	}
	m.relaySwitches.WithLabelValues(relay, state).Inc()
}

// PlaybackStarted marks a playback worker of the given kind as running.
func (m *Metrics) PlaybackStarted(kind string) {
	if m == nil {
		return
	}
	m.playbackActive.WithLabelValues(kind).Inc()
}

// PlaybackFinished marks a playback worker of the given kind as finished.
func (m *Metrics) PlaybackFinished(kind string) {
	if m == nil {
		return
	}
	m.playbackActive.WithLabelValues(kind).Dec()
}

// SetMasterState flips the master state gauge to the given state.
func (m *Metrics) SetMasterState(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		value := 0.0
		if s == current {
			value = 1
		}
		m.masterState.WithLabelValues(s).Set(value)
	}
}

// Handler returns an HTTP handler exposing the metrics this instance was registered with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
