package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.ObserveScriptRun("boot", "ok")
	m.ObserveScriptRun("boot", "ok")
	m.ObserveScriptRun("lock", "error")
	m.ObserveRelay("smoke", true)
	m.ObserveCommand("message", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scriptRuns.WithLabelValues("boot", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scriptRuns.WithLabelValues("lock", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relaySwitches.WithLabelValues("smoke", "on")))
}

func TestMetrics_PlaybackGauge(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.PlaybackStarted("music")
	m.PlaybackStarted("music")
	m.PlaybackFinished("music")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.playbackActive.WithLabelValues("music")))
}

func TestMetrics_MasterState(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())
	all := []string{"started", "running", "locked"}

	m.SetMasterState("running", all)
	m.SetMasterState("locked", all)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.masterState.WithLabelValues("running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.masterState.WithLabelValues("locked")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveScriptRun("boot", "ok")
		m.ObserveRelay("smoke", false)
		m.PlaybackStarted("audio")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())
	m.ObserveScriptRun("shutdown", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chair_script_runs_total{result="ok",script="shutdown"} 1`)
}
