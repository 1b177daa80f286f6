package exporter_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokal-id/netstress/internal/exporter"
)

func TestCountersByOutcome(t *testing.T) {
	e := exporter.New()

	for i := 0; i < 3; i++ {
		e.Admitted()
	}
	e.Succeeded(10*time.Millisecond, 15*time.Millisecond)
	e.Failed()
	e.Abandoned(1)
	e.Abandoned(0)

	expected := `
# HELP netstress_units_completed_total Units of work finished, by outcome.
# TYPE netstress_units_completed_total counter
netstress_units_completed_total{outcome="abandoned"} 1
netstress_units_completed_total{outcome="failure"} 1
netstress_units_completed_total{outcome="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(e.Registry(), strings.NewReader(expected), "netstress_units_completed_total"))

	n, err := testutil.GatherAndCount(e.Registry(), "netstress_service_time_seconds", "netstress_response_time_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	expected = `
# HELP netstress_units_admitted_total Units of work admitted by the arrival scheduler.
# TYPE netstress_units_admitted_total counter
netstress_units_admitted_total 3
`
	require.NoError(t, testutil.GatherAndCompare(e.Registry(), strings.NewReader(expected), "netstress_units_admitted_total"))
}

func TestPhaseIsExclusive(t *testing.T) {
	e := exporter.New()
	e.SetPhase("warmup")
	e.SetPhase("stress")

	expected := `
# HELP netstress_phase 1 for the campaign's current phase, 0 otherwise.
# TYPE netstress_phase gauge
netstress_phase{phase="done"} 0
netstress_phase{phase="draining"} 0
netstress_phase{phase="idle"} 0
netstress_phase{phase="stabilizing"} 0
netstress_phase{phase="stress"} 1
netstress_phase{phase="warmup"} 0
`
	require.NoError(t, testutil.GatherAndCompare(e.Registry(), strings.NewReader(expected), "netstress_phase"))
}

func TestGaugesAndQueueDepth(t *testing.T) {
	e := exporter.New()
	e.SetTargetRPS(75)
	depth := 4
	e.TrackQueueDepth(func() int { return depth })

	expected := `
# HELP netstress_queue_depth Admitted units waiting for a free worker.
# TYPE netstress_queue_depth gauge
netstress_queue_depth 4
# HELP netstress_target_rps Admission rate for the current second.
# TYPE netstress_target_rps gauge
netstress_target_rps 75
`
	require.NoError(t, testutil.GatherAndCompare(e.Registry(), strings.NewReader(expected), "netstress_queue_depth", "netstress_target_rps"))
}

func TestNilExporterIsNoop(t *testing.T) {
	var e *exporter.Exporter
	assert.NotPanics(t, func() {
		e.Admitted()
		e.Succeeded(time.Millisecond, time.Millisecond)
		e.Failed()
		e.Abandoned(2)
		e.SetPhase("stress")
		e.SetTargetRPS(1)
		e.TrackQueueDepth(func() int { return 1 })
	})
}

func TestServe(t *testing.T) {
	e := exporter.New()
	e.Admitted()

	srv, err := e.Serve("127.0.0.1:0", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "netstress_units_admitted_total 1")
}

func TestServeBadAddress(t *testing.T) {
	_, err := exporter.New().Serve("256.0.0.1:bad", nil)
	assert.Error(t, err)
}
