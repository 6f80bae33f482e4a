package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ohowland/baysim/internal/pkg/eventlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	assert.NilError(t, err)

	c.SetSessionGauges(80, 124, 6)
	c.ObserveLog(eventlog.Error)
	c.ObserveLog(eventlog.Error)
	c.ObserveLog(eventlog.Success)
	c.IncTrip()
	c.IncInterlockViolation()
	c.IncSafetyViolation()
	c.IncSafetyViolation()

	assert.Equal(t, testutil.ToFloat64(c.SystemHealth), 80.0)
	assert.Equal(t, testutil.ToFloat64(c.ActiveLoad), 124.0)
	assert.Equal(t, testutil.ToFloat64(c.EnergizedNodes), 6.0)
	assert.Equal(t, testutil.ToFloat64(c.LogEntries.WithLabelValues("ERROR")), 2.0)
	assert.Equal(t, testutil.ToFloat64(c.LogEntries.WithLabelValues("SUCCESS")), 1.0)
	assert.Equal(t, testutil.ToFloat64(c.Trips), 1.0)
	assert.Equal(t, testutil.ToFloat64(c.InterlockViolations), 1.0)
	assert.Equal(t, testutil.ToFloat64(c.SafetyViolations), 2.0)
}

func TestCollectorReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	assert.NilError(t, err)
	second, err := NewCollector(reg)
	assert.NilError(t, err)

	second.IncTrip()
	assert.Equal(t, testutil.ToFloat64(first.Trips), 1.0)
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.SetSessionGauges(1, 2, 3)
	c.ObserveLog(eventlog.Info)
	c.IncTrip()
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	assert.NilError(t, err)
	c.SetSessionGauges(100, 0, 6)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	assert.NilError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Assert(t, strings.Contains(string(body), "baysim_system_health 100"))
}

func TestTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{})
	assert.NilError(t, err)
	assert.NilError(t, shutdown(context.Background()))
}

func TestTracingUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"})
	assert.ErrorContains(t, err, "unsupported tracing exporter")
}

func TestReadTracingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracing.json")
	assert.NilError(t, os.WriteFile(path, []byte(`{"Enabled": true, "Exporter": "stdout"}`), 0644))

	cfg, err := ReadTracingConfig(path)
	assert.NilError(t, err)
	assert.Assert(t, cfg.Enabled)
	assert.Equal(t, cfg.ServiceName, "baysim")
	assert.Equal(t, cfg.SampleRatio, 1.0)
}

func TestMiddlewarePassesThrough(t *testing.T) {
	h := Middleware(func(r *http.Request) string { return "/test" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, rec.Code, http.StatusTeapot)
}
