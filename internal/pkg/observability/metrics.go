package observability

import (
	"fmt"
	"net/http"

	"github.com/ohowland/baysim/internal/pkg/eventlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the session metrics. It satisfies engine.MetricsRecorder.
type Collector struct {
	gatherer prometheus.Gatherer

	SystemHealth        prometheus.Gauge
	ActiveLoad          prometheus.Gauge
	EnergizedNodes      prometheus.Gauge
	LogEntries          *prometheus.CounterVec
	Trips               prometheus.Counter
	InterlockViolations prometheus.Counter
	SafetyViolations    prometheus.Counter
}

// NewCollector registers the session metrics against reg, defaulting to the
// global registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	health, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "baysim_system_health",
		Help: "Trainee system health score, 0 to 100.",
	}), "baysim_system_health")
	if err != nil {
		return nil, err
	}
	load, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "baysim_active_load_mw",
		Help: "Simulated active load carried by the bay in MW.",
	}), "baysim_active_load_mw")
	if err != nil {
		return nil, err
	}
	energized, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "baysim_energized_nodes",
		Help: "Number of energized nodes in the bay.",
	}), "baysim_energized_nodes")
	if err != nil {
		return nil, err
	}

	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "baysim_log_entries_total",
		Help: "Operator log entries, labeled by severity.",
	}, []string{"severity"})
	entries, err = registerCounterVec(reg, entries, "baysim_log_entries_total")
	if err != nil {
		return nil, err
	}

	trips, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "baysim_protection_trips_total",
		Help: "Breaker trips after closing onto a fault.",
	}), "baysim_protection_trips_total")
	if err != nil {
		return nil, err
	}
	interlocks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "baysim_interlock_violations_total",
		Help: "Operations blocked by an interlock.",
	}), "baysim_interlock_violations_total")
	if err != nil {
		return nil, err
	}
	safety, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "baysim_safety_violations_total",
		Help: "Attempts to open an isolator on load.",
	}), "baysim_safety_violations_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:            gatherer,
		SystemHealth:        health,
		ActiveLoad:          load,
		EnergizedNodes:      energized,
		LogEntries:          entries,
		Trips:               trips,
		InterlockViolations: interlocks,
		SafetyViolations:    safety,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetSessionGauges updates the session gauges.
func (c *Collector) SetSessionGauges(health int, loadMW float64, energized int) {
	if c == nil {
		return
	}
	c.SystemHealth.Set(float64(health))
	c.ActiveLoad.Set(loadMW)
	c.EnergizedNodes.Set(float64(energized))
}

// ObserveLog counts one log entry.
func (c *Collector) ObserveLog(sev eventlog.Severity) {
	if c == nil {
		return
	}
	c.LogEntries.WithLabelValues(sev.String()).Inc()
}

// IncTrip counts a protection trip.
func (c *Collector) IncTrip() {
	if c == nil {
		return
	}
	c.Trips.Inc()
}

// IncInterlockViolation counts a blocked operation.
func (c *Collector) IncInterlockViolation() {
	if c == nil {
		return
	}
	c.InterlockViolations.Inc()
}

// IncSafetyViolation counts a load break attempt.
func (c *Collector) IncSafetyViolation() {
	if c == nil {
		return
	}
	c.SafetyViolations.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
