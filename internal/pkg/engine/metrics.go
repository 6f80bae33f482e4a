package engine

import "github.com/ohowland/baysim/internal/pkg/eventlog"

// MetricsRecorder receives session counters from engine mutations.
type MetricsRecorder interface {
	SetSessionGauges(health int, loadMW float64, energized int)
	ObserveLog(sev eventlog.Severity)
	IncTrip()
	IncInterlockViolation()
	IncSafetyViolation()
}

type nopRecorder struct{}

func (nopRecorder) SetSessionGauges(int, float64, int) {}
func (nopRecorder) ObserveLog(eventlog.Severity)       {}
func (nopRecorder) IncTrip()                           {}
func (nopRecorder) IncInterlockViolation()             {}
func (nopRecorder) IncSafetyViolation()                {}
