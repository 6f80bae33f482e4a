/*
telemetry.go Cosmetic load and voltage telemetry. Nothing here affects switching
state or energization.
*/

package telemetry

import (
	"math"

	"github.com/ohowland/baysim/internal/pkg/topology"
)

// Rand is the random source for telemetry noise. *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Config holds the telemetry constants.
type Config struct {
	LoadPerLineMW  float64 `json:"LoadPerLineMW"`
	LoadFollowGain float64 `json:"LoadFollowGain"`
	LoadNoiseMW    float64 `json:"LoadNoiseMW"`
	VoltageNoiseKV float64 `json:"VoltageNoiseKV"`
}

// DefaultConfig returns the bay telemetry constants.
func DefaultConfig() Config {
	return Config{
		LoadPerLineMW:  124,
		LoadFollowGain: 0.1,
		LoadNoiseMW:    2,
		VoltageNoiseKV: 0.75,
	}
}

// uniform returns a sample in [-span, span).
func uniform(r Rand, span float64) float64 {
	return (r.Float64()*2 - 1) * span
}

// TargetLoadMW is the load the bay settles to with the given energized lines.
func (c Config) TargetLoadMW(energizedLines int) float64 {
	return float64(energizedLines) * c.LoadPerLineMW
}

// NextLoad moves prev a fraction of the way toward the target and adds noise.
// The result is floored to whole megawatts and never negative.
func (c Config) NextLoad(prev float64, energizedLines int, r Rand) float64 {
	target := c.TargetLoadMW(energizedLines)
	next := math.Floor(prev + (target-prev)*c.LoadFollowGain + uniform(r, c.LoadNoiseMW))
	if next < 0 {
		return 0
	}
	return next
}

// Voltage returns a noisy reading around the node's rating, rounded to 0.1 kV,
// or 0 when the node is dead.
func (c Config) Voltage(n topology.Node, r Rand) float64 {
	if !n.Energized {
		return 0
	}
	return math.Round((n.RatedKV+uniform(r, c.VoltageNoiseKV))*10) / 10
}

// EnergizedLines counts the live lines in nodes.
func EnergizedLines(nodes topology.Nodes) int {
	count := 0
	for _, n := range nodes {
		if n.Kind == topology.Line && n.Energized {
			count++
		}
	}
	return count
}

// Apply returns the next load for nodes and writes fresh voltages in place.
func (c Config) Apply(nodes topology.Nodes, prevLoad float64, r Rand) float64 {
	load := c.NextLoad(prevLoad, EnergizedLines(nodes), r)
	for i := range nodes {
		nodes[i].VoltageKV = c.Voltage(nodes[i], r)
	}
	return load
}
