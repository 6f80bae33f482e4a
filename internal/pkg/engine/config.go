package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ohowland/baysim/internal/pkg/propagation"
	"github.com/ohowland/baysim/internal/pkg/telemetry"
	"github.com/ohowland/baysim/internal/pkg/topology"
)

// Config is the engine's static configuration. Durations are milliseconds on disk.
type Config struct {
	TripDelayMs          int              `json:"TripDelayMs"`
	TelemetryPeriodMs    int              `json:"TelemetryPeriodMs"`
	MaxPropagationPasses int              `json:"MaxPropagationPasses"`
	FaultLineID          string           `json:"FaultLineID"`
	ProtectionBreakerID  string           `json:"ProtectionBreakerID"`
	Telemetry            telemetry.Config `json:"Telemetry"`
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() Config {
	return Config{
		TripDelayMs:          500,
		TelemetryPeriodMs:    800,
		MaxPropagationPasses: propagation.DefaultMaxPasses,
		FaultLineID:          topology.FeederLine,
		ProtectionBreakerID:  topology.FeederBreaker,
		Telemetry:            telemetry.DefaultConfig(),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TripDelayMs <= 0 {
		c.TripDelayMs = d.TripDelayMs
	}
	if c.TelemetryPeriodMs <= 0 {
		c.TelemetryPeriodMs = d.TelemetryPeriodMs
	}
	if c.MaxPropagationPasses <= 0 {
		c.MaxPropagationPasses = d.MaxPropagationPasses
	}
	if c.FaultLineID == "" {
		c.FaultLineID = d.FaultLineID
	}
	if c.ProtectionBreakerID == "" {
		c.ProtectionBreakerID = d.ProtectionBreakerID
	}
	if c.Telemetry.LoadPerLineMW == 0 {
		c.Telemetry.LoadPerLineMW = d.Telemetry.LoadPerLineMW
	}
	if c.Telemetry.LoadFollowGain == 0 {
		c.Telemetry.LoadFollowGain = d.Telemetry.LoadFollowGain
	}
	if c.Telemetry.LoadNoiseMW == 0 {
		c.Telemetry.LoadNoiseMW = d.Telemetry.LoadNoiseMW
	}
	if c.Telemetry.VoltageNoiseKV == 0 {
		c.Telemetry.VoltageNoiseKV = d.Telemetry.VoltageNoiseKV
	}
	return c
}

// TripDelay is the pause between closing onto a fault and the protection trip.
func (c Config) TripDelay() time.Duration {
	return time.Duration(c.TripDelayMs) * time.Millisecond
}

// TelemetryPeriod is the telemetry tick interval.
func (c Config) TelemetryPeriod() time.Duration {
	return time.Duration(c.TelemetryPeriodMs) * time.Millisecond
}

// ReadConfig loads an engine config file. Missing fields take their defaults.
func ReadConfig(configPath string) (Config, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	c := Config{}
	if err := json.Unmarshal(jsonConfig, &c); err != nil {
		return Config{}, fmt.Errorf("engine config %s: %w", configPath, err)
	}
	return c.withDefaults(), nil
}
