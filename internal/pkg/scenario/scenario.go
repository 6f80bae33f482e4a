package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrUnknownScenario is returned by Lookup for an id not in the catalog.
var ErrUnknownScenario = errors.New("unknown scenario")

// Scenario is a training exercise: a starting condition and a goal for the operator.
type Scenario struct {
	ID            string   `json:"ID"`
	Title         string   `json:"Title"`
	Description   string   `json:"Description"`
	Difficulty    string   `json:"Difficulty"`
	InitialFaults []string `json:"InitialFaults,omitempty"`
}

// Catalog is an ordered scenario list.
type Catalog []Scenario

// Lookup returns the scenario with id.
func (c Catalog) Lookup(id string) (Scenario, error) {
	for _, s := range c {
		if s.ID == id {
			return s.clone(), nil
		}
	}
	return Scenario{}, fmt.Errorf("scenario %s: %w", id, ErrUnknownScenario)
}

// Clone deep copies the catalog.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for i, s := range c {
		out[i] = s.clone()
	}
	return out
}

func (s Scenario) clone() Scenario {
	s.InitialFaults = append([]string(nil), s.InitialFaults...)
	return s
}

// Default returns the built-in exercises for the double busbar bay.
func Default() Catalog {
	return Catalog{
		{
			ID:          "sc-1",
			Title:       "Bus Changeover Routine",
			Description: "Transfer load from Bus A to Bus B without interrupting supply.",
			Difficulty:  "Intermediate",
		},
		{
			ID:            "sc-2",
			Title:         "Line Fault Clearance",
			Description:   "Diagnose and isolate a permanent fault on Line 1.",
			Difficulty:    "Advanced",
			InitialFaults: []string{"LINE-1"},
		},
		{
			ID:          "sc-3",
			Title:       "Maintenance Isolation",
			Description: "Safely isolate Circuit Breaker 52 for scheduled maintenance.",
			Difficulty:  "Beginner",
		},
	}
}

type file struct {
	Scenarios Catalog `json:"Scenarios"`
}

// Parse decodes a scenario file. Ids must be present and unique.
func Parse(jsonConfig []byte) (Catalog, error) {
	f := file{}
	if err := json.Unmarshal(jsonConfig, &f); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(f.Scenarios))
	for _, s := range f.Scenarios {
		if s.ID == "" {
			return nil, errors.New("scenario id is empty")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("scenario %s: duplicate id", s.ID)
		}
		seen[s.ID] = true
	}
	if f.Scenarios == nil {
		f.Scenarios = make(Catalog, 0)
	}
	return f.Scenarios, nil
}

// ReadFile loads a catalog from configPath.
func ReadFile(configPath string) (Catalog, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	c, err := Parse(jsonConfig)
	if err != nil {
		return nil, fmt.Errorf("scenarios %s: %w", configPath, err)
	}
	return c, nil
}

// Library holds the current catalog and may be swapped while the engine runs.
type Library struct {
	mux     *sync.RWMutex
	catalog Catalog
}

// NewLibrary returns a Library holding c.
func NewLibrary(c Catalog) *Library {
	return &Library{mux: &sync.RWMutex{}, catalog: c.Clone()}
}

// Current returns a copy of the held catalog.
func (l *Library) Current() Catalog {
	l.mux.RLock()
	defer l.mux.RUnlock()
	return l.catalog.Clone()
}

// Lookup finds id in the held catalog.
func (l *Library) Lookup(id string) (Scenario, error) {
	l.mux.RLock()
	defer l.mux.RUnlock()
	return l.catalog.Lookup(id)
}

// Replace swaps the held catalog.
func (l *Library) Replace(c Catalog) {
	l.mux.Lock()
	defer l.mux.Unlock()
	l.catalog = c.Clone()
}
