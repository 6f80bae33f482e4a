// Package mimicpanel drives a hardware mimic board over Modbus. Each node has
// a set of registers named "<node id>.<point>":
//
//	open_cmd, close_cmd   read by the simulator, a 0 to non-zero edge operates the node
//	state                 written, 0 open / 1 closed / 2 tripped
//	energized             written, 0 or 1
//	voltage               written, kV
package mimicpanel

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/baysim/internal/pkg/comm/modbuscomm"
	"github.com/ohowland/baysim/internal/pkg/engine"
	"github.com/ohowland/baysim/internal/pkg/msg"
	"github.com/ohowland/baysim/internal/pkg/topology"
)

// Register point names.
const (
	OpenCommand  = "open_cmd"
	CloseCommand = "close_cmd"
	StatePoint   = "state"
	Energized    = "energized"
	Voltage      = "voltage"
)

// Config is the panel's register map and poll rate.
type Config struct {
	Poller     modbuscomm.PollerConfig `json:"Poller"`
	PollRateMs int                     `json:"PollRateMs"`
	Registers  []modbuscomm.Register   `json:"Registers"`
}

// ReadConfig loads a mimic panel config file.
func ReadConfig(configPath string) (Config, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("mimic panel config %s: %w", configPath, err)
	}
	if cfg.PollRateMs <= 0 {
		cfg.PollRateMs = 200
	}
	return cfg, nil
}

// Operator is the engine surface the panel drives.
type Operator interface {
	msg.Publisher
	Operate(id string, command engine.Command)
}

// Panel polls command registers and mirrors bay status onto the board.
type Panel struct {
	pid    uuid.UUID
	comm   modbuscomm.ModbusComm
	sim    Operator
	config Config
	inbox  <-chan msg.Msg
	reads  []modbuscomm.Register
	writes []modbuscomm.Register
	last   map[string]float64
	stop   chan struct{}
	done   chan struct{}
}

// New subscribes the panel to the operator's Status topic.
func New(cfg Config, comm modbuscomm.ModbusComm, sim Operator) (*Panel, error) {
	if err := modbuscomm.ValidateRegisters(cfg.Registers); err != nil {
		return nil, err
	}
	pid := uuid.New()
	inbox, err := sim.Subscribe(pid, msg.Status)
	if err != nil {
		return nil, err
	}
	if cfg.PollRateMs <= 0 {
		cfg.PollRateMs = 200
	}
	return &Panel{
		pid:    pid,
		comm:   comm,
		sim:    sim,
		config: cfg,
		inbox:  inbox,
		reads:  modbuscomm.FilterRegisters(cfg.Registers, modbuscomm.ReadOnly),
		writes: modbuscomm.FilterRegisters(cfg.Registers, modbuscomm.WriteOnly),
		last:   make(map[string]float64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

func (p *Panel) PID() uuid.UUID {
	return p.pid
}

func splitName(name string) (id, point string, ok bool) {
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}

// Poll reads the command registers once and operates every node whose
// command point rose since the last poll.
func (p *Panel) Poll() error {
	if len(p.reads) == 0 {
		return nil
	}
	values, err := p.comm.Read(p.reads)
	if err != nil {
		return err
	}
	for _, reg := range p.reads {
		v, ok := values[reg.Name]
		if !ok {
			continue
		}
		prev := p.last[reg.Name]
		p.last[reg.Name] = v
		if prev != 0 || v == 0 {
			continue
		}
		id, point, ok := splitName(reg.Name)
		if !ok {
			continue
		}
		switch point {
		case OpenCommand:
			p.sim.Operate(id, engine.OpenCmd)
		case CloseCommand:
			p.sim.Operate(id, engine.CloseCmd)
		}
	}
	return nil
}

func stateValue(s topology.SwitchState) float64 {
	switch s {
	case topology.Closed:
		return 1
	case topology.Tripped:
		return 2
	}
	return 0
}

// Indicate writes the status registers for every node in nodes.
func (p *Panel) Indicate(nodes topology.Nodes) error {
	values := make(map[string]float64)
	for _, reg := range p.writes {
		id, point, ok := splitName(reg.Name)
		if !ok {
			continue
		}
		n, ok := nodes.Find(id)
		if !ok {
			continue
		}
		switch point {
		case StatePoint:
			values[reg.Name] = stateValue(n.State)
		case Energized:
			if n.Energized {
				values[reg.Name] = 1
			} else {
				values[reg.Name] = 0
			}
		case Voltage:
			values[reg.Name] = n.VoltageKV
		}
	}
	if len(values) == 0 {
		return nil
	}
	return p.comm.Write(p.writes, values)
}

// Stop ends Process.
func (p *Panel) Stop() {
	close(p.stop)
}

// Process polls on the configured rate and mirrors every status message
// until stopped or the operator closes the subscription.
func (p *Panel) Process() {
	defer close(p.done)
	log.Println("[Mimic Panel] Process Started")
	ticker := time.NewTicker(time.Duration(p.config.PollRateMs) * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ticker.C:
			if err := p.Poll(); err != nil {
				log.Println("[Mimic Panel] poll:", err)
			}
		case m, ok := <-p.inbox:
			if !ok {
				break loop
			}
			snap, ok := m.Payload().(engine.Snapshot)
			if !ok {
				continue
			}
			if err := p.Indicate(snap.Nodes); err != nil {
				log.Println("[Mimic Panel] indicate:", err)
			}
		case <-p.stop:
			break loop
		}
	}
	p.sim.Unsubscribe(p.pid)
	log.Println("[Mimic Panel] Process Shutdown")
}
