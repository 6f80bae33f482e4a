package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/ohowland/baysim/internal/pkg/eventlog"
	"github.com/ohowland/baysim/internal/pkg/interlock"
	"github.com/ohowland/baysim/internal/pkg/msg"
	"github.com/ohowland/baysim/internal/pkg/propagation"
	"github.com/ohowland/baysim/internal/pkg/topology"
)

const (
	fullHealth         = 100
	safetyPenalty      = 10
	faultRecordPenalty = 20
	protectionTripFmt  = "PROTECTION TRIP: %s closed onto FAULT!"
)

// Operate requests a switching command on a node.
type Operate struct {
	ID      string
	Command Command
}

// InjectFault requests a fault on the protected line.
type InjectFault struct{}

// LoadScenario requests a scenario load.
type LoadScenario struct {
	ID string
}

// Reset requests a return to the template bay.
type Reset struct{}

// SelectNode requests a selection change.
type SelectNode struct {
	ID string
}

// Tick requests a telemetry update.
type Tick struct{}

type snapshotRequest struct {
	reply chan Snapshot
}

// trip is posted by the protection timer. It only applies to the session
// generation that scheduled it.
type trip struct {
	id         string
	generation uint64
}

type envelope struct {
	payload interface{}
	done    chan struct{}
}

// Process is the engine's event loop. It returns after Stop.
func (e *Engine) Process() {
	defer close(e.done)
	log.Println("[Engine] Process Started")

	ticker := time.NewTicker(e.config.TelemetryPeriod())
	defer ticker.Stop()

	for {
		select {
		case env := <-e.inbox:
			e.handle(env.payload)
			if env.done != nil {
				close(env.done)
			}
		case <-ticker.C:
			e.handle(Tick{})
		case <-e.stop:
			e.publisher.Close()
			log.Println("[Engine] Process Stopped")
			return
		}
	}
}

func (e *Engine) handle(payload interface{}) {
	switch p := payload.(type) {
	case Operate:
		e.operate(p.ID, p.Command)
	case InjectFault:
		e.injectFault()
	case LoadScenario:
		if !e.loadScenario(p.ID) {
			return
		}
	case Reset:
		e.reset()
	case SelectNode:
		if p.ID != "" && e.nodes.Index(p.ID) < 0 {
			return
		}
		e.selected = p.ID
	case Tick:
		e.load = e.config.Telemetry.Apply(e.nodes, e.load, e.rand)
	case trip:
		if !e.trip(p) {
			return
		}
	case snapshotRequest:
		p.reply <- e.snapshot()
		return
	default:
		log.Printf("[Engine] unexpected message %T\n", payload)
		return
	}

	e.updateGauges()
	e.publisher.Publish(msg.Status, e.snapshot())
}

func (e *Engine) snapshot() Snapshot {
	return Snapshot{
		Nodes:          e.nodes.Clone(),
		Logs:           e.book.Entries(),
		SelectedNodeID: e.selected,
		SystemHealth:   e.health,
		ActiveLoadMW:   e.load,
		ScenarioID:     e.scenarioID,
	}
}

func (e *Engine) updateGauges() {
	energized := 0
	for _, n := range e.nodes {
		if n.Energized {
			energized++
		}
	}
	e.recorder.SetSessionGauges(e.health, e.load, energized)
}

// addLog appends an entry and publishes it.
func (e *Engine) addLog(sev eventlog.Severity, message string) {
	entry := e.book.Append(sev, message)
	e.recorder.ObserveLog(sev)
	e.publisher.Publish(msg.Log, entry)
}

func (e *Engine) penalize(points int) {
	e.health -= points
	if e.health < 0 {
		e.health = 0
	}
}

// propagate recomputes energization. Nodes coming live read their rating
// until the next telemetry tick.
func (e *Engine) propagate() {
	res := propagation.Run(e.nodes, e.config.MaxPropagationPasses)
	for i := range res.Nodes {
		if res.Nodes[i].Energized && res.Nodes[i].VoltageKV == 0 {
			res.Nodes[i].VoltageKV = res.Nodes[i].RatedKV
		}
	}
	e.nodes = res.Nodes
}

func (e *Engine) operate(id string, command Command) {
	i := e.nodes.Index(id)
	if i < 0 {
		return
	}
	node := e.nodes[i]

	if node.State == topology.Tripped {
		e.addLog(eventlog.Warning, fmt.Sprintf("%s is TRIPPED. Reset the system to restore it.", node.Name))
		return
	}

	if err := interlock.Validate(node, e.nodes); err != nil {
		e.recorder.IncInterlockViolation()
		e.addLog(eventlog.Error, err.Error())
		return
	}

	if node.Kind == topology.Isolator && command == OpenCmd && node.Energized && e.closedBreakerAdjacent(id) {
		e.recorder.IncSafetyViolation()
		e.penalize(safetyPenalty)
		e.addLog(eventlog.Error, "SAFETY VIOLATION: Attempted to open Isolator on load! Open Circuit Breaker first.")
		return
	}

	next := stateOf(node.State).transition(switchIn{command: command})
	closesOntoFault := command == CloseCmd && node.Kind == topology.Breaker && e.lineFaulted()
	e.nodes[i].State = next.action()
	e.propagate()

	if closesOntoFault {
		e.addLog(eventlog.Error, fmt.Sprintf(protectionTripFmt, node.Name))
		generation := e.generation
		e.scheduler.AfterFunc(e.config.TripDelay(), func() {
			e.post(trip{id: id, generation: generation})
		})
		return
	}

	e.addLog(eventlog.Success, fmt.Sprintf("%s command sent to %s", command, node.Name))
}

// closedBreakerAdjacent reports whether any closed breaker lists id or is
// listed by id.
func (e *Engine) closedBreakerAdjacent(id string) bool {
	for _, n := range e.nodes {
		if n.Kind == topology.Breaker && n.State == topology.Closed && e.nodes.Adjacent(n.ID, id) {
			return true
		}
	}
	return false
}

func (e *Engine) lineFaulted() bool {
	for _, n := range e.nodes {
		if n.Kind == topology.Line && n.Faulted {
			return true
		}
	}
	return false
}

// trip applies a protection trip. It reports false when the trip is stale.
func (e *Engine) trip(t trip) bool {
	if t.generation != e.generation {
		return false
	}
	i := e.nodes.Index(t.id)
	if i < 0 || e.nodes[i].State != topology.Closed {
		return false
	}

	e.nodes[i].State = stateOf(e.nodes[i].State).transition(switchIn{trip: true}).action()
	e.propagate()
	e.recorder.IncTrip()
	e.addLog(eventlog.Warning, fmt.Sprintf("Breaker %s TRIPPED on Overcurrent/Fault protection.", t.id))
	return true
}

func (e *Engine) injectFault() {
	if i := e.nodes.Index(e.config.FaultLineID); i >= 0 {
		e.nodes[i].Faulted = true
	}

	cb, ok := e.nodes.Find(e.config.ProtectionBreakerID)
	if ok && cb.State == topology.Closed {
		e.operate(cb.ID, OpenCmd)
		e.addLog(eventlog.Error, "FAULT RECORDER: INSTANTANEOUS OVERCURRENT TRIP")
		e.penalize(faultRecordPenalty)
		return
	}
	e.addLog(eventlog.Warning, "External Fault detected on Line 1. Breaker was already open.")
}

// restore replaces the session with a fresh template copy. Pending trips from
// the previous generation are dropped when they arrive.
func (e *Engine) restore(faults []string) {
	nodes := e.template.Clone()
	for _, id := range faults {
		if i := nodes.Index(id); i >= 0 {
			nodes[i].Faulted = true
		}
	}
	e.nodes = nodes
	e.book.Clear()
	e.propagate()
	e.health = fullHealth
	e.generation++
}

func (e *Engine) loadScenario(id string) bool {
	s, err := e.library.Lookup(id)
	if err != nil {
		log.Printf("[Engine] %v\n", err)
		return false
	}

	e.restore(s.InitialFaults)
	e.scenarioID = s.ID
	e.addLog(eventlog.Info, fmt.Sprintf("Scenario \"%s\" loaded. Begin operation: %s", s.Title, s.Description))
	if len(s.InitialFaults) > 0 {
		e.addLog(eventlog.Warning, "ALARM: Zone protection indicates faults in system.")
	}
	return true
}

func (e *Engine) reset() {
	e.restore(nil)
	e.scenarioID = ""
	e.addLog(eventlog.Info, "System Reset. Standard operating conditions restored.")
}
