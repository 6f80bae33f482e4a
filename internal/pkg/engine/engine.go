/*
engine.go The grid state engine. One goroutine owns the session: every command,
protection trip and telemetry tick is a message on its inbox.
*/

package engine

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/baysim/internal/pkg/eventlog"
	"github.com/ohowland/baysim/internal/pkg/msg"
	"github.com/ohowland/baysim/internal/pkg/scenario"
	"github.com/ohowland/baysim/internal/pkg/telemetry"
	"github.com/ohowland/baysim/internal/pkg/topology"
)

// Scheduler runs f once after d. Implementations call f on their own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Snapshot is a read-only copy of the session.
type Snapshot struct {
	Nodes          topology.Nodes   `json:"Nodes"`
	Logs           []eventlog.Entry `json:"Logs"`
	SelectedNodeID string           `json:"SelectedNodeID"`
	SystemHealth   int              `json:"SystemHealth"`
	ActiveLoadMW   float64          `json:"ActiveLoadMW"`
	ScenarioID     string           `json:"ScenarioID"`
}

// Selected returns the selected node, if any.
func (s Snapshot) Selected() (topology.Node, bool) {
	if s.SelectedNodeID == "" {
		return topology.Node{}, false
	}
	return s.Nodes.Find(s.SelectedNodeID)
}

// Option customises Engine construction.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(c Config) Option {
	return func(e *Engine) { e.config = c.withDefaults() }
}

// WithRand sets the telemetry noise source.
func WithRand(r telemetry.Rand) Option {
	return func(e *Engine) { e.rand = r }
}

// WithClock sets the log timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDSource sets the log entry id source.
func WithIDSource(next func() string) Option {
	return func(e *Engine) { e.nextID = next }
}

// WithScheduler sets the timer used for delayed protection trips.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

// WithTemplate replaces the bay the session starts from and resets to.
func WithTemplate(nodes topology.Nodes) Option {
	return func(e *Engine) { e.template = nodes.Clone() }
}

// WithLibrary sets the scenario catalog.
func WithLibrary(l *scenario.Library) Option {
	return func(e *Engine) { e.library = l }
}

// WithMetricsRecorder attaches a recorder driven by session mutations.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// Engine is the single writer of a training session.
type Engine struct {
	pid       uuid.UUID
	config    Config
	template  topology.Nodes
	library   *scenario.Library
	publisher *msg.PubSub
	scheduler Scheduler
	rand      telemetry.Rand
	now       func() time.Time
	nextID    func() string
	recorder  MetricsRecorder

	inbox     chan envelope
	stop      chan struct{}
	done      chan struct{}
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once

	// owned by Process
	nodes      topology.Nodes
	book       *eventlog.Book
	selected   string
	health     int
	load       float64
	scenarioID string
	generation uint64
}

// New returns an Engine holding a freshly reset session. Call Start to run it.
func New(opts ...Option) *Engine {
	e := &Engine{
		pid:       uuid.New(),
		config:    DefaultConfig(),
		template:  topology.Substation(),
		library:   scenario.NewLibrary(scenario.Default()),
		scheduler: wallScheduler{},
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
		nextID:    uuid.NewString,
		recorder:  nopRecorder{},
		inbox:     make(chan envelope),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		health:    fullHealth,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.publisher = msg.NewPublisher(e.pid)
	e.book = eventlog.NewBook(e.nextID, e.now)
	e.nodes = e.template.Clone()
	e.propagate()
	e.updateGauges()
	return e
}

// PID is the engine's publisher id.
func (e *Engine) PID() uuid.UUID {
	return e.pid
}

// Config returns the active configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Start launches the Process loop. Any request made before Start starts
// the loop itself.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.started.Store(true)
		go e.Process()
	})
}

// Stop ends the Process loop and closes every subscriber channel. Pending
// timers give up.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	if e.started.Load() {
		<-e.done
	}
}

// Subscribe registers pid for topic on the engine's publisher.
func (e *Engine) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return e.publisher.Subscribe(pid, topic)
}

// Unsubscribe removes pid from every topic.
func (e *Engine) Unsubscribe(pid uuid.UUID) {
	e.publisher.Unsubscribe(pid)
}

// Catalog returns the scenarios that LoadScenario accepts.
func (e *Engine) Catalog() scenario.Catalog {
	return e.library.Current()
}

// Operate requests command on node id.
func (e *Engine) Operate(id string, command Command) {
	e.call(Operate{ID: id, Command: command})
}

// InjectFault faults the protected line.
func (e *Engine) InjectFault() {
	e.call(InjectFault{})
}

// LoadScenario replaces the session with scenario id. Unknown ids are ignored.
func (e *Engine) LoadScenario(id string) {
	e.call(LoadScenario{ID: id})
}

// Reset restores the template bay and clears the log.
func (e *Engine) Reset() {
	e.call(Reset{})
}

// SelectNode sets the selected node. An empty id clears the selection.
func (e *Engine) SelectNode(id string) {
	e.call(SelectNode{ID: id})
}

// Tick runs one telemetry update out of schedule.
func (e *Engine) Tick() {
	e.call(Tick{})
}

// Snapshot returns a copy of the session. After Stop it returns the zero Snapshot.
func (e *Engine) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !e.call(snapshotRequest{reply: reply}) {
		return Snapshot{}
	}
	return <-reply
}

// call enqueues payload and waits for the loop to finish handling it. It
// reports false if the engine stopped first.
func (e *Engine) call(payload interface{}) bool {
	e.Start()
	env := envelope{payload: payload, done: make(chan struct{})}
	select {
	case e.inbox <- env:
	case <-e.stop:
		return false
	}
	select {
	case <-env.done:
		return true
	case <-e.done:
		return false
	}
}

// post enqueues payload without waiting for it to be handled.
func (e *Engine) post(payload interface{}) {
	select {
	case e.inbox <- envelope{payload: payload}:
	case <-e.stop:
	}
}
