package msg

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Topic identifies a class of messages on a publisher.
type Topic int

// Topics published by the simulator.
const (
	// Status carries a full session snapshot.
	Status Topic = iota
	// Log carries a single operator log entry.
	Log
	// Advice carries free-text advisory output.
	Advice
)

func (t Topic) String() string {
	switch t {
	case Status:
		return "status"
	case Log:
		return "log"
	case Advice:
		return "advice"
	}
	return "unknown"
}

const queueSize = 50

// ErrSubscribed is returned when a pid subscribes twice to the same topic.
var ErrSubscribed = errors.New("pid already subscribed to topic")

// Publisher is an interface for objects that allow subscribtion to their events
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is the envelope passed between processes.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the message topic
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}

// PubSub fans messages out to subscribers. Publishing never blocks: a
// subscriber with a full queue misses the message.
type PubSub struct {
	mux         *sync.Mutex
	pid         uuid.UUID
	subscribers map[Topic]map[uuid.UUID]chan Msg
}

// NewPublisher returns a PubSub that stamps messages with pid.
func NewPublisher(pid uuid.UUID) *PubSub {
	return &PubSub{
		mux:         &sync.Mutex{},
		pid:         pid,
		subscribers: make(map[Topic]map[uuid.UUID]chan Msg),
	}
}

// Subscribe returns a channel on which the topic is broadcast.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()

	subs, ok := p.subscribers[topic]
	if !ok {
		subs = make(map[uuid.UUID]chan Msg)
		p.subscribers[topic] = subs
	}
	if _, exists := subs[pid]; exists {
		return nil, ErrSubscribed
	}

	ch := make(chan Msg, queueSize)
	subs[pid] = ch
	return ch, nil
}

// Unsubscribe removes pid from every topic and closes its channels.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()

	for _, subs := range p.subscribers {
		if ch, ok := subs[pid]; ok {
			close(ch)
			delete(subs, pid)
		}
	}
}

// Publish wraps payload in a Msg from the publisher's pid and forwards it.
func (p *PubSub) Publish(topic Topic, payload interface{}) {
	p.Forward(New(p.pid, topic, payload))
}

// Forward delivers an existing message to the subscribers of its topic.
func (p *PubSub) Forward(m Msg) {
	p.mux.Lock()
	defer p.mux.Unlock()

	for _, ch := range p.subscribers[m.Topic()] {
		select {
		case ch <- m:
		default:
		}
	}
}

// Close unsubscribes everyone.
func (p *PubSub) Close() {
	p.mux.Lock()
	defer p.mux.Unlock()

	for topic, subs := range p.subscribers {
		for pid, ch := range subs {
			close(ch)
			delete(subs, pid)
		}
		delete(p.subscribers, topic)
	}
}
