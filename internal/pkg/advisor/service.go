package advisor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/baysim/internal/pkg/engine"
	"github.com/ohowland/baysim/internal/pkg/eventlog"
	"github.com/ohowland/baysim/internal/pkg/msg"
)

// Source is the engine surface the service reads from.
type Source interface {
	msg.Publisher
	Snapshot() engine.Snapshot
}

// Service asks an Advisor about every new log entry and keeps the newest
// answer. Requests run concurrently; an answer to an older entry never
// replaces the answer to a newer one.
type Service struct {
	pid       uuid.UUID
	advisor   Advisor
	source    Source
	publisher *msg.PubSub
	timeout   time.Duration
	entries   <-chan msg.Msg

	mux     *sync.Mutex
	latest  string
	seq     uint64
	applied uint64
	pending sync.WaitGroup
	done    chan struct{}
}

// NewService subscribes to the source's log stream. A nil advisor means Offline.
func NewService(a Advisor, source Source, timeout time.Duration) (*Service, error) {
	if a == nil {
		a = Offline{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	pid := uuid.New()
	entries, err := source.Subscribe(pid, msg.Log)
	if err != nil {
		return nil, err
	}

	return &Service{
		pid:       pid,
		advisor:   a,
		source:    source,
		publisher: msg.NewPublisher(pid),
		timeout:   timeout,
		entries:   entries,
		mux:       &sync.Mutex{},
		done:      make(chan struct{}),
	}, nil
}

// PID is the service's subscriber and publisher id.
func (s *Service) PID() uuid.UUID {
	return s.pid
}

// Subscribe registers pid for the Advice topic.
func (s *Service) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return s.publisher.Subscribe(pid, topic)
}

// Unsubscribe removes pid.
func (s *Service) Unsubscribe(pid uuid.UUID) {
	s.publisher.Unsubscribe(pid)
}

// Latest returns the newest advice, or "" before the first answer.
func (s *Service) Latest() string {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.latest
}

// Run consumes log entries until the source closes the stream or Stop is called.
func (s *Service) Run() {
	log.Println("[Advisor] Process Started")
	defer log.Println("[Advisor] Process Stopped")
	for {
		select {
		case m, ok := <-s.entries:
			if !ok {
				s.pending.Wait()
				return
			}
			entry, ok := m.Payload().(eventlog.Entry)
			if !ok {
				continue
			}
			s.request(entry)
		case <-s.done:
			s.pending.Wait()
			return
		}
	}
}

// Stop ends Run and drops the log subscription.
func (s *Service) Stop() {
	close(s.done)
	s.source.Unsubscribe(s.pid)
}

func (s *Service) request(entry eventlog.Entry) {
	snap := s.source.Snapshot()
	req := Request{Nodes: snap.Nodes, Logs: snap.Logs, LastAction: entry.Message}

	s.mux.Lock()
	s.seq++
	seq := s.seq
	s.mux.Unlock()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		text, err := s.advisor.Advise(ctx, req)
		if err != nil {
			log.Printf("[Advisor] %v\n", err)
			text = UnavailableText
		}
		if text == "" {
			text = EmptyText
		}
		s.apply(seq, text)
	}()
}

func (s *Service) apply(seq uint64, text string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if seq <= s.applied {
		return
	}
	s.applied = seq
	s.latest = text
	s.publisher.Publish(msg.Advice, text)
}
