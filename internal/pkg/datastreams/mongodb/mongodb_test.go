package mongodb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/baysim/internal/pkg/engine"
	"github.com/ohowland/baysim/internal/pkg/eventlog"
	"github.com/ohowland/baysim/internal/pkg/msg"
	"github.com/ohowland/baysim/internal/pkg/propagation"
	"github.com/ohowland/baysim/internal/pkg/topology"
	"go.mongodb.org/mongo-driver/bson"
	"gotest.tools/v3/assert"
)

type fakeStore struct {
	mux   sync.Mutex
	nodes map[string]bson.D
	logs  []bson.M
	err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{nodes: make(map[string]bson.D)}
}

func (s *fakeStore) UpsertNode(_ context.Context, id string, update bson.D) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.err != nil {
		return s.err
	}
	s.nodes[id] = update
	return nil
}

func (s *fakeStore) InsertLog(_ context.Context, doc bson.M) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.err != nil {
		return s.err
	}
	s.logs = append(s.logs, doc)
	return nil
}

func (s *fakeStore) size() (int, int) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.nodes), len(s.logs)
}

func TestRecordsSnapshotAndLog(t *testing.T) {
	pub := msg.NewPublisher(uuid.New())
	h, err := New(Config{}, pub)
	assert.NilError(t, err)

	store := newFakeStore()
	go h.Run(store)

	nodes := propagation.Propagate(topology.Substation())
	pub.Publish(msg.Status, engine.Snapshot{Nodes: nodes, ScenarioID: "sc-1"})
	pub.Publish(msg.Log, eventlog.Entry{ID: "log-1", Message: "System Reset.", Severity: eventlog.Info})
	pub.Publish(msg.Advice, "ignored")

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, l := store.size()
		if n == len(nodes) && l == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("recorded %d nodes and %d logs", n, l)
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.Stop()
	<-h.done

	set := store.nodes[topology.FeederBreaker][0].Value.(bson.M)
	assert.Equal(t, set["state"], "CLOSED")
	assert.Equal(t, set["energized"], true)
	assert.Equal(t, set["scenarioId"], "sc-1")
	assert.Equal(t, store.logs[0]["severity"], "INFO")
	assert.Equal(t, store.logs[0]["entryId"], "log-1")
}

func TestRecordReturnsStoreError(t *testing.T) {
	h := &Handler{config: Config{}.withDefaults()}
	store := newFakeStore()
	store.err = errors.New("write failed")

	err := h.record(store, msg.New(uuid.New(), msg.Log, eventlog.Entry{}))
	assert.ErrorContains(t, err, "write failed")

	err = h.record(store, msg.New(uuid.New(), msg.Advice, "text"))
	assert.NilError(t, err)
}

func TestNodeToBSON(t *testing.T) {
	n := topology.Node{ID: "LINE-1", Name: "Feeder Line 1", Kind: topology.Line, State: topology.Closed, Faulted: true}
	doc := nodeToBSON(n, "")
	assert.Equal(t, doc[0].Key, "$set")
	set := doc[0].Value.(bson.M)
	assert.Equal(t, set["kind"], "LINE")
	assert.Equal(t, set["faulted"], true)
}

func TestReadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mongodb.json")
	assert.NilError(t, os.WriteFile(path, []byte(`{"URI": "mongodb://historian", "Database": "training"}`), 0644))

	cfg, err := ReadConfig(path)
	assert.NilError(t, err)
	assert.Equal(t, cfg.URI, "mongodb://historian")
	assert.Equal(t, cfg.Port, "27017")
	assert.Equal(t, cfg.Database, "training")
	assert.Equal(t, cfg.timeout(), time.Second)
}
