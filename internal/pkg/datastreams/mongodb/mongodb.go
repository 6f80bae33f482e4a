package mongodb

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/baysim/internal/pkg/engine"
	"github.com/ohowland/baysim/internal/pkg/eventlog"
	"github.com/ohowland/baysim/internal/pkg/msg"
	"github.com/ohowland/baysim/internal/pkg/topology"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	nodeCollection = "nodeStatus"
	logCollection  = "eventLog"
)

// Config locates the historian database.
type Config struct {
	URI       string `json:"URI"`
	Database  string `json:"Database"`
	Port      string `json:"Port"`
	TimeoutMs int    `json:"TimeoutMs"`
}

// ReadConfig loads a mongodb config file.
func ReadConfig(configPath string) (Config, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("mongodb config %s: %w", configPath, err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.URI == "" {
		c.URI = "mongodb://localhost"
	}
	if c.Port == "" {
		c.Port = "27017"
	}
	if c.Database == "" {
		c.Database = "baysim"
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = 1000
	}
	return c
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Store is where the historian writes. Node documents are upserted by node id;
// log documents are appended.
type Store interface {
	UpsertNode(ctx context.Context, id string, update bson.D) error
	InsertLog(ctx context.Context, doc bson.M) error
}

// Handler records node status and log entries.
type Handler struct {
	inbox  chan msg.Msg
	pid    uuid.UUID
	config Config
	system msg.Publisher
	stop   chan struct{}
	done   chan struct{}
}

func redirectMsg(chIn <-chan msg.Msg, chOut chan<- msg.Msg, stop <-chan struct{}) {
	for m := range chIn {
		select {
		case chOut <- m:
		case <-stop:
			return
		}
	}
}

// New subscribes to Status and Log on system.
func New(cfg Config, system msg.Publisher) (*Handler, error) {
	pid := uuid.New()
	inbox := make(chan msg.Msg, 50)

	stop := make(chan struct{})

	chStatus, err := system.Subscribe(pid, msg.Status)
	if err != nil {
		return nil, err
	}
	go redirectMsg(chStatus, inbox, stop)

	chLog, err := system.Subscribe(pid, msg.Log)
	if err != nil {
		system.Unsubscribe(pid)
		return nil, err
	}
	go redirectMsg(chLog, inbox, stop)

	return &Handler{
		inbox:  inbox,
		pid:    pid,
		config: cfg.withDefaults(),
		system: system,
		stop:   stop,
		done:   make(chan struct{}),
	}, nil
}

func (h *Handler) PID() uuid.UUID {
	return h.pid
}

// Stop ends Process and releases the subscriptions taken in New.
func (h *Handler) Stop() {
	close(h.stop)
	h.system.Unsubscribe(h.pid)
}

func nodeToBSON(n topology.Node, scenarioID string) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.M{
			"nodeId":     n.ID,
			"name":       n.Name,
			"kind":       n.Kind.String(),
			"state":      n.State.String(),
			"energized":  n.Energized,
			"faulted":    n.Faulted,
			"voltageKV":  n.VoltageKV,
			"scenarioId": scenarioID,
		}},
	}
}

func logToBSON(e eventlog.Entry) bson.M {
	return bson.M{
		"entryId":   e.ID,
		"timestamp": e.Timestamp,
		"severity":  e.Severity.String(),
		"message":   e.Message,
	}
}

// Process connects to the configured server and records until stopped.
func (h *Handler) Process() {
	client, err := mongo.NewClient(options.Client().ApplyURI(h.config.URI + ":" + h.config.Port))
	if err != nil {
		log.Println("[Mongo]", err)
		close(h.done)
		return
	}

	ctx := context.Background()
	if err = client.Connect(ctx); err != nil {
		log.Println("[Mongo]", err)
		close(h.done)
		return
	}
	defer client.Disconnect(ctx)

	h.Run(collections{db: client.Database(h.config.Database)})
}

// Run records messages into s until stopped.
func (h *Handler) Run(s Store) {
	defer close(h.done)
	log.Println("[Mongo] Process Started")
loop:
	for {
		select {
		case m := <-h.inbox:
			if err := h.record(s, m); err != nil {
				log.Println("[Mongo]", err)
			}
		case <-h.stop:
			break loop
		}
	}
	log.Println("[Mongo] Process Shutdown")
}

func (h *Handler) record(s Store, m msg.Msg) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.timeout())
	defer cancel()

	switch payload := m.Payload().(type) {
	case engine.Snapshot:
		for _, n := range payload.Nodes {
			if err := s.UpsertNode(ctx, n.ID, nodeToBSON(n, payload.ScenarioID)); err != nil {
				return err
			}
		}
	case eventlog.Entry:
		return s.InsertLog(ctx, logToBSON(payload))
	}
	return nil
}

type collections struct {
	db *mongo.Database
}

func (c collections) UpsertNode(ctx context.Context, id string, update bson.D) error {
	opts := options.Update().SetUpsert(true)
	_, err := c.db.Collection(nodeCollection).UpdateOne(ctx, bson.M{"nodeId": id}, update, opts)
	return err
}

func (c collections) InsertLog(ctx context.Context, doc bson.M) error {
	_, err := c.db.Collection(logCollection).InsertOne(ctx, doc)
	return err
}
