package natshandler

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/ohowland/baysim/internal/pkg/msg"

	nats "github.com/nats-io/nats.go"
)

// Config names the server and the subject prefix. Snapshots go to
// <Subject>.status and log entries to <Subject>.log.
type Config struct {
	Server  string `json:"Server"`
	Subject string `json:"Subject"`
}

// ReadConfig loads a nats config file.
func ReadConfig(configPath string) (Config, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("nats config %s: %w", configPath, err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.Server == "" {
		c.Server = nats.DefaultURL
	}
	if c.Subject == "" {
		c.Subject = "baysim"
	}
	return c
}

// Conn is the part of a nats connection the handler publishes through.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Handler forwards engine messages to a nats server.
type Handler struct {
	inbox  chan msg.Msg
	pid    uuid.UUID
	config Config
	system msg.Publisher
	stop   chan struct{}
	done   chan struct{}
}

func (h *Handler) PID() uuid.UUID {
	return h.pid
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

// Stop ends Process and releases the subscriptions taken in New.
func (h *Handler) Stop() {
	close(h.stop)
	h.system.Unsubscribe(h.pid)
}

// Process connects to the configured server and forwards until stopped.
func (h *Handler) Process() {
	nc, err := nats.Connect(h.config.Server, nats.Name("baysim"))
	if err != nil {
		log.Printf("[NATS client] unable to connect to %s: %v\n", h.config.Server, err)
		close(h.done)
		return
	}
	defer nc.Close()
	h.Run(nc)
}

// Run forwards messages through conn until stopped.
func (h *Handler) Run(conn Conn) {
	defer close(h.done)
	log.Println("[NATS client] Process Started")
loop:
	for {
		select {
		case m := <-h.inbox:
			subject := h.config.Subject + "." + m.Topic().String()
			data, err := json.Marshal(m.Payload())
			if err != nil {
				log.Printf("[NATS client] malformed payload: %v\n", err)
				continue
			}
			if err = conn.Publish(subject, data); err != nil {
				log.Printf("[NATS client] unable to publish to nats server: %v\n", err)
			}

		case <-h.stop:
			break loop
		}
	}
	log.Println("[NATS client] Process Shutdown")
}
