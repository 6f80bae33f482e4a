package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/ohowland/baysim/internal/pkg/msg"
)

// Config names the broker and the topic prefix. Snapshots go to
// <Topic>/status as retained messages and log entries to <Topic>/log.
type Config struct {
	Broker    string `json:"Broker"`
	ClientID  string `json:"ClientID"`
	Topic     string `json:"Topic"`
	QoS       byte   `json:"QoS"`
	TimeoutMs int    `json:"TimeoutMs"`
}

// ReadConfig loads an mqtt config file.
func ReadConfig(configPath string) (Config, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("mqtt config %s: %w", configPath, err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.Broker == "" {
		c.Broker = "tcp://127.0.0.1:1883"
	}
	if c.ClientID == "" {
		c.ClientID = "baysim"
	}
	if c.Topic == "" {
		c.Topic = "baysim"
	}
	if c.QoS > 2 {
		c.QoS = 2
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = 1000
	}
	return c
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Conn publishes a payload to a broker topic.
type Conn interface {
	Publish(topic string, retained bool, data []byte) error
}

type client struct {
	paho.Client
	qos     byte
	timeout time.Duration
}

func (c client) Publish(topic string, retained bool, data []byte) error {
	token := c.Client.Publish(topic, c.qos, retained, data)
	if !token.WaitTimeout(c.timeout) {
		return errors.New("publish timed out")
	}
	return token.Error()
}

// Handler forwards engine messages to an mqtt broker.
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

// Process connects to the configured broker and forwards until stopped.
func (h *Handler) Process() {
	opts := paho.NewClientOptions().
		AddBroker(h.config.Broker).
		SetClientID(h.config.ClientID).
		SetConnectTimeout(h.config.timeout()).
		SetAutoReconnect(true)

	c := paho.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(h.config.timeout()) || token.Error() != nil {
		log.Printf("[MQTT client] unable to connect to %s: %v\n", h.config.Broker, token.Error())
		close(h.done)
		return
	}
	defer c.Disconnect(250)
	h.Run(client{Client: c, qos: h.config.QoS, timeout: h.config.timeout()})
}

// Run forwards messages through conn until stopped.
func (h *Handler) Run(conn Conn) {
	defer close(h.done)
	log.Println("[MQTT client] Process Started")
loop:
	for {
		select {
		case m := <-h.inbox:
			data, err := json.Marshal(m.Payload())
			if err != nil {
				log.Printf("[MQTT client] malformed payload: %v\n", err)
				continue
			}
			topic := h.config.Topic + "/" + m.Topic().String()
			if err = conn.Publish(topic, m.Topic() == msg.Status, data); err != nil {
				log.Printf("[MQTT client] unable to publish to %s: %v\n", topic, err)
			}

		case <-h.stop:
			break loop
		}
	}
	log.Println("[MQTT client] Process Shutdown")
}
