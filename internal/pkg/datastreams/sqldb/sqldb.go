package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/baysim/internal/pkg/engine"
	"github.com/ohowland/baysim/internal/pkg/eventlog"
	"github.com/ohowland/baysim/internal/pkg/msg"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Config selects the driver and the database. DSN overrides the
// Server/Port/Username/Password/Database fields when set.
type Config struct {
	Driver    string `json:"Driver"` // mysql, postgres, sqlite3
	DSN       string `json:"DSN"`
	Server    string `json:"Server"`
	Port      int    `json:"Port"`
	Username  string `json:"Username"`
	Password  string `json:"Password"`
	Database  string `json:"Database"`
	TimeoutMs int    `json:"TimeoutMs"`
}

// ReadConfig loads a journal config file.
func ReadConfig(configPath string) (Config, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("sqldb config %s: %w", configPath, err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	c.Driver = strings.ToLower(c.Driver)
	if c.Driver == "" {
		c.Driver = "sqlite3"
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = 1000
	}
	return c
}

// DataSource builds the driver specific connection string.
func (c Config) DataSource() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%v:%v@tcp(%v:%v)/%v?parseTime=true", c.Username, c.Password, c.Server, c.Port, c.Database), nil
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Server, c.Port, c.Username, c.Password, c.Database), nil
	case "sqlite3":
		if c.Database == "" {
			return "baysim.db", nil
		}
		return c.Database, nil
	}
	return "", fmt.Errorf("unsupported sql driver: %s", c.Driver)
}

// Handler journals log entries and session summaries.
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
	cfg = cfg.withDefaults()
	if _, err := cfg.DataSource(); err != nil {
		return nil, err
	}

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
		config: cfg,
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

// DB opens the configured database.
func (h *Handler) DB() (*sql.DB, error) {
	dsn, err := h.config.DataSource()
	if err != nil {
		return nil, err
	}
	return sql.Open(h.config.Driver, dsn)
}

// Process opens the database and journals until stopped.
func (h *Handler) Process() {
	db, err := h.DB()
	if err != nil {
		log.Println("[SQL Journal]", err)
		close(h.done)
		return
	}
	defer db.Close()

	if err = initDBTables(db); err != nil {
		log.Println("[SQL Journal]", err)
		close(h.done)
		return
	}
	h.Run(db)
}

// Run journals messages into db until stopped. The tables must exist.
func (h *Handler) Run(db *sql.DB) {
	defer close(h.done)
	log.Println("[SQL Journal] Process Started")
	j := journal{db: db, driver: h.config.Driver}
loop:
	for {
		select {
		case m := <-h.inbox:
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(h.config.TimeoutMs)*time.Millisecond)
			if err := j.record(ctx, m); err != nil {
				log.Printf("[SQL Journal] error %s update db\n", err)
			}
			cancel()
		case <-h.stop:
			break loop
		}
	}
	log.Println("[SQL Journal] Process Shutdown")
}

func initDBTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS event_log(
			entry_id VARCHAR(64) PRIMARY KEY,
			logged_at TIMESTAMP,
			severity VARCHAR(16),
			message TEXT)`,
		`CREATE TABLE IF NOT EXISTS session_status(
			recorded_at TIMESTAMP,
			scenario_id VARCHAR(64),
			system_health INTEGER,
			active_load_mw DOUBLE PRECISION,
			energized_nodes INTEGER)`,
	}
	for _, s := range statements {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

type journal struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// bind rewrites ? placeholders for drivers that number them.
func (j journal) bind(statement string) string {
	if j.driver != "postgres" {
		return statement
	}
	var b strings.Builder
	n := 0
	for _, r := range statement {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (j journal) record(ctx context.Context, m msg.Msg) error {
	switch payload := m.Payload().(type) {
	case eventlog.Entry:
		_, err := j.db.ExecContext(ctx,
			j.bind(`INSERT INTO event_log (entry_id, logged_at, severity, message) VALUES (?, ?, ?, ?)`),
			payload.ID, payload.Timestamp.UTC(), payload.Severity.String(), payload.Message)
		return err
	case engine.Snapshot:
		energized := 0
		for _, n := range payload.Nodes {
			if n.Energized {
				energized++
			}
		}
		now := time.Now
		if j.now != nil {
			now = j.now
		}
		_, err := j.db.ExecContext(ctx,
			j.bind(`INSERT INTO session_status (recorded_at, scenario_id, system_health, active_load_mw, energized_nodes) VALUES (?, ?, ?, ?, ?)`),
			now().UTC(), payload.ScenarioID, payload.SystemHealth, payload.ActiveLoadMW, energized)
		return err
	}
	return nil
}
