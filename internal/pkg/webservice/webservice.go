package webservice

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ohowland/baysim/internal/pkg/engine"
	"github.com/ohowland/baysim/internal/pkg/msg"
	"github.com/ohowland/baysim/internal/pkg/scenario"
)

// Config is the listen address of the web api. AllowedOrigins lists the
// extra origins, besides the serving host, that may open the websocket.
type Config struct {
	URL            string   `json:"URL"`
	Port           string   `json:"Port"`
	AllowedOrigins []string `json:"AllowedOrigins"`
}

// Addr joins URL and Port into a listen address.
func (c Config) Addr() string {
	return c.URL + ":" + c.Port
}

// ReadConfig loads a web config file. A missing Port defaults to 8080.
func ReadConfig(configPath string) (Config, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("web config %s: %w", configPath, err)
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	return cfg, nil
}

// Simulator is the engine surface served over http.
type Simulator interface {
	msg.Publisher
	Snapshot() engine.Snapshot
	Catalog() scenario.Catalog
	Operate(id string, command engine.Command)
	InjectFault()
	LoadScenario(id string)
	Reset()
	SelectNode(id string)
}

// AdviceSource reports the newest tutor advice.
type AdviceSource interface {
	Latest() string
}

// App serves the session api.
type App struct {
	Sim      Simulator
	Advice   AdviceSource
	Metrics  http.Handler
	Config   Config
	upgrader websocket.Upgrader
}

// NewApp returns an App. advice and metrics may be nil.
func NewApp(sim Simulator, advice AdviceSource, metrics http.Handler, cfg Config) *App {
	app := &App{
		Sim:     sim,
		Advice:  advice,
		Metrics: metrics,
		Config:  cfg,
	}
	app.upgrader = websocket.Upgrader{CheckOrigin: app.checkOrigin}
	return app
}

// checkOrigin accepts requests without an Origin header, from the serving
// host, or from a configured origin.
func (app *App) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range app.Config.AllowedOrigins {
		if strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// Router builds the route table. Middlewares wrap every route in order.
func (app *App) Router(middlewares ...mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	for _, m := range middlewares {
		r.Use(m)
	}

	r.HandleFunc("/", app.BaseHandler)
	r.HandleFunc("/snapshot", app.SnapshotHandler).Methods("GET")
	r.HandleFunc("/scenarios", app.ScenariosHandler).Methods("GET")
	r.HandleFunc("/scenarios/{id}/load", app.LoadScenarioHandler).Methods("POST")
	r.HandleFunc("/nodes/{id}/select", app.SelectHandler).Methods("POST")
	r.HandleFunc("/nodes/{id}/operate", app.OperateHandler).Methods("POST")
	r.HandleFunc("/fault", app.FaultHandler).Methods("POST")
	r.HandleFunc("/reset", app.ResetHandler).Methods("POST")
	r.HandleFunc("/advice", app.AdviceHandler).Methods("GET")
	r.HandleFunc("/ws", app.StreamHandler).Methods("GET")
	if app.Metrics != nil {
		r.Handle("/metrics", app.Metrics).Methods("GET")
	}
	return r
}

// RouteName is the matched route template, for span names.
func RouteName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

func (app *App) BaseHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
}

func (app *App) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Sim.Snapshot())
}

func (app *App) ScenariosHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Sim.Catalog())
}

func (app *App) LoadScenarioHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := app.Sim.Catalog().Lookup(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	app.Sim.LoadScenario(id)
	writeJSON(w, http.StatusOK, app.Sim.Snapshot())
}

func (app *App) SelectHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := app.Sim.Snapshot().Nodes.Find(id); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown node %s", id))
		return
	}
	app.Sim.SelectNode(id)
	writeJSON(w, http.StatusOK, app.Sim.Snapshot())
}

// OperateRequest is the body of POST /nodes/{id}/operate. Command is required.
type OperateRequest struct {
	Command *engine.Command `json:"Command"`
}

func (app *App) OperateHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req := OperateRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Println("[Webservice] malformed JSON:", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Command == nil {
		writeError(w, http.StatusBadRequest, errors.New("missing Command"))
		return
	}
	if _, ok := app.Sim.Snapshot().Nodes.Find(id); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown node %s", id))
		return
	}
	app.Sim.Operate(id, *req.Command)
	writeJSON(w, http.StatusOK, app.Sim.Snapshot())
}

func (app *App) FaultHandler(w http.ResponseWriter, r *http.Request) {
	app.Sim.InjectFault()
	writeJSON(w, http.StatusOK, app.Sim.Snapshot())
}

func (app *App) ResetHandler(w http.ResponseWriter, r *http.Request) {
	app.Sim.Reset()
	writeJSON(w, http.StatusOK, app.Sim.Snapshot())
}

// Advice is the body of GET /advice.
type Advice struct {
	Text string `json:"Text"`
}

func (app *App) AdviceHandler(w http.ResponseWriter, r *http.Request) {
	advice := Advice{}
	if app.Advice != nil {
		advice.Text = app.Advice.Latest()
	}
	writeJSON(w, http.StatusOK, advice)
}

// Frame is one websocket message.
type Frame struct {
	Topic   string      `json:"Topic"`
	Payload interface{} `json:"Payload"`
}

// StreamHandler upgrades to a websocket and streams the current snapshot,
// then every Status and Log message, until the client goes away.
func (app *App) StreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := app.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[Webservice] websocket upgrade failed:", err)
		return
	}
	defer conn.Close()

	pid := uuid.New()
	status, err := app.Sim.Subscribe(pid, msg.Status)
	if err != nil {
		log.Println("[Webservice]", err)
		return
	}
	entries, err := app.Sim.Subscribe(pid, msg.Log)
	if err != nil {
		log.Println("[Webservice]", err)
		app.Sim.Unsubscribe(pid)
		return
	}
	defer app.Sim.Unsubscribe(pid)

	if err := conn.WriteJSON(Frame{Topic: msg.Status.String(), Payload: app.Sim.Snapshot()}); err != nil {
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Println("[Webservice] websocket:", err)
				}
				return
			}
		}
	}()

	for {
		var m msg.Msg
		var ok bool
		select {
		case m, ok = <-status:
		case m, ok = <-entries:
		case <-gone:
			return
		}
		if !ok {
			return
		}
		if err := conn.WriteJSON(Frame{Topic: m.Topic().String(), Payload: m.Payload()}); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Println("[Webservice] malformed JSON:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		log.Println("[Webservice]", err)
	}
}

type errorBody struct {
	Error string `json:"Error"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	if errors.Is(err, scenario.ErrUnknownScenario) {
		code = http.StatusNotFound
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}
