package webservice

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ohowland/baysim/internal/pkg/engine"
	"github.com/ohowland/baysim/internal/pkg/topology"
	"gotest.tools/v3/assert"
)

type staticAdvice string

func (a staticAdvice) Latest() string { return string(a) }

func newTestApp(t *testing.T) (*engine.Engine, *App) {
	t.Helper()
	e := engine.New(engine.WithConfig(engine.Config{TelemetryPeriodMs: int(time.Hour / time.Millisecond)}))
	e.Start()
	t.Cleanup(e.Stop)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("baysim_system_health 100\n"))
	})
	return e, NewApp(e, staticAdvice("Open the breaker first."), metrics, Config{})
}

func serve(t *testing.T, app *App, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(method, "http://example.com"+target, bytes.NewBuffer(body))
	app.Router().ServeHTTP(w, r)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) engine.Snapshot {
	t.Helper()
	snap := engine.Snapshot{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func TestSnapshotGet(t *testing.T) {
	_, app := newTestApp(t)

	w := serve(t, app, "GET", "/snapshot", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=UTF-8", w.Header().Get("Content-Type"))

	snap := decodeSnapshot(t, w)
	assert.Equal(t, len(snap.Nodes), 8)
	assert.Equal(t, snap.SystemHealth, 100)
	cb, ok := snap.Nodes.Find(topology.FeederBreaker)
	assert.Assert(t, ok)
	assert.Equal(t, cb.State, topology.Closed)
	assert.Assert(t, cb.Energized)
}

func TestScenariosGet(t *testing.T) {
	_, app := newTestApp(t)

	w := serve(t, app, "GET", "/scenarios", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Assert(t, strings.Contains(w.Body.String(), `"ID":"sc-2"`))
}

func TestOperate(t *testing.T) {
	_, app := newTestApp(t)

	w := serve(t, app, "POST", "/nodes/CB-1/operate", []byte(`{"Command":"OPEN"}`))
	assert.Equal(t, http.StatusOK, w.Code)

	snap := decodeSnapshot(t, w)
	cb, _ := snap.Nodes.Find(topology.FeederBreaker)
	assert.Equal(t, cb.State, topology.Open)
	line, _ := snap.Nodes.Find(topology.FeederLine)
	assert.Assert(t, !line.Energized)
}

func TestOperateRejectsBadRequests(t *testing.T) {
	_, app := newTestApp(t)

	w := serve(t, app, "POST", "/nodes/CB-1/operate", []byte(`{"Command":"TOGGLE"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, app, "POST", "/nodes/CB-9/operate", []byte(`{"Command":"OPEN"}`))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, app, "GET", "/nodes/CB-1/operate", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestOperateRequiresCommand(t *testing.T) {
	e, app := newTestApp(t)

	for _, body := range []string{`{}`, `{"Command":null}`, `{"Cmd":"CLOSE"}`} {
		w := serve(t, app, "POST", "/nodes/CB-1/operate", []byte(body))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	s := e.Snapshot()
	cb, _ := s.Nodes.Find(topology.FeederBreaker)
	assert.Equal(t, cb.State, topology.Closed)
	assert.Equal(t, len(s.Logs), 0)
}

func TestSelect(t *testing.T) {
	_, app := newTestApp(t)

	w := serve(t, app, "POST", "/nodes/ES-1/select", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, decodeSnapshot(t, w).SelectedNodeID, topology.LineEarthSwitch)

	w = serve(t, app, "POST", "/nodes/nowhere/select", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFaultAndReset(t *testing.T) {
	_, app := newTestApp(t)

	snap := decodeSnapshot(t, serve(t, app, "POST", "/fault", nil))
	line, _ := snap.Nodes.Find(topology.FeederLine)
	assert.Assert(t, line.Faulted)
	assert.Equal(t, snap.SystemHealth, 80)

	snap = decodeSnapshot(t, serve(t, app, "POST", "/reset", nil))
	line, _ = snap.Nodes.Find(topology.FeederLine)
	assert.Assert(t, !line.Faulted)
	assert.Equal(t, snap.SystemHealth, 100)
}

func TestLoadScenario(t *testing.T) {
	_, app := newTestApp(t)

	w := serve(t, app, "POST", "/scenarios/sc-2/load", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w)
	assert.Equal(t, snap.ScenarioID, "sc-2")
	assert.Assert(t, strings.HasPrefix(snap.Logs[0].Message, "Scenario \""))

	w = serve(t, app, "POST", "/scenarios/sc-9/load", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Assert(t, strings.Contains(w.Body.String(), "unknown scenario"))
}

func TestAdviceAndMetrics(t *testing.T) {
	_, app := newTestApp(t)

	w := serve(t, app, "GET", "/advice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	advice := Advice{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &advice))
	assert.Equal(t, advice.Text, "Open the breaker first.")

	w = serve(t, app, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Assert(t, strings.Contains(w.Body.String(), "baysim_system_health"))
}

func TestAdviceWithoutSource(t *testing.T) {
	e, _ := newTestApp(t)
	app := NewApp(e, nil, nil, Config{})

	w := serve(t, app, "GET", "/advice", nil)
	assert.Equal(t, w.Body.String(), `{"Text":""}`)

	w = serve(t, app, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type streamFrame struct {
	Topic   string          `json:"Topic"`
	Payload json.RawMessage `json:"Payload"`
}

func TestStream(t *testing.T) {
	_, app := newTestApp(t)
	srv := httptest.NewServer(app.Router())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	assert.NilError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	first := streamFrame{}
	assert.NilError(t, conn.ReadJSON(&first))
	assert.Equal(t, first.Topic, "status")

	resp, err := http.Post(srv.URL+"/nodes/CB-1/operate", "application/json", strings.NewReader(`{"Command":"OPEN"}`))
	assert.NilError(t, err)
	resp.Body.Close()

	for {
		f := streamFrame{}
		assert.NilError(t, conn.ReadJSON(&f))
		if f.Topic != "log" {
			continue
		}
		assert.Assert(t, strings.Contains(string(f.Payload), "OPEN command sent to Circuit Breaker (52)"))
		return
	}
}

func TestStreamRejectsForeignOrigin(t *testing.T) {
	_, app := newTestApp(t)
	srv := httptest.NewServer(app.Router())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"http://elsewhere.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	assert.Equal(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, resp.StatusCode, http.StatusForbidden)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{srv.URL}})
	assert.NilError(t, err)
	conn.Close()
}

func TestCheckOrigin(t *testing.T) {
	app := NewApp(nil, nil, nil, Config{AllowedOrigins: []string{"http://hmi.local:3000/"}})
	request := func(origin string) *http.Request {
		r := httptest.NewRequest("GET", "http://bay.local:8080/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.Assert(t, app.checkOrigin(request("")))
	assert.Assert(t, app.checkOrigin(request("http://bay.local:8080")))
	assert.Assert(t, app.checkOrigin(request("http://hmi.local:3000")))
	assert.Assert(t, !app.checkOrigin(request("http://elsewhere.example")))
}

func TestRouteName(t *testing.T) {
	_, app := newTestApp(t)
	var got string
	name := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = RouteName(r)
			next.ServeHTTP(w, r)
		})
	}

	w := httptest.NewRecorder()
	app.Router(name).ServeHTTP(w, httptest.NewRequest("POST", "/nodes/CB-1/select", nil))
	assert.Equal(t, got, "/nodes/{id}/select")
}

func TestReadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web.json")
	assert.NilError(t, os.WriteFile(path, []byte(`{"URL": "localhost"}`), 0644))

	cfg, err := ReadConfig(path)
	assert.NilError(t, err)
	assert.Equal(t, cfg.Addr(), "localhost:8080")
}
