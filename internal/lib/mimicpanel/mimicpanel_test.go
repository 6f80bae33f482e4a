package mimicpanel

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ohowland/baysim/internal/pkg/comm/modbuscomm"
	"github.com/ohowland/baysim/internal/pkg/engine"
	"github.com/ohowland/baysim/internal/pkg/propagation"
	"github.com/ohowland/baysim/internal/pkg/topology"
	"gotest.tools/v3/assert"
)

type fakeComm struct {
	mux     sync.Mutex
	inputs  map[string]float64
	written map[string]float64
}

func newFakeComm() *fakeComm {
	return &fakeComm{inputs: make(map[string]float64), written: make(map[string]float64)}
}

func (c *fakeComm) set(name string, v float64) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.inputs[name] = v
}

func (c *fakeComm) get(name string) (float64, bool) {
	c.mux.Lock()
	defer c.mux.Unlock()
	v, ok := c.written[name]
	return v, ok
}

func (c *fakeComm) Read(regs []modbuscomm.Register) (map[string]float64, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	values := make(map[string]float64)
	for _, r := range regs {
		values[r.Name] = c.inputs[r.Name]
	}
	return values, nil
}

func (c *fakeComm) Write(_ []modbuscomm.Register, values map[string]float64) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	for k, v := range values {
		c.written[k] = v
	}
	return nil
}

func registers() []modbuscomm.Register {
	return []modbuscomm.Register{
		{Name: "CB-1.open_cmd", Address: 0, DataType: "u16", AccessType: modbuscomm.ReadOnly},
		{Name: "CB-1.close_cmd", Address: 1, DataType: "u16", AccessType: modbuscomm.ReadOnly},
		{Name: "CB-1.state", Address: 100, DataType: "u16", AccessType: modbuscomm.WriteOnly},
		{Name: "LINE-1.energized", Address: 101, DataType: "u16", AccessType: modbuscomm.WriteOnly},
		{Name: "BUS-A.voltage", Address: 102, DataType: "f32", AccessType: modbuscomm.WriteOnly},
		{Name: "nodot", Address: 103, DataType: "u16", AccessType: modbuscomm.WriteOnly},
	}
}

func newTestPanel(t *testing.T) (*engine.Engine, *fakeComm, *Panel) {
	t.Helper()
	e := engine.New(engine.WithConfig(engine.Config{TelemetryPeriodMs: int(time.Hour / time.Millisecond)}))
	e.Start()
	t.Cleanup(e.Stop)

	comm := newFakeComm()
	p, err := New(Config{Registers: registers()}, comm, e)
	assert.NilError(t, err)
	return e, comm, p
}

func cbState(e *engine.Engine) topology.SwitchState {
	cb, _ := e.Snapshot().Nodes.Find(topology.FeederBreaker)
	return cb.State
}

func TestPollOperatesOnRisingEdge(t *testing.T) {
	e, comm, p := newTestPanel(t)

	assert.NilError(t, p.Poll())
	assert.Equal(t, cbState(e), topology.Closed)

	comm.set("CB-1.open_cmd", 1)
	assert.NilError(t, p.Poll())
	assert.Equal(t, cbState(e), topology.Open)
	n := len(e.Snapshot().Logs)

	// held high: no repeat
	assert.NilError(t, p.Poll())
	assert.Equal(t, len(e.Snapshot().Logs), n)

	comm.set("CB-1.open_cmd", 0)
	comm.set("CB-1.close_cmd", 1)
	assert.NilError(t, p.Poll())
	assert.Equal(t, cbState(e), topology.Closed)
}

func TestIndicate(t *testing.T) {
	_, comm, p := newTestPanel(t)

	nodes := propagation.Propagate(topology.Substation())
	assert.NilError(t, p.Indicate(nodes))

	v, ok := comm.get("CB-1.state")
	assert.Assert(t, ok)
	assert.Equal(t, v, 1.0)
	v, _ = comm.get("LINE-1.energized")
	assert.Equal(t, v, 1.0)
	_, ok = comm.get("nodot")
	assert.Assert(t, !ok)

	i := nodes.Index(topology.FeederBreaker)
	nodes[i].State = topology.Tripped
	assert.NilError(t, p.Indicate(nodes))
	v, _ = comm.get("CB-1.state")
	assert.Equal(t, v, 2.0)
}

func TestProcessMirrorsStatus(t *testing.T) {
	e, comm, p := newTestPanel(t)
	go p.Process()

	e.Operate(topology.FeederBreaker, engine.OpenCmd)

	deadline := time.Now().Add(2 * time.Second)
	for {
		v, ok := comm.get("LINE-1.energized")
		if ok && v == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("line de-energization was not indicated")
		}
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()
	<-p.done
}

func TestSplitName(t *testing.T) {
	id, point, ok := splitName("ISO-A-1.close_cmd")
	assert.Assert(t, ok)
	assert.Equal(t, id, "ISO-A-1")
	assert.Equal(t, point, "close_cmd")

	_, _, ok = splitName("CB-1.")
	assert.Assert(t, !ok)
	_, _, ok = splitName(".state")
	assert.Assert(t, !ok)
}

func TestReadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mimicpanel.json")
	body := `{"Poller": {"Mode": "tcp", "IPAddr": "10.0.0.9", "Port": "502"},
		"Registers": [{"Name": "CB-1.state", "Address": 100, "DataType": "u16", "Access": "write-only"}]}`
	assert.NilError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := ReadConfig(path)
	assert.NilError(t, err)
	assert.Equal(t, cfg.PollRateMs, 200)
	assert.Equal(t, cfg.Poller.IPAddr, "10.0.0.9")
	assert.Equal(t, cfg.Registers[0].AccessType, modbuscomm.WriteOnly)
}

func TestNewRejectsBadRegisterMap(t *testing.T) {
	e := engine.New()
	regs := []modbuscomm.Register{
		{Name: "CB-1.state", DataType: "u16", AccessType: modbuscomm.WriteOnly},
		{Name: "CB-1.state", DataType: "u16", AccessType: modbuscomm.WriteOnly},
	}
	_, err := New(Config{Registers: regs}, &fakeComm{}, e)
	assert.Assert(t, errors.Is(err, modbuscomm.ErrRegisterMap))
}
