package topology

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

// BEGIN --- Builder Tests

func TestAddNode(t *testing.T) {
	b := NewBuilder()
	err := b.AddNode(Node{ID: "BUS-X", Kind: Busbar, State: Closed})
	assert.NilError(t, err)

	_, ok := b.adjacentcyList["BUS-X"]
	assert.Assert(t, ok, "Node not found in Builder")
}

func TestAddNodeEmptyID(t *testing.T) {
	b := NewBuilder()
	err := b.AddNode(Node{})
	assert.Assert(t, err != nil)
}

func TestRejectDuplicateNode(t *testing.T) {
	b := NewBuilder()
	assert.NilError(t, b.AddNode(Node{ID: "CB-9"}))

	err := b.AddNode(Node{ID: "CB-9"})
	assert.Assert(t, errors.Is(err, ErrDuplicateNode))
	assert.Error(t, err, "node CB-9: node already exists in graph")
}

func TestAddDirectedEdge(t *testing.T) {
	b := NewBuilder()
	b.AddNode(Node{ID: "a"})
	b.AddNode(Node{ID: "b"})

	assert.NilError(t, b.AddDirectedEdge("a", "b"))
	assert.DeepEqual(t, b.Edges("a"), []string{"b"})
	assert.DeepEqual(t, b.Edges("b"), []string{})

	// adding the same edge twice keeps one copy
	assert.NilError(t, b.AddDirectedEdge("a", "b"))
	assert.DeepEqual(t, b.Edges("a"), []string{"b"})
}

func TestAddDirectedEdgeMissingNode(t *testing.T) {
	b := NewBuilder()
	b.AddNode(Node{ID: "a"})

	err := b.AddDirectedEdge("a", "nope")
	assert.Assert(t, errors.Is(err, ErrUnknownNode))
	assert.Error(t, err, "end node nope: node does not exist in graph")

	err = b.AddDirectedEdge("nope", "a")
	assert.Error(t, err, "start node nope: node does not exist in graph")
}

func TestBuildRejectsDanglingNeighbor(t *testing.T) {
	b := NewBuilder()
	b.AddNode(Node{ID: "a", Neighbors: []string{"ghost"}})

	_, err := b.Build()
	assert.Assert(t, errors.Is(err, ErrUnknownNode))
}

func TestBuildKeepsInsertionOrder(t *testing.T) {
	b := NewBuilder()
	for _, id := range []string{"z", "m", "a"} {
		assert.NilError(t, b.AddNode(Node{ID: id}))
	}
	nodes, err := b.Build()
	assert.NilError(t, err)
	assert.Equal(t, len(nodes), 3)
	assert.Equal(t, nodes[0].ID, "z")
	assert.Equal(t, nodes[1].ID, "m")
	assert.Equal(t, nodes[2].ID, "a")
}

// BEGIN --- Parse Tests

const testTopology = `{
	"Name": "test",
	"Nodes": [
		{"ID": "BUS", "Name": "Bus", "Kind": "BUSBAR", "State": "CLOSED", "RatedKV": 132, "Neighbors": ["CB"]},
		{"ID": "CB", "Name": "Breaker", "Kind": "breaker", "State": "open", "Neighbors": ["FDR"]},
		{"ID": "FDR", "Name": "Feeder", "Kind": "LINE", "State": "CLOSED",
		 "Interlocks": {"MustBeClosed": ["CB"]}}
	]
}`

func TestParse(t *testing.T) {
	nodes, err := Parse([]byte(testTopology))
	assert.NilError(t, err)
	assert.Equal(t, len(nodes), 3)

	bus, ok := nodes.Find("BUS")
	assert.Assert(t, ok)
	assert.Equal(t, bus.Kind, Busbar)
	assert.Equal(t, bus.State, Closed)
	assert.Equal(t, bus.RatedKV, 132.0)

	cb, _ := nodes.Find("CB")
	assert.Equal(t, cb.Kind, Breaker)
	assert.Equal(t, cb.State, Open)

	fdr, _ := nodes.Find("FDR")
	assert.DeepEqual(t, fdr.Interlocks.MustBeClosed, []string{"CB"})
}

func TestParseUnknownKind(t *testing.T) {
	_, err := Parse([]byte(`{"Nodes":[{"ID":"x","Kind":"TRANSFORMER"}]}`))
	assert.ErrorContains(t, err, "unknown node kind")
}

func TestParseDanglingEdge(t *testing.T) {
	_, err := Parse([]byte(`{"Nodes":[{"ID":"x","Kind":"LINE","Neighbors":["y"]}]}`))
	assert.Assert(t, errors.Is(err, ErrUnknownNode))
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile("./does/not/exist.json")
	assert.Assert(t, err != nil)
}
