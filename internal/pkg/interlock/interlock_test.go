package interlock

import (
	"errors"
	"testing"

	"github.com/ohowland/baysim/internal/pkg/topology"
	"gotest.tools/v3/assert"
)

func find(t *testing.T, nodes topology.Nodes, id string) topology.Node {
	n, ok := nodes.Find(id)
	assert.Assert(t, ok, id)
	return n
}

func TestBusIsolatorBlockedByClosedBreaker(t *testing.T) {
	nodes := topology.Substation()
	err := Validate(find(t, nodes, topology.BusBIsolator), nodes)

	var v *Violation
	assert.Assert(t, errors.As(err, &v))
	assert.Equal(t, v.Blocker.ID, topology.FeederBreaker)
	assert.Equal(t, v.Required, MustBeOpen)
	assert.Error(t, err, "INTERLOCK ERROR: Cannot operate Bus B Isolator (89B). Circuit Breaker (52) must be OPEN first.")
}

func TestSecondRequirementReported(t *testing.T) {
	nodes := topology.Substation()
	nodes[nodes.Index(topology.FeederBreaker)].State = topology.Open

	err := Validate(find(t, nodes, topology.BusBIsolator), nodes)
	var v *Violation
	assert.Assert(t, errors.As(err, &v))
	assert.Equal(t, v.Blocker.ID, topology.BusAIsolator)
}

func TestSatisfied(t *testing.T) {
	nodes := topology.Substation()
	nodes[nodes.Index(topology.FeederBreaker)].State = topology.Open
	nodes[nodes.Index(topology.BusAIsolator)].State = topology.Open

	assert.NilError(t, Validate(find(t, nodes, topology.BusBIsolator), nodes))
}

func TestTrippedBlocksMustBeOpen(t *testing.T) {
	nodes := topology.Substation()
	nodes[nodes.Index(topology.FeederBreaker)].State = topology.Tripped

	err := Validate(find(t, nodes, topology.LineIsolator), nodes)
	assert.Error(t, err, "INTERLOCK ERROR: Cannot operate Line Isolator (89L). Circuit Breaker (52) must be OPEN first.")
}

func TestNoInterlocks(t *testing.T) {
	nodes := topology.Substation()
	assert.NilError(t, Validate(find(t, nodes, topology.FeederBreaker), nodes))
}

func TestMissingReferenceSatisfied(t *testing.T) {
	node := topology.Node{
		ID:   "X",
		Name: "X",
		Interlocks: &topology.Interlocks{
			MustBeOpen:   []string{"ghost"},
			MustBeClosed: []string{"phantom"},
		},
	}
	assert.NilError(t, Validate(node, topology.Nodes{node}))
}

func TestMustBeClosed(t *testing.T) {
	nodes := topology.Nodes{
		{ID: "A", Name: "Alpha", State: topology.Open},
		{ID: "B", Name: "Bravo", Interlocks: &topology.Interlocks{MustBeClosed: []string{"A"}}},
	}
	err := Validate(nodes[1], nodes)
	assert.Error(t, err, "INTERLOCK ERROR: Cannot operate Bravo. Alpha must be CLOSED first.")

	nodes[0].State = topology.Tripped
	assert.Assert(t, Validate(nodes[1], nodes) != nil)

	nodes[0].State = topology.Closed
	assert.NilError(t, Validate(nodes[1], nodes))
}

func TestValidateDoesNotMutate(t *testing.T) {
	nodes := topology.Substation()
	before := nodes.Clone()
	Validate(find(t, nodes, topology.LineEarthSwitch), nodes)
	assert.DeepEqual(t, nodes, before)
}
