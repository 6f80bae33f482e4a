package interlock

import (
	"fmt"

	"github.com/ohowland/baysim/internal/pkg/topology"
)

// Requirement is the position an interlocked node must hold.
type Requirement int

// Requirements.
const (
	MustBeOpen Requirement = iota
	MustBeClosed
)

func (r Requirement) String() string {
	if r == MustBeClosed {
		return "CLOSED"
	}
	return "OPEN"
}

// Violation names the node that blocks an operation.
type Violation struct {
	Node     topology.Node
	Blocker  topology.Node
	Required Requirement
}

func (v *Violation) Error() string {
	return fmt.Sprintf("INTERLOCK ERROR: Cannot operate %s. %s must be %s first.",
		v.Node.Name, v.Blocker.Name, v.Required)
}

// Validate checks node's interlocks against the current positions in nodes and
// returns nil or a *Violation for the first unmet requirement. Referenced ids
// missing from nodes are satisfied. A Tripped node does not count as open.
func Validate(node topology.Node, nodes topology.Nodes) error {
	if node.Interlocks == nil {
		return nil
	}

	for _, id := range node.Interlocks.MustBeOpen {
		other, ok := nodes.Find(id)
		if ok && other.State != topology.Open {
			return &Violation{Node: node, Blocker: other, Required: MustBeOpen}
		}
	}

	for _, id := range node.Interlocks.MustBeClosed {
		other, ok := nodes.Find(id)
		if ok && other.State != topology.Closed {
			return &Violation{Node: node, Blocker: other, Required: MustBeClosed}
		}
	}
	return nil
}
