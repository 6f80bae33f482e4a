/*
node.go Primary electrical components of a substation bay and the ordered node
set the engine mutates.
*/

package topology

import (
	"fmt"
	"strings"
)

// Kind is the class of primary equipment a node represents.
type Kind int

// Node kinds.
const (
	Busbar Kind = iota
	Isolator
	Breaker
	Line
	Ground
)

var kindNames = map[Kind]string{
	Busbar:   "BUSBAR",
	Isolator: "ISOLATOR",
	Breaker:  "BREAKER",
	Line:     "LINE",
	Ground:   "GROUND",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown node kind %d", int(k))
	}
	return []byte(s), nil
}

// UnmarshalText decodes a kind name, case insensitive.
func (k *Kind) UnmarshalText(b []byte) error {
	name := strings.ToUpper(string(b))
	for kind, s := range kindNames {
		if s == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown node kind %q", string(b))
}

// SwitchState is the contact position of a node.
type SwitchState int

// Switch states. Busbars and lines are conductors and stay Closed.
const (
	Open SwitchState = iota
	Closed
	Tripped
)

var stateNames = map[SwitchState]string{
	Open:    "OPEN",
	Closed:  "CLOSED",
	Tripped: "TRIPPED",
}

func (s SwitchState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SwitchState(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s SwitchState) MarshalText() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown switch state %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a state name, case insensitive.
func (s *SwitchState) UnmarshalText(b []byte) error {
	name := strings.ToUpper(string(b))
	for state, n := range stateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown switch state %q", string(b))
}

// Interlocks are the positions other nodes must hold before this node may be operated.
type Interlocks struct {
	MustBeOpen   []string `json:"MustBeOpen,omitempty"`
	MustBeClosed []string `json:"MustBeClosed,omitempty"`
}

// Node is one primary electrical component.
type Node struct {
	ID         string      `json:"ID"`
	Name       string      `json:"Name"`
	Kind       Kind        `json:"Kind"`
	State      SwitchState `json:"State"`
	Energized  bool        `json:"Energized"`
	Faulted    bool        `json:"Faulted"`
	RatedKV    float64     `json:"RatedKV"`
	VoltageKV  float64     `json:"VoltageKV"`
	Neighbors  []string    `json:"Neighbors"`
	Interlocks *Interlocks `json:"Interlocks,omitempty"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	c := n
	c.Neighbors = append([]string(nil), n.Neighbors...)
	if n.Interlocks != nil {
		c.Interlocks = &Interlocks{
			MustBeOpen:   append([]string(nil), n.Interlocks.MustBeOpen...),
			MustBeClosed: append([]string(nil), n.Interlocks.MustBeClosed...),
		}
	}
	return c
}

// ConductsOnward reports whether current entering the node can leave it
// toward its neighbors.
func (n Node) ConductsOnward() bool {
	switch n.Kind {
	case Busbar, Isolator, Breaker:
		return n.State == Closed
	case Line:
		return true
	case Ground:
		return false
	}
	return false
}

// Accepts reports whether the node can be energized from a neighbor.
func (n Node) Accepts() bool {
	return n.State == Closed
}

// Lists reports whether id appears in the node's own neighbor list.
func (n Node) Lists(id string) bool {
	for _, nb := range n.Neighbors {
		if nb == id {
			return true
		}
	}
	return false
}

// Nodes is an ordered node set. Order is stable for the lifetime of a session.
type Nodes []Node

// Index returns the position of id, or -1.
func (ns Nodes) Index(id string) int {
	for i := range ns {
		if ns[i].ID == id {
			return i
		}
	}
	return -1
}

// Find looks a node up by id.
func (ns Nodes) Find(id string) (Node, bool) {
	if i := ns.Index(id); i >= 0 {
		return ns[i], true
	}
	return Node{}, false
}

// Clone deep copies the set.
func (ns Nodes) Clone() Nodes {
	if ns == nil {
		return nil
	}
	c := make(Nodes, len(ns))
	for i, n := range ns {
		c[i] = n.Clone()
	}
	return c
}

// OfKind returns copies of the nodes of kind k, in set order.
func (ns Nodes) OfKind(k Kind) Nodes {
	out := make(Nodes, 0)
	for _, n := range ns {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

// Adjacent reports whether a and b are connected, whichever side lists the edge.
func (ns Nodes) Adjacent(a, b string) bool {
	na, okA := ns.Find(a)
	nb, okB := ns.Find(b)
	return (okA && na.Lists(b)) || (okB && nb.Lists(a))
}

// Undirected returns the symmetric closure of the listed edges. Neighbor order
// follows the node set order so iteration is deterministic. Edges to ids that
// are not in the set are dropped.
func (ns Nodes) Undirected() map[string][]string {
	linked := make(map[string]map[string]bool, len(ns))
	for _, n := range ns {
		linked[n.ID] = make(map[string]bool)
	}
	for _, n := range ns {
		for _, nb := range n.Neighbors {
			if _, ok := linked[nb]; !ok || nb == n.ID {
				continue
			}
			linked[n.ID][nb] = true
			linked[nb][n.ID] = true
		}
	}

	adj := make(map[string][]string, len(ns))
	for _, n := range ns {
		edges := make([]string, 0, len(linked[n.ID]))
		for _, other := range ns {
			if linked[n.ID][other.ID] {
				edges = append(edges, other.ID)
			}
		}
		adj[n.ID] = edges
	}
	return adj
}
