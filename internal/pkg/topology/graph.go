package topology

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrDuplicateNode is returned when a node id is added twice.
	ErrDuplicateNode = errors.New("node already exists in graph")
	// ErrUnknownNode is returned when an edge names a node that was never added.
	ErrUnknownNode = errors.New("node does not exist in graph")
)

// Builder assembles a validated node set. Nodes keep insertion order.
type Builder struct {
	order          []string
	nodes          map[string]Node
	adjacentcyList map[string][]string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		order:          make([]string, 0),
		nodes:          make(map[string]Node),
		adjacentcyList: make(map[string][]string),
	}
}

// AddNode registers n. Neighbors already listed on n are kept as directed edges
// and validated by Build.
func (b *Builder) AddNode(n Node) error {
	if n.ID == "" {
		return errors.New("node id is empty")
	}
	if _, exists := b.nodes[n.ID]; exists {
		return fmt.Errorf("node %s: %w", n.ID, ErrDuplicateNode)
	}
	n = n.Clone()
	b.adjacentcyList[n.ID] = n.Neighbors
	n.Neighbors = nil
	b.nodes[n.ID] = n
	b.order = append(b.order, n.ID)
	return nil
}

// AddDirectedEdge lists n2 as a neighbor of n1. The engine treats every edge as
// undirected, so one direction is enough.
func (b *Builder) AddDirectedEdge(n1, n2 string) error {
	edges, exists := b.adjacentcyList[n1]
	if !exists {
		return fmt.Errorf("start node %s: %w", n1, ErrUnknownNode)
	}
	if _, exists := b.nodes[n2]; !exists {
		return fmt.Errorf("end node %s: %w", n2, ErrUnknownNode)
	}
	for _, e := range edges {
		if e == n2 {
			return nil
		}
	}
	b.adjacentcyList[n1] = append(edges, n2)
	return nil
}

// Edges returns the neighbors listed by id.
func (b *Builder) Edges(id string) []string {
	if edges, exists := b.adjacentcyList[id]; exists {
		return append([]string(nil), edges...)
	}
	return make([]string, 0)
}

// Build validates every listed edge and returns the ordered node set.
// Interlock references are not validated: a missing reference never blocks.
func (b *Builder) Build() (Nodes, error) {
	nodes := make(Nodes, 0, len(b.order))
	for _, id := range b.order {
		n := b.nodes[id]
		for _, nb := range b.adjacentcyList[id] {
			if _, ok := b.nodes[nb]; !ok {
				return nil, fmt.Errorf("edge %s -> %s: %w", id, nb, ErrUnknownNode)
			}
		}
		n.Neighbors = append([]string(nil), b.adjacentcyList[id]...)
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Config is the on-disk topology description.
type Config struct {
	Name  string `json:"Name"`
	Nodes []Node `json:"Nodes"`
}

// Parse decodes and validates a JSON topology.
func Parse(jsonConfig []byte) (Nodes, error) {
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return nil, err
	}

	b := NewBuilder()
	for _, n := range cfg.Nodes {
		if err := b.AddNode(n); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// ReadFile loads a topology from configPath.
func ReadFile(configPath string) (Nodes, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	nodes, err := Parse(jsonConfig)
	if err != nil {
		return nil, fmt.Errorf("topology %s: %w", configPath, err)
	}
	return nodes, nil
}
