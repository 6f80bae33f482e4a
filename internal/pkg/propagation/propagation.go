/*
propagation.go Energization of a node set by fixed-point reachability from the
closed busbars.
*/

package propagation

import (
	"log"

	"github.com/ohowland/baysim/internal/pkg/topology"
)

// DefaultMaxPasses bounds the relaxation loop.
const DefaultMaxPasses = 50

// Result is the outcome of a propagation run.
type Result struct {
	Nodes     topology.Nodes
	Passes    int
	Converged bool
}

// Propagate returns a copy of nodes with Energized and VoltageKV recomputed.
func Propagate(nodes topology.Nodes) topology.Nodes {
	return Run(nodes, DefaultMaxPasses).Nodes
}

// Run relaxes energization over the undirected closure of the listed edges.
// Closed busbars are the only sources. Energy leaves a node only if the node
// conducts onward and enters a neighbor only if that neighbor is Closed. The
// input is not modified and no State is ever changed. If maxPasses is reached
// before a pass completes without change the best-effort result is returned
// with Converged false.
func Run(nodes topology.Nodes, maxPasses int) Result {
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}

	out := nodes.Clone()
	index := make(map[string]int, len(out))
	for i, n := range out {
		index[n.ID] = i
		out[i].Energized = n.Kind == topology.Busbar && n.State == topology.Closed
	}
	adj := out.Undirected()

	res := Result{Nodes: out}
	for res.Passes < maxPasses {
		res.Passes++
		changed := false
		for i := range out {
			src := out[i]
			if !src.Energized || !src.ConductsOnward() {
				continue
			}
			for _, id := range adj[src.ID] {
				nb := &out[index[id]]
				if !nb.Energized && nb.Accepts() {
					nb.Energized = true
					changed = true
				}
			}
		}
		if !changed {
			res.Converged = true
			break
		}
	}

	if !res.Converged {
		log.Printf("[Propagation] pass limit %d reached, result may be incomplete\n", maxPasses)
	}

	for i := range out {
		if !out[i].Energized {
			out[i].VoltageKV = 0
		}
	}
	return res
}
