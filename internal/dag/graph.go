package dag

import (
	"fmt"
	"sort"
	"sync"

	"github.com/maxkimambo/sparkflow/internal/operator"
)

// Graph is a directed acyclic graph of operator nodes. It is built with
// AddNode and AddEdge, then frozen by Validate. A frozen graph is read-only
// and may be executed by any number of concurrent runs.
type Graph struct {
	nodes      map[string]*Node
	upstream   map[string][]string
	downstream map[string][]string
	frozen     bool
	order      []string
	mutex      sync.RWMutex
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[string]*Node),
		upstream:   make(map[string][]string),
		downstream: make(map[string][]string),
	}
}

// AddNode adds a task node to the graph
func (g *Graph) AddNode(id string, op operator.Operator, retry RetryPolicy) error {
	if id == "" {
		return &GraphError{Reason: "node ID cannot be empty"}
	}
	if op == nil {
		return &GraphError{Node: id, Reason: "operator cannot be nil"}
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.frozen {
		return ErrGraphFrozen
	}
	if _, exists := g.nodes[id]; exists {
		return &GraphError{Node: id, Reason: "node already exists"}
	}

	g.nodes[id] = &Node{ID: id, Operator: op, Retry: retry.normalized()}
	return nil
}

// AddEdge declares that downstream may only run after upstream succeeded
func (g *Graph) AddEdge(upstream, downstream string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.frozen {
		return ErrGraphFrozen
	}
	if _, exists := g.nodes[upstream]; !exists {
		return &GraphError{Node: upstream, Reason: "unknown upstream node"}
	}
	if _, exists := g.nodes[downstream]; !exists {
		return &GraphError{Node: downstream, Reason: "unknown downstream node"}
	}
	if upstream == downstream {
		return &GraphError{Node: upstream, Reason: "node cannot depend on itself"}
	}
	for _, existing := range g.downstream[upstream] {
		if existing == downstream {
			return &GraphError{Node: downstream, Reason: fmt.Sprintf("duplicate edge from %s", upstream)}
		}
	}

	g.downstream[upstream] = insertSorted(g.downstream[upstream], downstream)
	g.upstream[downstream] = insertSorted(g.upstream[downstream], upstream)
	return nil
}

// Validate checks the graph for cycles, redundant edges and invalid operator
// configuration, then freezes it. Validating a frozen graph is a no-op.
func (g *Graph) Validate() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.frozen {
		return nil
	}

	order, ok := g.topologicalSort()
	if !ok {
		return &CycleError{Nodes: g.findCycle()}
	}

	if err := g.checkRedundantEdges(order); err != nil {
		return err
	}

	for _, id := range order {
		if err := g.nodes[id].Operator.Validate(); err != nil {
			return &GraphError{Node: id, Reason: "invalid operator configuration", Err: err}
		}
	}

	g.order = order
	g.frozen = true
	return nil
}

// Frozen reports whether Validate has succeeded
func (g *Graph) Frozen() bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.frozen
}

// Node retrieves a node by its ID
func (g *Graph) Node(id string) (*Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	node, ok := g.nodes[id]
	return node, ok
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// IDs returns all node IDs in sorted order
func (g *Graph) IDs() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.sortedIDs()
}

// Upstream returns the direct dependencies of id
func (g *Graph) Upstream(id string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return append([]string(nil), g.upstream[id]...)
}

// Downstream returns the nodes that directly depend on id
func (g *Graph) Downstream(id string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return append([]string(nil), g.downstream[id]...)
}

// Roots returns all nodes with no dependencies
func (g *Graph) Roots() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var roots []string
	for _, id := range g.sortedIDs() {
		if len(g.upstream[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// TopologicalOrder returns a deterministic order in which every node comes
// after its upstreams. It fails if the graph has a cycle.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if g.frozen {
		return append([]string(nil), g.order...), nil
	}
	order, ok := g.topologicalSort()
	if !ok {
		return nil, &CycleError{Nodes: g.findCycle()}
	}
	return order, nil
}

// Descendants returns every node reachable from id, sorted
func (g *Graph) Descendants(id string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	seen := make(map[string]bool)
	stack := append([]string(nil), g.downstream[id]...)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[next] {
			continue
		}
		seen[next] = true
		stack = append(stack, g.downstream[next]...)
	}

	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// topologicalSort is Kahn's algorithm, always taking the smallest ready ID.
// ok is false when some nodes could not be ordered.
func (g *Graph) topologicalSort() ([]string, bool) {
	indegree := make(map[string]int, len(g.nodes))
	var ready []string
	for _, id := range g.sortedIDs() {
		indegree[id] = len(g.upstream[id])
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, d := range g.downstream[id] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = insertSorted(ready, d)
			}
		}
	}
	return order, len(order) == len(g.nodes)
}

// findCycle returns the nodes of one cycle, found by depth-first search in
// sorted order so the answer is stable.
func (g *Graph) findCycle() []string {
	const (
		unvisited = iota
		onStack
		done
	)
	color := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = onStack
		stack = append(stack, id)
		for _, d := range g.downstream[id] {
			switch color[d] {
			case onStack:
				for i, s := range stack {
					if s == d {
						return append([]string(nil), stack[i:]...)
					}
				}
			case unvisited:
				if cycle := visit(d); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = done
		return nil
	}

	for _, id := range g.sortedIDs() {
		if color[id] == unvisited {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// checkRedundantEdges rejects an edge u->v when v is also reachable from u
// through another path.
func (g *Graph) checkRedundantEdges(order []string) error {
	reach := make(map[string]map[string]bool, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		set := make(map[string]bool)
		for _, d := range g.downstream[id] {
			set[d] = true
			for r := range reach[d] {
				set[r] = true
			}
		}
		reach[id] = set
	}

	for _, u := range order {
		for _, v := range g.downstream[u] {
			for _, w := range g.downstream[u] {
				if w != v && reach[w][v] {
					return &GraphError{
						Node:   v,
						Reason: fmt.Sprintf("edge from %s is implied by the path through %s", u, w),
					}
				}
			}
		}
	}
	return nil
}

func insertSorted(list []string, id string) []string {
	i := sort.SearchStrings(list, id)
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = id
	return list
}
