package dag

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Visualization renders a graph, optionally overlaid with the outcome of a run
type Visualization struct {
	graph   *Graph
	outcome *Outcome
}

// NewVisualization creates a new visualization helper. outcome may be nil
// to render the graph structure alone.
func NewVisualization(graph *Graph, outcome *Outcome) *Visualization {
	return &Visualization{
		graph:   graph,
		outcome: outcome,
	}
}

// NodeInfo contains information about a node for visualization
type NodeInfo struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Tables      []string   `json:"tables"`
	Upstream    []string   `json:"upstream,omitempty"`
	MaxAttempts int        `json:"maxAttempts"`
	Status      NodeStatus `json:"status"`
	Attempts    int        `json:"attempts,omitempty"`
	Duration    string     `json:"duration,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// EdgeInfo contains information about an edge for visualization
type EdgeInfo struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GraphInfo contains the full graph structure for visualization
type GraphInfo struct {
	RunID      string     `json:"runId,omitempty"`
	Status     string     `json:"status,omitempty"`
	FailedNode string     `json:"failedNode,omitempty"`
	Order      []string   `json:"order"`
	Nodes      []NodeInfo `json:"nodes"`
	Edges      []EdgeInfo `json:"edges"`
	Duration   string     `json:"duration,omitempty"`
}

// GenerateInfo creates a representation of the graph for visualization.
// Nodes are listed in topological order.
func (v *Visualization) GenerateInfo() (*GraphInfo, error) {
	order, err := v.graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	info := &GraphInfo{
		Order: order,
		Nodes: make([]NodeInfo, 0, len(order)),
		Edges: []EdgeInfo{},
	}
	if v.outcome != nil {
		info.RunID = v.outcome.RunID
		info.Status = v.outcome.Status.String()
		info.FailedNode = v.outcome.FailedNode
		info.Duration = v.outcome.Duration.Round(time.Millisecond).String()
	}

	for _, id := range order {
		node, _ := v.graph.Node(id)
		ni := NodeInfo{
			ID:          id,
			Kind:        string(node.Operator.Kind()),
			Tables:      node.Operator.Targets(),
			Upstream:    v.graph.Upstream(id),
			MaxAttempts: node.Retry.MaxAttempts,
		}
		if v.outcome != nil {
			st := v.outcome.Nodes[id]
			ni.Status = st.Status
			ni.Attempts = st.Attempts
			if d := st.Duration(); d > 0 {
				ni.Duration = d.Round(time.Millisecond).String()
			}
			if st.LastError != nil {
				ni.Error = st.LastError.Error()
			}
		}
		info.Nodes = append(info.Nodes, ni)

		for _, d := range v.graph.Downstream(id) {
			info.Edges = append(info.Edges, EdgeInfo{From: id, To: d})
		}
	}

	return info, nil
}

// ExportToJSON exports the visualization to a JSON file
func (v *Visualization) ExportToJSON(filename string) error {
	info, err := v.GenerateInfo()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

// GenerateDOTGraph creates a DOT format graph for visualization with Graphviz
func (v *Visualization) GenerateDOTGraph() (string, error) {
	info, err := v.GenerateInfo()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("digraph Pipeline {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=filled];\n\n")

	for _, node := range info.Nodes {
		color := "white"
		if v.outcome != nil {
			switch node.Status {
			case StatusPending:
				color = "lightgrey"
			case StatusRunning:
				color = "lightblue"
			case StatusSuccess:
				color = "lightgreen"
			case StatusFailed:
				color = "salmon"
			case StatusSkipped:
				color = "orange"
			}
		}

		label := fmt.Sprintf("%s\\n%s", node.ID, node.Kind)
		if node.Duration != "" {
			label += fmt.Sprintf("\\n%s", node.Duration)
		}
		sb.WriteString(fmt.Sprintf("  %q [label=\"%s\", fillcolor=\"%s\"];\n", node.ID, label, color))
	}

	sb.WriteString("\n")
	for _, edge := range info.Edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q;\n", edge.From, edge.To))
	}
	sb.WriteString("}\n")

	return sb.String(), nil
}

// GenerateTextSummary creates a human-readable listing of the graph. Each
// node is shown with the nodes it waits on and, after a run, its status.
func (v *Visualization) GenerateTextSummary() (string, error) {
	info, err := v.GenerateInfo()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if v.outcome != nil {
		sb.WriteString(fmt.Sprintf("Run %s: %s", info.RunID, info.Status))
		if info.FailedNode != "" {
			sb.WriteString(fmt.Sprintf(" (failed at %s)", info.FailedNode))
		}
		sb.WriteString(fmt.Sprintf(" in %s\n", info.Duration))
	}

	for i, node := range info.Nodes {
		sb.WriteString(fmt.Sprintf("%2d. %s [%s] -> %s", i+1, node.ID, node.Kind, strings.Join(node.Tables, ", ")))
		if len(node.Upstream) > 0 {
			sb.WriteString(fmt.Sprintf(" (after %s)", strings.Join(node.Upstream, ", ")))
		}
		if v.outcome != nil {
			sb.WriteString(fmt.Sprintf(": %s", node.Status))
			if node.Attempts > 1 {
				sb.WriteString(fmt.Sprintf(" after %d attempts", node.Attempts))
			}
			if node.Error != "" {
				sb.WriteString(fmt.Sprintf(" - Error: %s", node.Error))
			}
		}
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
