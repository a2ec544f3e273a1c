// Package report renders run outcomes for the terminal.
package report

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/maxkimambo/sparkflow/internal/dag"
	"github.com/maxkimambo/sparkflow/internal/progress"
)

// Table lays out rows under a header with box-drawing borders
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	return &Table{headers: headers, widths: widths}
}

// AddRow appends a row. Short rows are padded and extra cells dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	for i, cell := range row {
		if w := utf8.RuneCountInString(cell); w > t.widths[i] {
			t.widths[i] = w
		}
	}
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) String() string {
	var sb strings.Builder

	t.border(&sb, "┌", "┬", "┐")
	t.line(&sb, t.headers)
	t.border(&sb, "├", "┼", "┤")
	for _, row := range t.rows {
		t.line(&sb, row)
	}
	t.border(&sb, "└", "┴", "┘")

	return sb.String()
}

func (t *Table) line(sb *strings.Builder, cells []string) {
	sb.WriteString("│")
	for i, cell := range cells {
		pad := t.widths[i] - utf8.RuneCountInString(cell)
		sb.WriteString(" " + cell + strings.Repeat(" ", pad) + " │")
	}
	sb.WriteString("\n")
}

func (t *Table) border(sb *strings.Builder, left, middle, right string) {
	sb.WriteString(left)
	for i, w := range t.widths {
		sb.WriteString(strings.Repeat("─", w+2))
		if i < len(t.widths)-1 {
			sb.WriteString(middle)
		}
	}
	sb.WriteString(right + "\n")
}

// OutcomeTable lists every node of g with its result in o, in topological order.
func OutcomeTable(g *dag.Graph, o *dag.Outcome) (*Table, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	t := NewTable("Task", "Operator", "Status", "Attempts", "Duration")
	for _, id := range order {
		node, _ := g.Node(id)
		st := o.Nodes[id]

		duration := "-"
		if d := st.Duration(); d > 0 {
			duration = progress.FormatDuration(d)
		}
		t.AddRow(id, string(node.Operator.Kind()), st.Status.String(),
			fmt.Sprintf("%d/%d", st.Attempts, node.Retry.MaxAttempts), duration)
	}
	return t, nil
}
