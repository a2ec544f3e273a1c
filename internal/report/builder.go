package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/maxkimambo/sparkflow/internal/dag"
)

// Builder accumulates the lines of a plain-text report
type Builder struct {
	lines     []string
	separator string
	width     int
}

func NewBuilder() *Builder {
	return &Builder{separator: "=", width: 40}
}

func (b *Builder) WithWidth(width int) *Builder {
	b.width = width
	return b
}

func (b *Builder) Header(text string) *Builder {
	b.lines = append(b.lines, text, strings.Repeat(b.separator, b.width))
	return b
}

func (b *Builder) Section(title string) *Builder {
	b.lines = append(b.lines, "", title)
	return b
}

func (b *Builder) KeyValue(key string, value interface{}) *Builder {
	b.lines = append(b.lines, fmt.Sprintf("%s: %v", key, value))
	return b
}

func (b *Builder) Indented(level int, text string) *Builder {
	b.lines = append(b.lines, strings.Repeat("  ", level)+text)
	return b
}

func (b *Builder) Build() string {
	return strings.Join(b.lines, "\n")
}

// SlotResult is the result of one scheduled run inside a backfill. Err is
// set when the run could not start; Outcome is set otherwise.
type SlotResult struct {
	LogicalTime time.Time
	Outcome     *dag.Outcome
	Err         error
}

func (r SlotResult) Succeeded() bool {
	return r.Err == nil && r.Outcome != nil && r.Outcome.Succeeded()
}

// BackfillSummary lists the failed slots of a backfill in logical time order.
func BackfillSummary(results []SlotResult) string {
	sorted := append([]SlotResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LogicalTime.Before(sorted[j].LogicalTime)
	})

	failed := 0
	for _, r := range sorted {
		if !r.Succeeded() {
			failed++
		}
	}

	b := NewBuilder().Header("Backfill summary").
		KeyValue("Runs", len(sorted)).
		KeyValue("Succeeded", len(sorted)-failed).
		KeyValue("Failed", failed)

	if failed == 0 {
		return b.Build()
	}

	b.Section("Failed runs:")
	for _, r := range sorted {
		if r.Succeeded() {
			continue
		}
		slot := r.LogicalTime.UTC().Format(time.RFC3339)
		switch {
		case r.Err != nil:
			b.Indented(1, fmt.Sprintf("%s: %v", slot, r.Err))
		case r.Outcome.FailedNode != "":
			b.Indented(1, fmt.Sprintf("%s: failed at %s", slot, r.Outcome.FailedNode))
		default:
			b.Indented(1, fmt.Sprintf("%s: %v", slot, r.Outcome.Cause))
		}
	}
	return b.Build()
}
