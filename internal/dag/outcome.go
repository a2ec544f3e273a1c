package dag

import (
	"fmt"
	"sort"
	"time"
)

// RunStatus is the terminal status of a whole run
type RunStatus int

const (
	RunSuccess RunStatus = iota
	RunFailed
)

func (s RunStatus) String() string {
	if s == RunSuccess {
		return "success"
	}
	return "failed"
}

// Outcome is the result of one Execute call.
type Outcome struct {
	RunID  string
	Status RunStatus
	// FailedNode is the first node, in completion order, to exhaust its
	// attempts. It is empty when the run failed only through cancellation.
	FailedNode string
	// Cause is the failed node's error. When the run was also cancelled it
	// joins that error with the context error.
	Cause error
	Cancelled  bool
	Nodes      map[string]NodeState
	Duration   time.Duration
}

// Succeeded returns true if every node succeeded
func (o *Outcome) Succeeded() bool {
	return o.Status == RunSuccess
}

// Err returns nil for a successful run, otherwise an error naming the
// failed node that wraps the cause.
func (o *Outcome) Err() error {
	if o.Succeeded() {
		return nil
	}
	if o.FailedNode == "" {
		return fmt.Errorf("run %s failed: %w", o.RunID, o.Cause)
	}
	return fmt.Errorf("run %s failed at %s: %w", o.RunID, o.FailedNode, o.Cause)
}

// Count returns the number of nodes with the given status
func (o *Outcome) Count(status NodeStatus) int {
	n := 0
	for _, st := range o.Nodes {
		if st.Status == status {
			n++
		}
	}
	return n
}

// IDs returns the node IDs in sorted order
func (o *Outcome) IDs() []string {
	ids := make([]string, 0, len(o.Nodes))
	for id := range o.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
