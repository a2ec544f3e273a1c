package dag

import (
	"fmt"

	"github.com/maxkimambo/sparkflow/internal/operator"
)

// Node is one task in the graph: an operator plus how to retry it
type Node struct {
	ID       string
	Operator operator.Operator
	Retry    RetryPolicy
}

// NodeStatus represents the execution status of a node within one run
type NodeStatus int

const (
	// StatusPending indicates the node has not run yet, or is waiting to retry
	StatusPending NodeStatus = iota
	// StatusRunning indicates an attempt is in flight
	StatusRunning
	// StatusSuccess indicates the node completed successfully
	StatusSuccess
	// StatusFailed indicates the node exhausted its attempts
	StatusFailed
	// StatusSkipped indicates the node will not run in this run
	StatusSkipped
)

// String returns a string representation of the NodeStatus
func (s NodeStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status can no longer change in this run
func (s NodeStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

func (s NodeStatus) MarshalText() ([]byte, error) {
	if s < StatusPending || s > StatusSkipped {
		return nil, fmt.Errorf("invalid node status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *NodeStatus) UnmarshalText(text []byte) error {
	for st := StatusPending; st <= StatusSkipped; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("invalid node status %q", string(text))
}
