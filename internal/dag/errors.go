package dag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrGraphFrozen is returned when a validated graph is modified
var ErrGraphFrozen = errors.New("graph is frozen after validation")

// CycleError reports a dependency cycle. Nodes lists the cycle in edge
// order; the first node is repeated implicitly.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	if len(e.Nodes) == 0 {
		return "dependency cycle detected"
	}
	path := append(append([]string(nil), e.Nodes...), e.Nodes[0])
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(path, " -> "))
}

// GraphError is a structural problem with a graph definition
type GraphError struct {
	Node   string
	Reason string
	Err    error
}

func (e *GraphError) Error() string {
	msg := e.Reason
	if e.Node != "" {
		msg = fmt.Sprintf("node %s: %s", e.Node, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *GraphError) Unwrap() error {
	return e.Err
}
