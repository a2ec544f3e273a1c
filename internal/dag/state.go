package dag

import (
	"sort"
	"sync"
	"time"
)

// NodeState is the per-run record for one node
type NodeState struct {
	Status    NodeStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError error      `json:"-"`
	StartTime time.Time  `json:"start_time,omitempty"`
	EndTime   time.Time  `json:"end_time,omitempty"`
}

// Duration is the time between the first attempt's start and the last end
func (s NodeState) Duration() time.Duration {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// RunState holds the status of every node for a single run. Each Execute
// call creates its own, so runs never share state through the graph.
type RunState struct {
	nodes map[string]*NodeState
	mutex sync.RWMutex
}

// NewRunState starts every node in StatusPending
func NewRunState(ids []string) *RunState {
	s := &RunState{nodes: make(map[string]*NodeState, len(ids))}
	for _, id := range ids {
		s.nodes[id] = &NodeState{Status: StatusPending}
	}
	return s
}

// Get returns a copy of the state of id
func (s *RunState) Get(id string) (NodeState, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	st, ok := s.nodes[id]
	if !ok {
		return NodeState{}, false
	}
	return *st, true
}

// Status returns the status of id, StatusPending if unknown
func (s *RunState) Status(id string) NodeStatus {
	st, _ := s.Get(id)
	return st.Status
}

// Snapshot copies the state of every node
func (s *RunState) Snapshot() map[string]NodeState {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make(map[string]NodeState, len(s.nodes))
	for id, st := range s.nodes {
		out[id] = *st
	}
	return out
}

// Count returns how many nodes are in each status
func (s *RunState) Count() map[NodeStatus]int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	counts := make(map[NodeStatus]int)
	for _, st := range s.nodes {
		counts[st.Status]++
	}
	return counts
}

// IDs returns the node IDs with the given status, sorted
func (s *RunState) IDs(status NodeStatus) []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var ids []string
	for id, st := range s.nodes {
		if st.Status == status {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *RunState) update(id string, fn func(st *NodeState)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if st, ok := s.nodes[id]; ok {
		fn(st)
	}
}
