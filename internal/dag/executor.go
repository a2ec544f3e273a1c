package dag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/maxkimambo/sparkflow/internal/logger"
	"github.com/maxkimambo/sparkflow/internal/operator"
	"github.com/maxkimambo/sparkflow/internal/progress"
)

// ExecutorConfig contains configuration for the DAG executor
type ExecutorConfig struct {
	// MaxParallelTasks is the maximum number of tasks to run in parallel
	MaxParallelTasks int

	// TaskTimeout bounds a single attempt; zero disables it
	TaskTimeout time.Duration

	// ProgressInterval is how often a progress report is logged; zero disables it
	ProgressInterval time.Duration
}

// DefaultExecutorConfig returns a default configuration
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxParallelTasks: 10,
		TaskTimeout:      time.Hour,
		ProgressInterval: 30 * time.Second,
	}
}

// Executor runs validated graphs. It holds no per-run state, so one
// Executor may run the same graph many times concurrently.
type Executor struct {
	config ExecutorConfig
}

// NewExecutor creates a new DAG executor
func NewExecutor(config *ExecutorConfig) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	cfg := *config
	if cfg.MaxParallelTasks < 1 {
		cfg.MaxParallelTasks = 1
	}
	return &Executor{config: cfg}
}

// Config returns the effective configuration
func (e *Executor) Config() ExecutorConfig {
	return e.config
}

// Execute runs g to completion and reports how it ended. The error is only
// non-nil when g fails validation; task failures are reported through the
// Outcome.
func (e *Executor) Execute(ctx context.Context, g *Graph, env operator.Env) (*Outcome, error) {
	if g == nil {
		return nil, errors.New("graph cannot be nil")
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}

	r := newRun(ctx, g, env, e.config)
	defer close(r.done)

	logger.User.Startingf("Starting run %s: %d tasks (max %d parallel)",
		env.RunID, g.Len(), e.config.MaxParallelTasks)
	logger.Op.WithFields(map[string]interface{}{
		"run_id":       env.RunID,
		"logical_time": env.LogicalTime.Format(time.RFC3339),
		"tasks":        g.Len(),
	}).Debug("Run started")

	r.loop()

	outcome := r.outcome()
	r.logFinal(outcome)
	return outcome, nil
}

type attemptResult struct {
	id  string
	err error
}

// run is the state of one Execute call. Only the dispatcher goroutine
// touches its fields; workers talk to it through results and timers
// through retries.
type run struct {
	ctx    context.Context
	graph  *Graph
	env    operator.Env
	config ExecutorConfig
	state  *RunState

	remaining map[string]int // upstreams not yet successful
	ready     []string
	running   map[string]struct{}
	timers    map[string]*time.Timer

	results chan attemptResult
	retries chan string
	done    chan struct{}

	cancelled  bool
	failedNode string
	cause      error

	reporter  *progress.Reporter
	startTime time.Time
}

func newRun(ctx context.Context, g *Graph, env operator.Env, config ExecutorConfig) *run {
	ids := g.IDs()
	r := &run{
		ctx:       ctx,
		graph:     g,
		env:       env,
		config:    config,
		state:     NewRunState(ids),
		remaining: make(map[string]int, len(ids)),
		running:   make(map[string]struct{}),
		timers:    make(map[string]*time.Timer),
		results:   make(chan attemptResult),
		retries:   make(chan string),
		done:      make(chan struct{}),
		reporter:  progress.NewReporter(config.ProgressInterval),
		startTime: time.Now(),
	}
	for _, id := range ids {
		r.remaining[id] = len(g.Upstream(id))
	}
	r.ready = g.Roots()
	return r
}

func (r *run) loop() {
	var tick <-chan time.Time
	if r.config.ProgressInterval > 0 {
		ticker := time.NewTicker(r.config.ProgressInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if !r.cancelled && r.ctx.Err() != nil {
			r.cancel()
		}
		r.dispatch()

		if len(r.running) == 0 && len(r.timers) == 0 {
			return
		}

		var cancelled <-chan struct{}
		if !r.cancelled {
			cancelled = r.ctx.Done()
		}

		select {
		case res := <-r.results:
			r.complete(res)
		case id := <-r.retries:
			r.requeue(id)
		case <-cancelled:
			r.cancel()
		case <-tick:
			logger.User.Info(r.reporter.Report(r.progressInfo()))
		}
	}
}

// dispatch starts ready nodes until the parallelism limit is reached
func (r *run) dispatch() {
	for len(r.ready) > 0 && len(r.running) < r.config.MaxParallelTasks {
		id := r.ready[0]
		r.ready = r.ready[1:]
		r.start(id)
	}
}

func (r *run) start(id string) {
	node, _ := r.graph.Node(id)

	var attempt int
	r.state.update(id, func(st *NodeState) {
		st.Status = StatusRunning
		st.Attempts++
		attempt = st.Attempts
		if st.StartTime.IsZero() {
			st.StartTime = time.Now()
		}
	})
	r.running[id] = struct{}{}

	if attempt == 1 {
		logger.User.Startingf("Starting task %s (%s)", id, node.Operator.Kind())
	} else {
		logger.User.Startingf("Starting task %s (%s), attempt %d/%d",
			id, node.Operator.Kind(), attempt, node.Retry.MaxAttempts)
	}

	go func() {
		r.results <- attemptResult{id: id, err: r.invoke(node)}
	}()
}

// invoke runs one attempt of node. A panic counts as a failed attempt.
func (r *run) invoke(node *Node) (err error) {
	ctx := r.ctx
	if r.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.TaskTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", node.ID, p)
		}
	}()

	return node.Operator.Run(ctx, r.env)
}

func (r *run) complete(res attemptResult) {
	delete(r.running, res.id)
	now := time.Now()
	node, _ := r.graph.Node(res.id)

	// Once cancelled, whatever the attempt returned is not trusted
	if r.cancelled {
		r.state.update(res.id, func(st *NodeState) {
			st.Status = StatusSkipped
			st.EndTime = now
			if res.err != nil {
				st.LastError = res.err
			}
		})
		logger.User.Skipf("Discarded result of task %s: run cancelled", res.id)
		return
	}

	if res.err == nil {
		r.succeed(node, now)
		return
	}

	var attempts int
	r.state.update(res.id, func(st *NodeState) {
		st.LastError = res.err
		st.EndTime = now
		attempts = st.Attempts
	})

	if node.Retry.ShouldRetry(attempts) {
		r.state.update(res.id, func(st *NodeState) { st.Status = StatusPending })
		logger.User.Retryf("Task %s failed (attempt %d/%d), retrying in %s: %v",
			res.id, attempts, node.Retry.MaxAttempts, progress.FormatDuration(node.Retry.BackoffDelay), res.err)
		r.scheduleRetry(res.id, node.Retry.BackoffDelay)
		return
	}

	r.fail(node, res.err, attempts)
}

func (r *run) succeed(node *Node, now time.Time) {
	var took time.Duration
	r.state.update(node.ID, func(st *NodeState) {
		st.Status = StatusSuccess
		st.LastError = nil
		st.EndTime = now
		took = now.Sub(st.StartTime)
	})

	logger.User.Successf("Task %s succeeded in %s", node.ID, progress.FormatDuration(took))
	logger.Op.Debug(r.reporter.ReportTaskComplete(string(node.Operator.Kind()), node.ID, took, true))

	for _, d := range r.graph.Downstream(node.ID) {
		r.remaining[d]--
		if r.remaining[d] == 0 && r.state.Status(d) == StatusPending {
			r.ready = append(r.ready, d)
		}
	}
}

func (r *run) fail(node *Node, err error, attempts int) {
	var took time.Duration
	r.state.update(node.ID, func(st *NodeState) {
		st.Status = StatusFailed
		took = st.EndTime.Sub(st.StartTime)
	})

	logger.User.Errorf("Task %s failed after %d attempt(s): %v", node.ID, attempts, err)
	logger.Op.Debug(r.reporter.ReportTaskComplete(string(node.Operator.Kind()), node.ID, took, false))

	if r.failedNode == "" {
		r.failedNode = node.ID
		r.cause = err
	}

	for _, d := range r.graph.Descendants(node.ID) {
		if r.state.Status(d) == StatusPending {
			r.skip(d, fmt.Sprintf("upstream %s failed", node.ID))
		}
	}
}

func (r *run) scheduleRetry(id string, delay time.Duration) {
	r.timers[id] = time.AfterFunc(delay, func() {
		select {
		case r.retries <- id:
		case <-r.done:
		}
	})
}

func (r *run) requeue(id string) {
	if _, waiting := r.timers[id]; !waiting {
		return
	}
	delete(r.timers, id)
	r.ready = append(r.ready, id)
}

// cancel skips everything that has not started. Running attempts are left
// to finish and their results discarded in complete.
func (r *run) cancel() {
	r.cancelled = true
	logger.User.Warnf("Run %s cancelled: %v", r.env.RunID, r.ctx.Err())

	waiting := make([]string, 0, len(r.timers))
	for id, t := range r.timers {
		t.Stop()
		waiting = append(waiting, id)
	}
	sort.Strings(waiting)
	for _, id := range waiting {
		delete(r.timers, id)
		r.skip(id, "run cancelled while waiting to retry")
	}

	r.ready = nil
	for _, id := range r.state.IDs(StatusPending) {
		r.skip(id, "run cancelled")
	}
}

func (r *run) skip(id, reason string) {
	r.state.update(id, func(st *NodeState) {
		st.Status = StatusSkipped
	})
	logger.User.Skipf("Skipping task %s: %s", id, reason)
}

func (r *run) outcome() *Outcome {
	// Anything still pending can no longer become ready
	for _, id := range r.state.IDs(StatusPending) {
		r.skip(id, "unreachable")
	}

	nodes := r.state.Snapshot()
	o := &Outcome{
		RunID:      r.env.RunID,
		Status:     RunSuccess,
		FailedNode: r.failedNode,
		Nodes:      nodes,
		Duration:   time.Since(r.startTime),
	}
	for _, st := range nodes {
		if st.Status != StatusSuccess {
			o.Status = RunFailed
			break
		}
	}
	if o.Status == RunFailed {
		o.Cancelled = r.cancelled
		switch {
		case r.cause != nil && r.cancelled:
			// The failed node's error stays first so it is never hidden by the cancellation
			o.Cause = errors.Join(r.cause, r.ctx.Err())
		case r.cause != nil:
			o.Cause = r.cause
		case r.cancelled:
			o.Cause = r.ctx.Err()
		default:
			o.Cause = errors.New("run did not complete")
		}
	}
	return o
}

// progressInfo builds a progress snapshot broken down by operator kind
func (r *run) progressInfo() progress.ProgressInfo {
	elapsed := time.Since(r.startTime)
	info := progress.ProgressInfo{
		RunID:         r.env.RunID,
		ElapsedTime:   elapsed,
		TaskBreakdown: make(map[string]progress.TaskStats),
	}

	for id, st := range r.state.Snapshot() {
		node, _ := r.graph.Node(id)
		kind := string(node.Operator.Kind())
		stats := info.TaskBreakdown[kind]
		stats.Total++
		info.TotalTasks++

		switch st.Status {
		case StatusSuccess:
			stats.Succeeded++
			info.SucceededTasks++
		case StatusFailed:
			stats.Failed++
			info.FailedTasks++
		case StatusSkipped:
			stats.Skipped++
			info.SkippedTasks++
		case StatusRunning:
			stats.Running++
			stats.RunningTasks = append(stats.RunningTasks, id)
			info.RunningTasks++
		case StatusPending:
			stats.Pending++
			if st.Attempts > 0 {
				info.RetryingTasks++
			}
		}
		info.TaskBreakdown[kind] = stats
	}

	for kind, stats := range info.TaskBreakdown {
		sort.Strings(stats.RunningTasks)
		info.TaskBreakdown[kind] = stats
	}
	info.EstimatedTimeLeft = progress.CalculateETA(info.Finished(), info.TotalTasks, elapsed)
	return info
}

// logFinal logs the final execution summary
func (r *run) logFinal(o *Outcome) {
	elapsed := progress.FormatDuration(o.Duration)
	succeeded := o.Count(StatusSuccess)

	logger.Op.WithFields(map[string]interface{}{
		"run_id":      o.RunID,
		"status":      o.Status.String(),
		"failed_node": o.FailedNode,
		"succeeded":   succeeded,
		"failed":      o.Count(StatusFailed),
		"skipped":     o.Count(StatusSkipped),
		"duration":    o.Duration.String(),
	}).Info("Run finished")

	if o.Succeeded() {
		logger.User.Successf("Run %s completed: %d/%d tasks successful in %s",
			o.RunID, succeeded, len(o.Nodes), elapsed)
		return
	}
	logger.User.Errorf("Run %s failed: %d successful, %d failed, %d skipped in %s",
		o.RunID, succeeded, o.Count(StatusFailed), o.Count(StatusSkipped), elapsed)
}
