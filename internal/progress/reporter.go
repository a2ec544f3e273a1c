package progress

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProgressInfo contains detailed progress information for one pipeline run
type ProgressInfo struct {
	RunID             string
	TotalTasks        int
	SucceededTasks    int
	FailedTasks       int
	SkippedTasks      int
	RunningTasks      int
	RetryingTasks     int
	ElapsedTime       time.Duration
	EstimatedTimeLeft time.Duration
	// TaskBreakdown is keyed by operator kind (stage, load_fact, ...)
	TaskBreakdown map[string]TaskStats
}

// Finished is the number of tasks in a terminal state
func (p ProgressInfo) Finished() int {
	return p.SucceededTasks + p.FailedTasks + p.SkippedTasks
}

// TaskStats provides statistics for each operator kind
type TaskStats struct {
	Total        int
	Succeeded    int
	Failed       int
	Skipped      int
	Running      int
	Pending      int
	RunningTasks []string // Names of currently running tasks
}

// Reporter handles progress reporting
type Reporter struct {
	lastReportTime time.Time
	reportInterval time.Duration
}

// NewReporter creates a new progress reporter
func NewReporter(interval time.Duration) *Reporter {
	return &Reporter{
		lastReportTime: time.Now(),
		reportInterval: interval,
	}
}

// ShouldReport returns true if it's time to report progress
func (r *Reporter) ShouldReport() bool {
	return time.Since(r.lastReportTime) >= r.reportInterval
}

// Report generates a formatted progress report
func (r *Reporter) Report(info ProgressInfo) string {
	r.lastReportTime = time.Now()

	var sb strings.Builder

	percentage := 0.0
	if info.TotalTasks > 0 {
		percentage = float64(info.Finished()) / float64(info.TotalTasks) * 100
	}

	if info.RunID != "" {
		sb.WriteString(fmt.Sprintf("[%s] ", info.RunID))
	}
	sb.WriteString(fmt.Sprintf("Progress: %d/%d tasks finished (%.1f%%)",
		info.Finished(), info.TotalTasks, percentage))
	sb.WriteString(fmt.Sprintf(" | Elapsed: %s", FormatDuration(info.ElapsedTime)))
	if info.EstimatedTimeLeft > 0 {
		sb.WriteString(fmt.Sprintf(" | ETA: %s", FormatDuration(info.EstimatedTimeLeft)))
	}
	if info.RetryingTasks > 0 {
		sb.WriteString(fmt.Sprintf(" | %d waiting to retry", info.RetryingTasks))
	}

	if len(info.TaskBreakdown) > 0 {
		kinds := make([]string, 0, len(info.TaskBreakdown))
		for kind := range info.TaskBreakdown {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)

		sb.WriteString("\n   Task Status:")
		for _, kind := range kinds {
			stats := info.TaskBreakdown[kind]
			if stats.Total == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("\n      %s: %d/%d succeeded", kind, stats.Succeeded, stats.Total))
			if stats.Failed > 0 {
				sb.WriteString(fmt.Sprintf(", %d failed", stats.Failed))
			}
			if stats.Skipped > 0 {
				sb.WriteString(fmt.Sprintf(", %d skipped", stats.Skipped))
			}
			if stats.Running > 0 {
				sb.WriteString(fmt.Sprintf(", %d running", stats.Running))
				if len(stats.RunningTasks) > 0 {
					sb.WriteString(fmt.Sprintf(" (%s)", strings.Join(stats.RunningTasks, ", ")))
				}
			}
			if stats.Pending > 0 {
				sb.WriteString(fmt.Sprintf(", %d pending", stats.Pending))
			}
		}
	}

	return sb.String()
}

// ReportTaskComplete reports task completion
func (r *Reporter) ReportTaskComplete(kind, taskID string, duration time.Duration, success bool) string {
	status := "SUCCEEDED"
	if !success {
		status = "FAILED"
	}
	return fmt.Sprintf("%s %s: %s (took %s)", status, kind, taskID, FormatDuration(duration))
}

// CalculateETA estimates time remaining based on current progress
func CalculateETA(completed, total int, elapsed time.Duration) time.Duration {
	if completed <= 0 || total <= 0 || completed >= total {
		return 0
	}

	averageTimePerTask := elapsed / time.Duration(completed)
	remainingTasks := total - completed
	return averageTimePerTask * time.Duration(remainingTasks)
}

// FormatDuration formats a duration in a user-friendly way
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
