// Package progress derives completion percentage and status from a
// completion set. Derivation is pure: no clock, no store, no hidden state.
package progress

import (
	"math"

	"opsline/internal/domain"
)

// Result is the derived view of one entity's completion state.
type Result struct {
	CompletedCount int
	TotalCount     int
	Percentage     int
	Status         string
}

// ForSteps derives progress for a step-bearing entity. Only ids present in
// the step list count toward completion; unknown ids and the zero-step
// sentinel are ignored when steps exist. With zero steps the sentinel
// alone decides between 0 and 100. A blocked or overdue status is
// preserved until completion reaches 100%, at which point completed wins.
func ForSteps(steps []domain.Step, completed []string, current string) Result {
	ids := make(map[string]bool, len(steps))
	for _, s := range steps {
		ids[s.ID] = true
	}
	done := 0
	sentinel := false
	seen := make(map[string]bool, len(completed))
	for _, c := range completed {
		if seen[c] {
			continue
		}
		seen[c] = true
		if c == domain.SentinelComplete {
			sentinel = true
			continue
		}
		if ids[c] {
			done++
		}
	}
	return derive(done, len(steps), sentinel, current)
}

// ForJob derives job-level progress: the unit of completion is a task and
// a task counts as complete when its status is completed.
func ForJob(tasks []domain.JobTask, current string) Result {
	done := 0
	for _, t := range tasks {
		if t.Status == domain.StatusCompleted {
			done++
		}
	}
	return derive(done, len(tasks), false, current)
}

func derive(done, total int, sentinel bool, current string) Result {
	r := Result{CompletedCount: done, TotalCount: total}
	complete := false
	if total == 0 {
		if sentinel {
			r.CompletedCount = 1
			r.Percentage = 100
			complete = true
		}
	} else {
		r.Percentage = int(math.Round(100 * float64(done) / float64(total)))
		complete = done == total
	}
	switch {
	case complete:
		r.Status = domain.StatusCompleted
	case current == domain.StatusBlocked || current == domain.StatusOverdue:
		r.Status = current
	case done == 0:
		r.Status = domain.StatusPending
	default:
		r.Status = domain.StatusInProgress
	}
	return r
}
