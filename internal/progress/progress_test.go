package progress_test

import (
	"testing"

	"opsline/internal/domain"
	"opsline/internal/progress"
)

func steps(n int) []domain.Step {
	out := make([]domain.Step, n)
	for i := range out {
		out[i] = domain.Step{ID: string(rune('a' + i))}
	}
	return out
}

func TestThreeStepScenario(t *testing.T) {
	s := steps(3)
	r := progress.ForSteps(s, nil, domain.StatusPending)
	if r.Percentage != 0 || r.Status != domain.StatusPending {
		t.Fatalf("empty set: got %d%% %s", r.Percentage, r.Status)
	}
	r = progress.ForSteps(s, []string{"b"}, r.Status)
	if r.Percentage != 33 || r.Status != domain.StatusInProgress {
		t.Fatalf("one done: got %d%% %s", r.Percentage, r.Status)
	}
	r = progress.ForSteps(s, []string{"a", "b", "c"}, r.Status)
	if r.Percentage != 100 || r.Status != domain.StatusCompleted {
		t.Fatalf("all done: got %d%% %s", r.Percentage, r.Status)
	}
	// unmark one: never stays completed
	r = progress.ForSteps(s, []string{"a", "c"}, r.Status)
	if r.Percentage != 67 || r.Status != domain.StatusInProgress {
		t.Fatalf("reopened: got %d%% %s", r.Percentage, r.Status)
	}
}

func TestZeroStepSentinel(t *testing.T) {
	r := progress.ForSteps(nil, nil, domain.StatusPending)
	if r.Percentage != 0 || r.Status != domain.StatusPending {
		t.Fatalf("no sentinel: got %d%% %s", r.Percentage, r.Status)
	}
	r = progress.ForSteps(nil, []string{domain.SentinelComplete}, domain.StatusPending)
	if r.Percentage != 100 || r.Status != domain.StatusCompleted {
		t.Fatalf("sentinel: got %d%% %s", r.Percentage, r.Status)
	}
	if r.CompletedCount != 1 {
		t.Fatalf("sentinel completed count: got %d", r.CompletedCount)
	}
}

func TestUnknownAndDuplicateIDsIgnored(t *testing.T) {
	s := steps(2)
	r := progress.ForSteps(s, []string{"a", "a", "zz", domain.SentinelComplete}, domain.StatusPending)
	if r.CompletedCount != 1 || r.Percentage != 50 || r.Status != domain.StatusInProgress {
		t.Fatalf("got count=%d %d%% %s", r.CompletedCount, r.Percentage, r.Status)
	}
}

func TestBlockedPreservedUntilComplete(t *testing.T) {
	s := steps(2)
	r := progress.ForSteps(s, []string{"a"}, domain.StatusBlocked)
	if r.Status != domain.StatusBlocked {
		t.Fatalf("partial: blocked not preserved, got %s", r.Status)
	}
	r = progress.ForSteps(s, []string{"a", "b"}, domain.StatusBlocked)
	if r.Status != domain.StatusCompleted {
		t.Fatalf("full: completed should win over blocked, got %s", r.Status)
	}
	r = progress.ForSteps(s, nil, domain.StatusOverdue)
	if r.Status != domain.StatusOverdue {
		t.Fatalf("empty: overdue not preserved, got %s", r.Status)
	}
}

func TestIdempotent(t *testing.T) {
	s := steps(3)
	c := []string{"a", "c"}
	first := progress.ForSteps(s, c, domain.StatusPending)
	second := progress.ForSteps(s, c, domain.StatusPending)
	if first != second {
		t.Fatalf("derive not idempotent: %+v vs %+v", first, second)
	}
}

func TestStatusMonotonicUnderGrowth(t *testing.T) {
	rank := map[string]int{
		domain.StatusPending:    0,
		domain.StatusInProgress: 1,
		domain.StatusCompleted:  2,
	}
	s := steps(3)
	sets := [][]string{nil, {"a"}, {"a", "b"}, {"a", "b", "c"}}
	prev := -1
	for _, c := range sets {
		r := progress.ForSteps(s, c, domain.StatusPending)
		if rank[r.Status] < prev {
			t.Fatalf("status regressed at set %v: %s", c, r.Status)
		}
		prev = rank[r.Status]
	}
}

func TestForJobAggregation(t *testing.T) {
	tasks := []domain.JobTask{
		{ID: "t1", Status: domain.StatusCompleted},
		{ID: "t2", Status: domain.StatusInProgress},
		{ID: "t3", Status: domain.StatusPending},
	}
	r := progress.ForJob(tasks, domain.StatusPending)
	if r.CompletedCount != 1 || r.TotalCount != 3 || r.Percentage != 33 {
		t.Fatalf("got %+v", r)
	}
	if r.Status != domain.StatusInProgress {
		t.Fatalf("status: got %s", r.Status)
	}
	tasks[1].Status = domain.StatusCompleted
	tasks[2].Status = domain.StatusCompleted
	r = progress.ForJob(tasks, r.Status)
	if r.Percentage != 100 || r.Status != domain.StatusCompleted {
		t.Fatalf("all tasks done: got %d%% %s", r.Percentage, r.Status)
	}
	r = progress.ForJob(nil, domain.StatusPending)
	if r.Percentage != 0 || r.Status != domain.StatusPending {
		t.Fatalf("no tasks: got %d%% %s", r.Percentage, r.Status)
	}
}
