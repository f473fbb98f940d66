// Package engine wires the collection managers, the activity writer, the
// realtime dispatcher and the session timer into one facade. It owns the
// cross-collection rules: completing a step rederives its task, and any
// task change rederives the owning job.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"opsline/internal/activity"
	"opsline/internal/cache"
	"opsline/internal/collection"
	"opsline/internal/config"
	"opsline/internal/domain"
	"opsline/internal/progress"
	"opsline/internal/realtime"
	"opsline/internal/remote"
	"opsline/internal/session"
)

// Table names, shared with the store schema.
const (
	TableSOPs     = "sops"
	TableTasks    = "job_tasks"
	TableJobs     = "jobs"
	TableHours    = "work_entries"
	TableActivity = "activity_logs"
)

const eventBuffer = 64

// Options configures an engine.
type Options struct {
	Workspace string
	Config    *config.Config

	// OnSessionWarn and OnSessionExpire surface session transitions to
	// the caller (a prompt in the CLI). Expiry always clears the bearer
	// token before OnSessionExpire runs.
	OnSessionWarn   func()
	OnSessionExpire func()

	Now func() time.Time
}

type Engine struct {
	mode  config.Mode
	cache *cache.Store

	SOPs     *collection.Manager[domain.SOP]
	Tasks    *collection.Manager[domain.JobTask]
	Jobs     *collection.Manager[domain.Job]
	Hours    *collection.Manager[domain.WorkEntry]
	Activity *collection.Manager[domain.ActivityEntry]

	events     chan domain.MutationEvent
	writer     *activity.Writer
	writerStop chan struct{}
	writerDone chan struct{}

	client     *remote.Client
	dispatcher *realtime.Dispatcher
	session    *session.Timer

	mu    sync.Mutex
	actor domain.Actor
	token string

	closeOnce sync.Once
	closeErr  error

	now func() time.Time
}

// New builds an engine from config. The mode is resolved once here and
// injected everywhere; it never changes for the life of the engine.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	store, err := cache.Open(opts.Workspace)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	e := &Engine{
		mode:       cfg.Mode(),
		cache:      store,
		events:     make(chan domain.MutationEvent, eventBuffer),
		writerStop: make(chan struct{}),
		actor:      domain.Actor{ID: "local", Name: "Local"},
		now:        opts.Now,
	}

	if e.mode.RemoteActive() {
		e.token = cfg.Remote.Token
		e.client = remote.New(cfg.Remote.URL, e.tokenSource)
		e.dispatcher = realtime.New(e.client)
	}

	e.session = session.New(cfg.SessionTimeout(), cfg.SessionWarning(), session.Options{
		OnWarn: opts.OnSessionWarn,
		OnExpire: func() {
			e.setToken("")
			if opts.OnSessionExpire != nil {
				opts.OnSessionExpire()
			}
		},
	})

	var rstore remote.Store
	if e.client != nil {
		rstore = e.client
	}

	e.SOPs = collection.New(collection.Options[domain.SOP]{
		Table:  TableSOPs,
		Mode:   e.mode,
		Remote: rstore,
		Cache:  store,
		Seed:   domain.SeedSOPs(),
		Title:  func(s domain.SOP) string { return s.Title },
		Events: e.events,
		Now:    opts.Now,
	})
	e.Tasks = collection.New(collection.Options[domain.JobTask]{
		Table:  TableTasks,
		Mode:   e.mode,
		Remote: rstore,
		Cache:  store,
		Seed:   domain.SeedJobTasks(),
		Title:  func(t domain.JobTask) string { return t.Title },
		Derive: deriveTask,
		Events: e.events,
		Now:    opts.Now,
	})
	e.Jobs = collection.New(collection.Options[domain.Job]{
		Table:  TableJobs,
		Mode:   e.mode,
		Remote: rstore,
		Cache:  store,
		Seed:   domain.SeedJobs(),
		Title:  func(j domain.Job) string { return j.Title },
		Events: e.events,
		Now:    opts.Now,
	})
	e.Hours = collection.New(collection.Options[domain.WorkEntry]{
		Table:  TableHours,
		Mode:   e.mode,
		Remote: rstore,
		Cache:  store,
		Title:  func(w domain.WorkEntry) string { return w.Date },
		Events: e.events,
		Now:    opts.Now,
	})
	// The activity manager emits no events of its own: recording an entry
	// must not record another entry.
	e.Activity = collection.New(collection.Options[domain.ActivityEntry]{
		Table:  TableActivity,
		Mode:   e.mode,
		Remote: rstore,
		Cache:  store,
		Now:    opts.Now,
	})

	e.writer = &activity.Writer{
		Log:       e.Activity,
		Mode:      e.mode,
		MaxCached: cfg.Activity.MaxCachedEntries,
	}
	return e, nil
}

func deriveTask(t domain.JobTask) domain.JobTask {
	r := progress.ForSteps(t.Steps, t.CompletedSteps, t.Status)
	t.Progress = r.Percentage
	t.Status = r.Status
	return t
}

// Start loads every collection and, in remote mode, begins watching the
// change feeds. The activity writer runs until Close.
func (e *Engine) Start(ctx context.Context) error {
	e.writerDone = make(chan struct{})
	go func() {
		defer close(e.writerDone)
		e.writer.Run(ctx, e.events, e.writerStop)
	}()

	if err := e.LoadAll(ctx); err != nil {
		return err
	}
	if e.dispatcher != nil {
		watches := []struct {
			table string
			r     realtime.Reloader
		}{
			{TableSOPs, e.SOPs},
			{TableTasks, e.Tasks},
			{TableJobs, e.Jobs},
			{TableHours, e.Hours},
			{TableActivity, e.Activity},
		}
		for _, w := range watches {
			if err := e.dispatcher.Watch(ctx, w.table, w.r); err != nil {
				return fmt.Errorf("watch %s: %w", w.table, err)
			}
		}
	}
	return nil
}

// LoadAll reloads every collection from the authoritative source.
func (e *Engine) LoadAll(ctx context.Context) error {
	loaders := []realtime.Reloader{e.SOPs, e.Tasks, e.Jobs, e.Hours, e.Activity}
	for _, l := range loaders {
		if err := l.Load(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close tears down the realtime watches, stops the session timer without
// firing logout and closes the cache. The writer drains pending activity
// events before the cache goes away; the event channel stays open, so a
// mutation racing Close drops its event instead of panicking. Safe to
// call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if e.dispatcher != nil {
			e.dispatcher.Close()
		}
		e.session.Stop()
		close(e.writerStop)
		if e.writerDone != nil {
			<-e.writerDone
		}
		e.closeErr = e.cache.Close()
	})
	return e.closeErr
}

// --- identity and session ---

func (e *Engine) tokenSource() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token
}

func (e *Engine) setToken(token string) {
	e.mu.Lock()
	e.token = token
	e.mu.Unlock()
}

// Actor returns the current identity.
func (e *Engine) Actor() domain.Actor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.actor
}

// Login sets the identity and bearer token and starts the session clock.
func (e *Engine) Login(actor domain.Actor, token string) {
	e.mu.Lock()
	e.actor = actor
	e.token = token
	e.mu.Unlock()
	e.session.Authenticate()
}

// Logout clears the token and stops the clock without firing the expiry
// hook.
func (e *Engine) Logout() {
	e.setToken("")
	e.session.Stop()
}

// Touch records user activity for the inactivity clock.
func (e *Engine) Touch() { e.session.Touch() }

// ExtendSession acknowledges the warning and keeps the session alive.
func (e *Engine) ExtendSession() { e.session.Extend() }

func (e *Engine) SessionState() session.State { return e.session.State() }

// Mode reports the resolved storage mode.
func (e *Engine) Mode() config.Mode { return e.mode }

// --- SOPs ---

func (e *Engine) AddSOP(ctx context.Context, s domain.SOP) (domain.SOP, error) {
	e.session.Touch()
	if s.Status == "" {
		s.Status = domain.StatusActive
	}
	return e.SOPs.Add(ctx, e.Actor(), s)
}

func (e *Engine) UpdateSOP(ctx context.Context, id string, patch domain.SOPPatch) (domain.SOP, error) {
	e.session.Touch()
	return e.SOPs.Update(ctx, e.Actor(), id, patch)
}

// ArchiveSOP soft-deletes: the record stays referenceable from task steps
// but drops out of active listings.
func (e *Engine) ArchiveSOP(ctx context.Context, id string) (domain.SOP, error) {
	e.session.Touch()
	status := domain.StatusArchived
	return e.SOPs.UpdateWithAction(ctx, e.Actor(), id, domain.SOPPatch{Status: &status}, domain.ActionArchived, "")
}

func (e *Engine) RestoreSOP(ctx context.Context, id string) (domain.SOP, error) {
	e.session.Touch()
	status := domain.StatusActive
	return e.SOPs.UpdateWithAction(ctx, e.Actor(), id, domain.SOPPatch{Status: &status}, domain.ActionRestored, "")
}

// ActiveSOPs lists SOPs that are not archived.
func (e *Engine) ActiveSOPs() []domain.SOP {
	var out []domain.SOP
	for _, s := range e.SOPs.Items() {
		if s.Status != domain.StatusArchived {
			out = append(out, s)
		}
	}
	return out
}

// --- jobs ---

func (e *Engine) AddJob(ctx context.Context, j domain.Job) (domain.Job, error) {
	e.session.Touch()
	if j.Status == "" {
		j.Status = domain.StatusPending
	}
	return e.Jobs.Add(ctx, e.Actor(), j)
}

func (e *Engine) ArchiveJob(ctx context.Context, id string) (domain.Job, error) {
	e.session.Touch()
	status := domain.StatusArchived
	return e.Jobs.UpdateWithAction(ctx, e.Actor(), id, domain.JobPatch{Status: &status}, domain.ActionArchived, "")
}

// RestoreJob returns an archived job to derived status by rerunning the
// aggregation over its tasks.
func (e *Engine) RestoreJob(ctx context.Context, id string) (domain.Job, error) {
	e.session.Touch()
	status := domain.StatusPending
	job, err := e.Jobs.UpdateWithAction(ctx, e.Actor(), id, domain.JobPatch{Status: &status}, domain.ActionRestored, "")
	if err != nil {
		return job, err
	}
	if err := e.recomputeJob(ctx, id); err != nil {
		return job, err
	}
	j, _ := e.Jobs.Get(id)
	return j, nil
}

// --- tasks and steps ---

func (e *Engine) AddTask(ctx context.Context, t domain.JobTask) (domain.JobTask, error) {
	e.session.Touch()
	if t.JobID == "" {
		return domain.JobTask{}, fmt.Errorf("task requires a job id")
	}
	if _, ok := e.Jobs.Get(t.JobID); !ok {
		return domain.JobTask{}, fmt.Errorf("unknown job %s", t.JobID)
	}
	created, err := e.Tasks.Add(ctx, e.Actor(), t)
	if err != nil {
		return created, err
	}
	return created, e.recomputeJob(ctx, t.JobID)
}

// CompleteStep adds one step to a task's completion set. Completing an
// already-completed step is a no-op. Derivation runs before the write
// commits, so the stored task always carries matching progress and status.
func (e *Engine) CompleteStep(ctx context.Context, taskID, stepID string) (domain.JobTask, error) {
	e.session.Touch()
	task, ok := e.Tasks.Get(taskID)
	if !ok {
		return domain.JobTask{}, fmt.Errorf("unknown task %s", taskID)
	}
	step, ok := findStep(task.Steps, stepID)
	if !ok {
		return domain.JobTask{}, fmt.Errorf("unknown step %s in task %s", stepID, taskID)
	}
	if contains(task.CompletedSteps, stepID) {
		return task, nil
	}
	set := append(append([]string(nil), task.CompletedSteps...), stepID)
	updated, err := e.Tasks.UpdateWithAction(ctx, e.Actor(), taskID,
		domain.JobTaskPatch{CompletedSteps: &set}, domain.ActionStepCompleted, step.Title)
	if err != nil {
		return updated, err
	}
	return updated, e.recomputeJob(ctx, task.JobID)
}

// UncompleteStep removes one step from a task's completion set, reopening
// a completed task if needed.
func (e *Engine) UncompleteStep(ctx context.Context, taskID, stepID string) (domain.JobTask, error) {
	e.session.Touch()
	task, ok := e.Tasks.Get(taskID)
	if !ok {
		return domain.JobTask{}, fmt.Errorf("unknown task %s", taskID)
	}
	step, ok := findStep(task.Steps, stepID)
	if !ok {
		return domain.JobTask{}, fmt.Errorf("unknown step %s in task %s", stepID, taskID)
	}
	if !contains(task.CompletedSteps, stepID) {
		return task, nil
	}
	set := remove(task.CompletedSteps, stepID)
	updated, err := e.Tasks.UpdateWithAction(ctx, e.Actor(), taskID,
		domain.JobTaskPatch{CompletedSteps: &set}, domain.ActionStepReopened, step.Title)
	if err != nil {
		return updated, err
	}
	return updated, e.recomputeJob(ctx, task.JobID)
}

// ToggleTaskComplete flips a task between complete and not. A task with
// steps gets its full step set or an empty one; a zero-step task toggles
// the completion sentinel instead.
func (e *Engine) ToggleTaskComplete(ctx context.Context, taskID string) (domain.JobTask, error) {
	e.session.Touch()
	task, ok := e.Tasks.Get(taskID)
	if !ok {
		return domain.JobTask{}, fmt.Errorf("unknown task %s", taskID)
	}

	var set []string
	action := domain.ActionStepCompleted
	if task.Status == domain.StatusCompleted {
		set = []string{}
		action = domain.ActionStepReopened
	} else if len(task.Steps) == 0 {
		set = []string{domain.SentinelComplete}
	} else {
		set = make([]string, 0, len(task.Steps))
		for _, s := range task.Steps {
			set = append(set, s.ID)
		}
	}
	updated, err := e.Tasks.UpdateWithAction(ctx, e.Actor(), taskID,
		domain.JobTaskPatch{CompletedSteps: &set}, action, "")
	if err != nil {
		return updated, err
	}
	return updated, e.recomputeJob(ctx, task.JobID)
}

// TasksForJob lists the tasks belonging to one job.
func (e *Engine) TasksForJob(jobID string) []domain.JobTask {
	var out []domain.JobTask
	for _, t := range e.Tasks.Items() {
		if t.JobID == jobID {
			out = append(out, t)
		}
	}
	return out
}

// recomputeJob rederives a job's aggregate from its tasks. Archived jobs
// are left untouched; restore rederives them. Completion metadata is
// stamped when the job first reaches 100% and cleared when it drops back.
func (e *Engine) recomputeJob(ctx context.Context, jobID string) error {
	job, ok := e.Jobs.Get(jobID)
	if !ok {
		return nil
	}
	if job.Status == domain.StatusArchived {
		return nil
	}

	tasks := e.TasksForJob(jobID)
	r := progress.ForJob(tasks, job.Status)

	patch := domain.JobPatch{
		Status:         &r.Status,
		CompletedTasks: &r.CompletedCount,
		TotalTasks:     &r.TotalCount,
		Progress:       &r.Percentage,
	}
	if r.Status == domain.StatusCompleted {
		if job.CompletedAt == nil {
			at := e.now().UTC().Format(time.RFC3339)
			by := e.Actor().ID
			atp, byp := &at, &by
			patch.CompletedAt = &atp
			patch.CompletedBy = &byp
		}
	} else if job.CompletedAt != nil {
		var cleared *string
		patch.CompletedAt = &cleared
		patch.CompletedBy = &cleared
	}

	_, err := e.Jobs.Update(ctx, e.Actor(), jobID, patch)
	return err
}

// --- work hours ---

func (e *Engine) LogHours(ctx context.Context, date string, minutes int, note string) (domain.WorkEntry, error) {
	e.session.Touch()
	if minutes <= 0 {
		return domain.WorkEntry{}, fmt.Errorf("minutes must be positive")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return domain.WorkEntry{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	actor := e.Actor()
	return e.Hours.Add(ctx, actor, domain.WorkEntry{
		UserID:   actor.ID,
		UserName: actor.Name,
		Date:     date,
		Minutes:  minutes,
		Note:     note,
	})
}

// DaySummary is the hours total for one user on one date.
type DaySummary struct {
	UserID  string
	Date    string
	Minutes int
}

// HoursSummary totals logged minutes per user per date, sorted by date
// then user.
func (e *Engine) HoursSummary() []DaySummary {
	type key struct{ user, date string }
	totals := map[key]int{}
	for _, w := range e.Hours.Items() {
		totals[key{w.UserID, w.Date}] += w.Minutes
	}
	out := make([]DaySummary, 0, len(totals))
	for k, minutes := range totals {
		out = append(out, DaySummary{UserID: k.user, Date: k.date, Minutes: minutes})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// RecentActivity returns up to n newest activity entries, newest first.
func (e *Engine) RecentActivity(n int) []domain.ActivityEntry {
	items := e.Activity.Items()
	if n > 0 && len(items) > n {
		items = items[len(items)-n:]
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

func findStep(steps []domain.Step, id string) (domain.Step, bool) {
	for _, s := range steps {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Step{}, false
}

func contains(set []string, id string) bool {
	for _, s := range set {
		if s == id {
			return true
		}
	}
	return false
}

func remove(set []string, id string) []string {
	out := make([]string, 0, len(set))
	for _, s := range set {
		if s != id {
			out = append(out, s)
		}
	}
	return out
}
