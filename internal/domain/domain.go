package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Statuses derived from a completion set. Blocked and overdue are never
// derived; they are set by explicit transitions and preserved until the
// completion set reaches 100%.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusBlocked    = "blocked"
	StatusOverdue    = "overdue"
)

// Archive statuses for records with soft-delete semantics.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// SentinelComplete marks a zero-step task as completed as a single unit.
// It may appear in a completion set alongside no step ids.
const SentinelComplete = "task-complete"

// Meta carries the record fields stamped by a collection manager.
// Empty fields are left untouched by WithMeta implementations.
type Meta struct {
	ID        string
	CreatedAt string
	UpdatedAt string
	CreatedBy string
}

// Actor identifies who performed a mutation.
type Actor struct {
	ID   string
	Name string
}

// Record is implemented by every entity a collection manager owns.
// WithMeta returns a copy with non-empty meta fields applied; the
// receiver is never mutated.
type Record[T any] interface {
	RecordID() string
	WithMeta(Meta) T
}

// NewClientID builds a cache-mode record id from a timestamp and a random
// suffix so two devices seeding offline never collide. Remote-mode ids are
// assigned by the server and never mixed with client ids for one record.
func NewClientID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// Step is an ordered unit of work inside an SOP or a job task.
type Step struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	RequiresPhoto bool   `json:"requires_photo,omitempty"`
	SOPRef        string `json:"sop_ref,omitempty"`
}

type SOP struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Steps       []Step `json:"steps"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
	CreatedBy   string `json:"created_by,omitempty"`
}

func (s SOP) RecordID() string { return s.ID }

func (s SOP) WithMeta(m Meta) SOP {
	applyMeta(&s.ID, &s.CreatedAt, &s.UpdatedAt, &s.CreatedBy, m)
	return s
}

// JobTask is a unit of work inside a job. CompletedSteps is the completion
// set: step ids plus at most the SentinelComplete marker for zero-step
// tasks. Status and Progress are derived from it, never edited directly.
type JobTask struct {
	ID             string   `json:"id"`
	JobID          string   `json:"job_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Steps          []Step   `json:"steps"`
	CompletedSteps []string `json:"completed_steps"`
	Status         string   `json:"status" enum:"pending,in-progress,completed,blocked,overdue"`
	Progress       int      `json:"progress"`
	AssigneeID     string   `json:"assignee_id"`
	DueDate        string   `json:"due_date"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	UpdatedAt      string   `json:"updated_at" format:"date-time"`
	CreatedBy      string   `json:"created_by,omitempty"`
}

func (t JobTask) RecordID() string { return t.ID }

func (t JobTask) WithMeta(m Meta) JobTask {
	applyMeta(&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.CreatedBy, m)
	return t
}

// Job aggregates tasks and carries the same derivation one level up:
// a task counts as complete when its status is completed.
type Job struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Status         string  `json:"status"`
	CompletedTasks int     `json:"completed_tasks"`
	TotalTasks     int     `json:"total_tasks"`
	Progress       int     `json:"progress"`
	CompletedAt    *string `json:"completed_at" format:"date-time"`
	CompletedBy    *string `json:"completed_by"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
	CreatedBy      string  `json:"created_by,omitempty"`
}

func (j Job) RecordID() string { return j.ID }

func (j Job) WithMeta(m Meta) Job {
	applyMeta(&j.ID, &j.CreatedAt, &j.UpdatedAt, &j.CreatedBy, m)
	return j
}

type WorkEntry struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
	Date      string `json:"date" format:"date"`
	Minutes   int    `json:"minutes"`
	Note      string `json:"note"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
	CreatedBy string `json:"created_by,omitempty"`
}

func (w WorkEntry) RecordID() string { return w.ID }

func (w WorkEntry) WithMeta(m Meta) WorkEntry {
	applyMeta(&w.ID, &w.CreatedAt, &w.UpdatedAt, &w.CreatedBy, m)
	return w
}

// ActivityEntry records who did what to which entity.
type ActivityEntry struct {
	ID          string `json:"id"`
	ActorID     string `json:"actor_id"`
	ActorName   string `json:"actor_name,omitempty"`
	Action      string `json:"action"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id"`
	EntityTitle string `json:"entity_title,omitempty"`
	Details     string `json:"details,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
	CreatedBy   string `json:"created_by,omitempty"`
}

func (a ActivityEntry) RecordID() string { return a.ID }

func (a ActivityEntry) WithMeta(m Meta) ActivityEntry {
	applyMeta(&a.ID, &a.CreatedAt, &a.UpdatedAt, &a.CreatedBy, m)
	return a
}

func applyMeta(id, createdAt, updatedAt, createdBy *string, m Meta) {
	if m.ID != "" {
		*id = m.ID
	}
	if m.CreatedAt != "" {
		*createdAt = m.CreatedAt
	}
	if m.UpdatedAt != "" {
		*updatedAt = m.UpdatedAt
	}
	if m.CreatedBy != "" {
		*createdBy = m.CreatedBy
	}
}

// Mutation actions recorded in the activity log.
const (
	ActionCreated       = "created"
	ActionUpdated       = "updated"
	ActionDeleted       = "deleted"
	ActionArchived      = "archived"
	ActionRestored      = "restored"
	ActionStepCompleted = "step-completed"
	ActionStepReopened  = "step-reopened"
)

// MutationEvent is emitted by a collection manager after a successful
// mutation and consumed by the activity writer. Emission never blocks the
// mutation path; a full consumer drops the event instead.
type MutationEvent struct {
	Actor       Actor
	Action      string
	EntityKind  string
	EntityID    string
	EntityTitle string
	Details     string
}
