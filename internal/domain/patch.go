package domain

// Patches are the closed set of fields each entity accepts on update.
// Nil fields are left untouched; unknown fields cannot be expressed.
//
// Every field a patch can clear serializes without omitempty: updates
// travel as full records and the store merges key by key, so a cleared
// value must appear explicitly or the store keeps the stale one.

type SOPPatch struct {
	Title       *string
	Description *string
	Category    *string
	Steps       *[]Step
	Status      *string
}

func (p SOPPatch) Apply(s SOP) SOP {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Category != nil {
		s.Category = *p.Category
	}
	if p.Steps != nil {
		s.Steps = *p.Steps
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	return s
}

type JobTaskPatch struct {
	Title          *string
	Description    *string
	Steps          *[]Step
	CompletedSteps *[]string
	Status         *string
	AssigneeID     *string
	DueDate        *string
}

func (p JobTaskPatch) Apply(t JobTask) JobTask {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Steps != nil {
		t.Steps = *p.Steps
	}
	if p.CompletedSteps != nil {
		t.CompletedSteps = *p.CompletedSteps
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.AssigneeID != nil {
		t.AssigneeID = *p.AssigneeID
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	return t
}

type JobPatch struct {
	Title          *string
	Description    *string
	Status         *string
	CompletedTasks *int
	TotalTasks     *int
	Progress       *int
	CompletedAt    **string
	CompletedBy    **string
}

func (p JobPatch) Apply(j Job) Job {
	if p.Title != nil {
		j.Title = *p.Title
	}
	if p.Description != nil {
		j.Description = *p.Description
	}
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.CompletedTasks != nil {
		j.CompletedTasks = *p.CompletedTasks
	}
	if p.TotalTasks != nil {
		j.TotalTasks = *p.TotalTasks
	}
	if p.Progress != nil {
		j.Progress = *p.Progress
	}
	if p.CompletedAt != nil {
		j.CompletedAt = *p.CompletedAt
	}
	if p.CompletedBy != nil {
		j.CompletedBy = *p.CompletedBy
	}
	return j
}

type WorkEntryPatch struct {
	Date    *string
	Minutes *int
	Note    *string
}

func (p WorkEntryPatch) Apply(w WorkEntry) WorkEntry {
	if p.Date != nil {
		w.Date = *p.Date
	}
	if p.Minutes != nil {
		w.Minutes = *p.Minutes
	}
	if p.Note != nil {
		w.Note = *p.Note
	}
	return w
}
