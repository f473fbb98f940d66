package domain

// Built-in defaults for cache-only mode. Seeding is idempotent: a manager
// merges these by id into whatever the cache already holds, so re-running
// never duplicates a record. Ids are fixed strings, not client ids, so
// every offline device seeds the same set.

func SeedSOPs() []SOP {
	return []SOP{
		{
			ID:          "sop-opening",
			Title:       "Opening checklist",
			Description: "Daily site opening procedure",
			Category:    "daily",
			Status:      StatusActive,
			Steps: []Step{
				{ID: "sop-opening-1", Title: "Unlock and disarm"},
				{ID: "sop-opening-2", Title: "Walk the floor", RequiresPhoto: true},
				{ID: "sop-opening-3", Title: "Power up equipment"},
			},
			CreatedAt: seedTS,
			UpdatedAt: seedTS,
			CreatedBy: "system",
		},
		{
			ID:          "sop-closing",
			Title:       "Closing checklist",
			Category:    "daily",
			Status:      StatusActive,
			Steps: []Step{
				{ID: "sop-closing-1", Title: "Power down equipment"},
				{ID: "sop-closing-2", Title: "Lock up", RequiresPhoto: true},
			},
			CreatedAt: seedTS,
			UpdatedAt: seedTS,
			CreatedBy: "system",
		},
	}
}

func SeedJobs() []Job {
	return []Job{
		{
			ID:         "job-demo",
			Title:      "Demo job",
			Status:     StatusPending,
			TotalTasks: 2,
			CreatedAt:  seedTS,
			UpdatedAt:  seedTS,
			CreatedBy:  "system",
		},
	}
}

func SeedJobTasks() []JobTask {
	return []JobTask{
		{
			ID:     "task-demo-1",
			JobID:  "job-demo",
			Title:  "Prepare site",
			Status: StatusPending,
			Steps: []Step{
				{ID: "task-demo-1-1", Title: "Review opening checklist", SOPRef: "sop-opening"},
				{ID: "task-demo-1-2", Title: "Stage materials"},
				{ID: "task-demo-1-3", Title: "Confirm access"},
			},
			CreatedAt: seedTS,
			UpdatedAt: seedTS,
			CreatedBy: "system",
		},
		{
			ID:        "task-demo-2",
			JobID:     "job-demo",
			Title:     "Sign off",
			Status:    StatusPending,
			CreatedAt: seedTS,
			UpdatedAt: seedTS,
			CreatedBy: "system",
		},
	}
}

const seedTS = "2024-01-01T00:00:00Z"
