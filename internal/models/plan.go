package models

import "time"

// TaskInput is one task to insert into a user's Google Tasks list.
type TaskInput struct {
	Title string    `json:"title"`
	Notes string    `json:"notes,omitempty"`
	Due   time.Time `json:"due,omitempty"`
}

// Plan is a named batch of tasks destined for a single task list.
type Plan struct {
	ListTitle string      `json:"list_title"`
	Tasks     []TaskInput `json:"tasks"`
}
