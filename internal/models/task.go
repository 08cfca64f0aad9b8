package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task statuses.
const (
	StatusOpen       TaskStatus = "Open"
	StatusInProgress TaskStatus = "InProgress"
	StatusDone       TaskStatus = "Done"
	StatusBlocked    TaskStatus = "Blocked"
)

// Statuses lists every valid status.
var Statuses = []TaskStatus{StatusOpen, StatusInProgress, StatusDone, StatusBlocked}

// ParseTaskStatus returns the status named s.
func ParseTaskStatus(s string) (TaskStatus, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// Task is a checkbox item of a note's "## Tasks" section.
type Task struct {
	ID           TaskID     `json:"id"`
	Title        string     `json:"title"`
	Status       TaskStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ClosedAt     *time.Time `json:"closed_at"`
	Tags         []string   `json:"tags"`
	Description  *string    `json:"description_md"`
	SourceNoteID *NoteID    `json:"source_note_id"`
}

// TaskFilter selects tasks. Unset fields impose no constraint.
type TaskFilter struct {
	Status       *TaskStatus
	Tags         []string
	TextSearch   *string
	TouchedSince *Date
}

// TagResult holds every task and log entry carrying a tag.
type TagResult struct {
	Tag        string     `json:"tag"`
	Tasks      []Task     `json:"tasks"`
	LogEntries []LogEntry `json:"log_entries"`
}

// TagCount is a tag together with the number of tasks carrying it.
type TagCount struct {
	Tag   string
	Count int
}

// MarshalJSON encodes the pair as a two-element array.
func (tc TagCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{tc.Tag, tc.Count})
}

// UnmarshalJSON decodes a ["tag", count] pair.
func (tc *TagCount) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("tag count: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &tc.Tag); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &tc.Count)
}

// WeeklySummary aggregates activity over a date range.
type WeeklySummary struct {
	NewTasks       []Task     `json:"new_tasks"`
	CompletedTasks []Task     `json:"completed_tasks"`
	Notes          []NoteMeta `json:"notes"`
	TopTags        []TagCount `json:"top_tags"`
}
