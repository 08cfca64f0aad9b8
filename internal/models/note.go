// Package models defines the domain types for vaultd.
package models

// NoteID identifies a note by its vault-relative, slash-separated path.
type NoteID string

// TaskID is the author-supplied task token, e.g. "T-2025-001".
type TaskID string

// LogEntryID is "<note id>:<line number>".
type LogEntryID string

// Note is a Markdown file in the vault together with its full content.
type Note struct {
	ID       NoteID `json:"id"`
	Path     string `json:"path"`
	Title    string `json:"title"`
	Date     *Date  `json:"date"`
	Content  string `json:"content"`
	Checksum string `json:"checksum"`
}

// Meta returns the lightweight projection of n.
func (n Note) Meta() NoteMeta {
	return NoteMeta{
		ID:    n.ID,
		Path:  n.Path,
		Title: n.Title,
		Date:  n.Date,
	}
}

// NoteMeta is a lightweight representation returned by list operations.
type NoteMeta struct {
	ID    NoteID `json:"id"`
	Path  string `json:"path"`
	Title string `json:"title"`
	Date  *Date  `json:"date"`
}

// LogEntry is one list item of a note's "## Log" section.
type LogEntry struct {
	ID         LogEntryID `json:"id"`
	NoteID     NoteID     `json:"note_id"`
	LineNumber int        `json:"line_number"`
	Timestamp  *string    `json:"timestamp"`
	Content    string     `json:"content_md"`
	Tags       []string   `json:"tags"`
	TaskIDs    []TaskID   `json:"task_ids"`
}

// TaskMention records that a log entry references a task.
type TaskMention struct {
	TaskID     TaskID      `json:"task_id"`
	NoteID     NoteID      `json:"note_id"`
	LogEntryID *LogEntryID `json:"log_entry_id"`
	Excerpt    string      `json:"excerpt"`
}

// ParsedNote is everything the parser derives from a single note.
type ParsedNote struct {
	Note       Note
	Tasks      []Task
	LogEntries []LogEntry
	Mentions   []TaskMention
}
