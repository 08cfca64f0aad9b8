// Package index keeps the in-memory index of everything derived from the vault
// and the machinery that feeds it.
package index

import (
	"slices"
	"sort"
	"strings"

	"github.com/starford/vaultd/internal/models"
)

// Store defines the index operations. Implementations are not safe for
// concurrent use; callers serialize access.
type Store interface {
	UpsertParsedNote(parsed models.ParsedNote)
	RemoveNote(id models.NoteID)
	GetTask(id models.TaskID) (models.Task, bool)
	GetNote(id models.NoteID) (models.Note, bool)
	ListTasks(filter models.TaskFilter) []models.Task
	LogEntriesForTask(id models.TaskID) []models.LogEntry
	MentionsForTask(id models.TaskID) []models.TaskMention
	ListNotesByDate(r models.DateRange) []models.NoteMeta
	ListTags() []string
	ItemsForTag(tag string) models.TagResult
	NoteIDs() []models.NoteID
}

// MemStore is the map-backed Store. Primary records are keyed by id; every
// other map is a reverse index rebuilt from primary data on upsert.
type MemStore struct {
	notes      map[models.NoteID]models.NoteMeta
	content    map[models.NoteID]models.Note
	tasks      map[models.TaskID]models.Task
	logEntries map[models.LogEntryID]models.LogEntry

	mentionsByTask   map[models.TaskID][]models.TaskMention
	tagTasks         map[string][]models.TaskID
	tagLogEntries    map[string][]models.LogEntryID
	taskRefs         map[models.TaskID][]models.LogEntryID
	noteTasks        map[models.NoteID][]models.TaskID
	noteLogEntries   map[models.NoteID][]models.LogEntryID
	noteMentionTasks map[models.NoteID][]models.TaskID
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		notes:            make(map[models.NoteID]models.NoteMeta),
		content:          make(map[models.NoteID]models.Note),
		tasks:            make(map[models.TaskID]models.Task),
		logEntries:       make(map[models.LogEntryID]models.LogEntry),
		mentionsByTask:   make(map[models.TaskID][]models.TaskMention),
		tagTasks:         make(map[string][]models.TaskID),
		tagLogEntries:    make(map[string][]models.LogEntryID),
		taskRefs:         make(map[models.TaskID][]models.LogEntryID),
		noteTasks:        make(map[models.NoteID][]models.TaskID),
		noteLogEntries:   make(map[models.NoteID][]models.LogEntryID),
		noteMentionTasks: make(map[models.NoteID][]models.TaskID),
	}
}

// UpsertParsedNote replaces everything previously derived from the note with
// the contents of parsed. A task id already owned by another note moves to
// this one.
func (s *MemStore) UpsertParsedNote(parsed models.ParsedNote) {
	id := parsed.Note.ID
	s.RemoveNote(id)

	s.notes[id] = parsed.Note.Meta()
	s.content[id] = parsed.Note

	for _, task := range parsed.Tasks {
		if prev, ok := s.tasks[task.ID]; ok {
			s.detachTask(prev)
		}
		s.tasks[task.ID] = task
		for _, tag := range unique(task.Tags) {
			s.tagTasks[tag] = append(s.tagTasks[tag], task.ID)
		}
		s.noteTasks[id] = appendUnique(s.noteTasks[id], task.ID)
	}

	for _, entry := range parsed.LogEntries {
		s.logEntries[entry.ID] = entry
		for _, tag := range unique(entry.Tags) {
			s.tagLogEntries[tag] = append(s.tagLogEntries[tag], entry.ID)
		}
		for _, taskID := range unique(entry.TaskIDs) {
			s.taskRefs[taskID] = append(s.taskRefs[taskID], entry.ID)
		}
		s.noteLogEntries[id] = append(s.noteLogEntries[id], entry.ID)
	}

	for _, m := range parsed.Mentions {
		s.mentionsByTask[m.TaskID] = append(s.mentionsByTask[m.TaskID], m)
		s.noteMentionTasks[id] = appendUnique(s.noteMentionTasks[id], m.TaskID)
	}
}

// RemoveNote drops the note and every task, log entry, and mention derived
// from it. Unknown ids are ignored.
func (s *MemStore) RemoveNote(id models.NoteID) {
	delete(s.notes, id)
	delete(s.content, id)

	for _, taskID := range s.noteTasks[id] {
		if task, ok := s.tasks[taskID]; ok && ownedBy(task, id) {
			s.unindexTask(task)
			delete(s.tasks, taskID)
		}
	}
	delete(s.noteTasks, id)

	for _, entryID := range s.noteLogEntries[id] {
		if entry, ok := s.logEntries[entryID]; ok {
			s.unindexLogEntry(entry)
			delete(s.logEntries, entryID)
		}
	}
	delete(s.noteLogEntries, id)

	for _, taskID := range s.noteMentionTasks[id] {
		kept := slices.DeleteFunc(s.mentionsByTask[taskID], func(m models.TaskMention) bool {
			return m.NoteID == id
		})
		if len(kept) == 0 {
			delete(s.mentionsByTask, taskID)
		} else {
			s.mentionsByTask[taskID] = kept
		}
	}
	delete(s.noteMentionTasks, id)
}

// detachTask removes task from the indices and from its owning note's list.
func (s *MemStore) detachTask(task models.Task) {
	s.unindexTask(task)
	delete(s.tasks, task.ID)
	if task.SourceNoteID != nil {
		removeFromBucket(s.noteTasks, *task.SourceNoteID, task.ID)
	}
}

func (s *MemStore) unindexTask(task models.Task) {
	for _, tag := range unique(task.Tags) {
		removeFromBucket(s.tagTasks, tag, task.ID)
	}
}

func (s *MemStore) unindexLogEntry(entry models.LogEntry) {
	for _, tag := range unique(entry.Tags) {
		removeFromBucket(s.tagLogEntries, tag, entry.ID)
	}
	for _, taskID := range unique(entry.TaskIDs) {
		removeFromBucket(s.taskRefs, taskID, entry.ID)
	}
}

// GetTask returns the task with the given id.
func (s *MemStore) GetTask(id models.TaskID) (models.Task, bool) {
	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return cloneTask(task), true
}

// GetNote returns the note with full content.
func (s *MemStore) GetNote(id models.NoteID) (models.Note, bool) {
	note, ok := s.content[id]
	return note, ok
}

// ListTasks returns the tasks matching every set field of filter, ordered by id.
func (s *MemStore) ListTasks(filter models.TaskFilter) []models.Task {
	var search string
	if filter.TextSearch != nil {
		search = strings.ToLower(*filter.TextSearch)
	}

	out := []models.Task{}
	for _, task := range s.tasks {
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		if !hasAllTags(task.Tags, filter.Tags) {
			continue
		}
		if filter.TextSearch != nil && !matchesText(task, search) {
			continue
		}
		if filter.TouchedSince != nil && !touchedSince(task, *filter.TouchedSince) {
			continue
		}
		out = append(out, cloneTask(task))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func hasAllTags(have, want []string) bool {
	for _, tag := range want {
		if !slices.Contains(have, tag) {
			return false
		}
	}
	return true
}

func matchesText(task models.Task, lowered string) bool {
	if strings.Contains(strings.ToLower(task.Title), lowered) {
		return true
	}
	return task.Description != nil && strings.Contains(strings.ToLower(*task.Description), lowered)
}

func touchedSince(task models.Task, since models.Date) bool {
	if !models.DateOf(task.UpdatedAt).Before(since) {
		return true
	}
	return task.ClosedAt != nil && !models.DateOf(*task.ClosedAt).Before(since)
}

// LogEntriesForTask returns the log entries that reference the task.
func (s *MemStore) LogEntriesForTask(id models.TaskID) []models.LogEntry {
	out := []models.LogEntry{}
	for _, entryID := range s.taskRefs[id] {
		if entry, ok := s.logEntries[entryID]; ok {
			out = append(out, entry)
		}
	}
	return out
}

// MentionsForTask returns the backlinks recorded for the task.
func (s *MemStore) MentionsForTask(id models.TaskID) []models.TaskMention {
	out := slices.Clone(s.mentionsByTask[id])
	if out == nil {
		return []models.TaskMention{}
	}
	return out
}

// ListNotesByDate returns the dated notes within r, ascending by date.
func (s *MemStore) ListNotesByDate(r models.DateRange) []models.NoteMeta {
	out := []models.NoteMeta{}
	for _, meta := range s.notes {
		if meta.Date != nil && r.Contains(*meta.Date) {
			out = append(out, meta)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(*out[j].Date) {
			return out[i].Date.Before(*out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListTags returns every tag carried by a task or log entry, sorted.
func (s *MemStore) ListTags() []string {
	out := make([]string, 0, len(s.tagTasks)+len(s.tagLogEntries))
	for tag := range s.tagTasks {
		out = append(out, tag)
	}
	for tag := range s.tagLogEntries {
		if _, ok := s.tagTasks[tag]; !ok {
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

// ItemsForTag returns the tasks and log entries indexed under tag exactly.
func (s *MemStore) ItemsForTag(tag string) models.TagResult {
	res := models.TagResult{
		Tag:        tag,
		Tasks:      []models.Task{},
		LogEntries: []models.LogEntry{},
	}
	for _, id := range s.tagTasks[tag] {
		if task, ok := s.tasks[id]; ok {
			res.Tasks = append(res.Tasks, cloneTask(task))
		}
	}
	for _, id := range s.tagLogEntries[tag] {
		if entry, ok := s.logEntries[id]; ok {
			res.LogEntries = append(res.LogEntries, entry)
		}
	}
	return res
}

// NoteIDs returns the id of every indexed note, sorted.
func (s *MemStore) NoteIDs() []models.NoteID {
	out := make([]models.NoteID, 0, len(s.notes))
	for id := range s.notes {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func ownedBy(task models.Task, id models.NoteID) bool {
	return task.SourceNoteID == nil || *task.SourceNoteID == id
}

func cloneTask(t models.Task) models.Task {
	t.Tags = slices.Clone(t.Tags)
	return t
}

func unique[T comparable](in []T) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func appendUnique[T comparable](s []T, v T) []T {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}

// removeFromBucket drops v from m[key] and prunes the bucket when it empties.
func removeFromBucket[K comparable, V comparable](m map[K][]V, key K, v V) {
	bucket, ok := m[key]
	if !ok {
		return
	}
	bucket = slices.DeleteFunc(bucket, func(x V) bool { return x == v })
	if len(bucket) == 0 {
		delete(m, key)
		return
	}
	m[key] = bucket
}
