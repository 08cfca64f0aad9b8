package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/starford/vaultd/internal/apperr"
	"github.com/starford/vaultd/internal/index"
	"github.com/starford/vaultd/internal/models"
	"github.com/starford/vaultd/internal/storage"
)

const topTagLimit = 10

// TaskDetail is a task together with everything that points at it.
type TaskDetail struct {
	Task       models.Task          `json:"task"`
	Mentions   []models.TaskMention `json:"mentions"`
	LogEntries []models.LogEntry    `json:"log_entries"`
}

// Service coordinates vault and index operations. It is safe for concurrent
// use: writers take the whole index exclusively, readers share it.
type Service struct {
	mu     sync.RWMutex
	vault  *storage.Vault
	mgr    *index.Manager
	store  index.Store
	logger *slog.Logger
}

var _ index.ChangeApplier = (*Service)(nil)

// NewService creates a new note service.
func NewService(vault *storage.Vault, mgr *index.Manager, logger *slog.Logger) *Service {
	return &Service{vault: vault, mgr: mgr, store: mgr.Store(), logger: logger}
}

// ReindexAll rebuilds the index from the vault.
func (s *Service) ReindexAll(ctx context.Context) (index.SyncStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mgr.FullReindex(ctx)
}

// ListTasks returns the tasks matching filter.
func (s *Service) ListTasks(_ context.Context, filter models.TaskFilter) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.ListTasks(filter)
}

// TaskDetail returns the task with its mentions and referencing log entries.
func (s *Service) TaskDetail(_ context.Context, id models.TaskID) (TaskDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.store.GetTask(id)
	if !ok {
		return TaskDetail{}, fmt.Errorf("task %s: %w", id, apperr.ErrNotFound)
	}
	return TaskDetail{
		Task:       task,
		Mentions:   s.store.MentionsForTask(id),
		LogEntries: s.store.LogEntriesForTask(id),
	}, nil
}

// ItemsForTag returns everything tagged with tag.
func (s *Service) ItemsForTag(_ context.Context, tag string) models.TagResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.ItemsForTag(tag)
}

// NotesInRange returns the notes dated within r.
func (s *Service) NotesInRange(_ context.Context, r models.DateRange) []models.NoteMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.ListNotesByDate(r)
}

// ListTags returns every known tag, sorted.
func (s *Service) ListTags(_ context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.ListTags()
}

// ReadNote returns the indexed note.
func (s *Service) ReadNote(_ context.Context, id models.NoteID) (models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.store.GetNote(id)
	if !ok {
		return models.Note{}, fmt.Errorf("note %s: %w", id, apperr.ErrNotFound)
	}
	return note, nil
}

// WriteNote replaces the content of an indexed note with optimistic
// concurrency: a non-empty ifMatch must equal the indexed checksum.
func (s *Service) WriteNote(_ context.Context, id models.NoteID, content, ifMatch string) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.store.GetNote(id)
	if !ok {
		return models.Note{}, fmt.Errorf("note %s: %w", id, apperr.ErrNotFound)
	}
	if ifMatch != "" && ifMatch != note.Checksum {
		return models.Note{}, fmt.Errorf("note %s: %w", id, apperr.ErrConflict)
	}
	if err := s.vault.Write(note.Path, []byte(content)); err != nil {
		return models.Note{}, err
	}
	if _, err := s.mgr.ReindexPath(note.Path); err != nil {
		return models.Note{}, err
	}
	updated, ok := s.store.GetNote(id)
	if !ok {
		return models.Note{}, fmt.Errorf("note %s unavailable after write: %w", id, apperr.ErrInternal)
	}
	s.logger.Info("note written", slog.String("note_id", string(id)))
	return updated, nil
}

// DailyTemplate returns the initial content of the daily note for d.
func DailyTemplate(d models.Date) string {
	return fmt.Sprintf("# %s\n\n## Tasks\n\n## Log\n", d)
}

// OpenDaily returns the note dated d, creating <d>.md at the vault root when
// no such note exists yet. Existing files are never overwritten.
func (s *Service) OpenDaily(_ context.Context, d models.Date) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.store.ListNotesByDate(models.DateRange{Start: d, End: d}); len(existing) > 0 {
		if note, ok := s.store.GetNote(existing[0].ID); ok {
			return note, nil
		}
	}

	p := storage.DailyNotePath(d)
	exists, err := s.vault.Exists(p)
	if err != nil {
		return models.Note{}, err
	}
	if !exists {
		if err := s.vault.Write(p, []byte(DailyTemplate(d))); err != nil {
			return models.Note{}, err
		}
		s.logger.Info("daily note created", slog.String("path", p))
	}

	id, err := s.mgr.ReindexPath(p)
	if err != nil {
		return models.Note{}, err
	}
	note, ok := s.store.GetNote(id)
	if !ok {
		return models.Note{}, fmt.Errorf("note %s unavailable after creation: %w", id, apperr.ErrInternal)
	}
	return note, nil
}

// WeeklySummary aggregates task and note activity within r. Top tags are
// counted over all tasks.
func (s *Service) WeeklySummary(_ context.Context, r models.DateRange) models.WeeklySummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.store.ListTasks(models.TaskFilter{})
	summary := models.WeeklySummary{
		NewTasks:       []models.Task{},
		CompletedTasks: []models.Task{},
		Notes:          s.store.ListNotesByDate(r),
	}

	counts := make(map[string]int)
	for _, task := range all {
		if r.Contains(models.DateOf(task.CreatedAt)) {
			summary.NewTasks = append(summary.NewTasks, task)
		}
		if task.ClosedAt != nil && r.Contains(models.DateOf(*task.ClosedAt)) {
			summary.CompletedTasks = append(summary.CompletedTasks, task)
		}
		for _, tag := range task.Tags {
			counts[tag]++
		}
	}
	summary.TopTags = topTags(counts, topTagLimit)
	return summary
}

func topTags(counts map[string]int, limit int) []models.TagCount {
	out := make([]models.TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, models.TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ApplyChange forwards a watcher event to the index under the writer lock.
func (s *Service) ApplyChange(ctx context.Context, kind index.ChangeKind, path string) (models.NoteID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mgr.ApplyChange(ctx, kind, path)
}

// Reconcile rebuilds the index after changes the watcher cannot attribute.
func (s *Service) Reconcile(ctx context.Context) (index.SyncStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mgr.Reconcile(ctx)
}
