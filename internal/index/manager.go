package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/starford/vaultd/internal/models"
	"github.com/starford/vaultd/internal/parser"
	"github.com/starford/vaultd/internal/storage"
)

// NoteSource supplies the notes to index.
type NoteSource interface {
	ListNotePaths() ([]string, error)
	ReadNote(path string) (models.Note, error)
}

// SyncStats reports the outcome of a full reindex.
type SyncStats struct {
	Indexed int `json:"indexed"`
	Removed int `json:"removed"`
}

// Manager drives parsing of vault notes into a Store.
type Manager struct {
	source NoteSource
	store  Store
	parser parser.Parser
	logger *slog.Logger
}

// NewManager wires a note source, a store, and a parser together.
func NewManager(source NoteSource, store Store, p parser.Parser, logger *slog.Logger) *Manager {
	return &Manager{source: source, store: store, parser: p, logger: logger}
}

// Store returns the store the manager writes to.
func (m *Manager) Store() Store {
	return m.store
}

// FullReindex reads and parses every note in the vault, then applies the
// results. Any read failure aborts before the store is touched. Notes that
// are indexed but no longer present in the vault are removed.
func (m *Manager) FullReindex(ctx context.Context) (SyncStats, error) {
	paths, err := m.source.ListNotePaths()
	if err != nil {
		return SyncStats{}, fmt.Errorf("index: list notes: %w", err)
	}

	parsed := make([]models.ParsedNote, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return SyncStats{}, err
		}
		note, err := m.source.ReadNote(p)
		if err != nil {
			return SyncStats{}, fmt.Errorf("index: read %s: %w", p, err)
		}
		parsed = append(parsed, m.parser.Parse(note))
	}

	seen := make(map[models.NoteID]struct{}, len(parsed))
	for _, pn := range parsed {
		m.store.UpsertParsedNote(pn)
		seen[pn.Note.ID] = struct{}{}
	}

	var stats SyncStats
	stats.Indexed = len(parsed)
	for _, id := range m.store.NoteIDs() {
		if _, ok := seen[id]; ok {
			continue
		}
		m.store.RemoveNote(id)
		stats.Removed++
		m.logger.Debug("index: removed stale", slog.String("note_id", string(id)))
	}

	m.logger.Info("index: full reindex complete",
		slog.Int("indexed", stats.Indexed),
		slog.Int("removed", stats.Removed))
	return stats, nil
}

// ReindexPath reads, parses, and upserts a single note.
func (m *Manager) ReindexPath(path string) (models.NoteID, error) {
	note, err := m.source.ReadNote(path)
	if err != nil {
		return "", fmt.Errorf("index: read %s: %w", path, err)
	}
	m.store.UpsertParsedNote(m.parser.Parse(note))
	m.logger.Debug("index: indexed", slog.String("note_id", string(note.ID)))
	return note.ID, nil
}

var _ ChangeApplier = (*Manager)(nil)

// ApplyChange reindexes or removes the note at path. A note that vanished
// before it could be read is treated as deleted.
func (m *Manager) ApplyChange(_ context.Context, kind ChangeKind, path string) (models.NoteID, error) {
	if kind == ChangeDeleted {
		return m.RemovePath(path), nil
	}
	id, err := m.ReindexPath(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m.RemovePath(path), nil
	}
	return id, err
}

// Reconcile brings the index back in line with the vault.
func (m *Manager) Reconcile(ctx context.Context) (SyncStats, error) {
	return m.FullReindex(ctx)
}

// RemovePath drops the note stored at path from the index.
func (m *Manager) RemovePath(path string) models.NoteID {
	id := storage.NoteIDFromPath(path)
	m.store.RemoveNote(id)
	m.logger.Debug("index: removed", slog.String("note_id", string(id)))
	return id
}
