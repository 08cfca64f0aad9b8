package rpc

import (
	"context"
	"encoding/json"

	"github.com/starford/vaultd/internal/index"
	"github.com/starford/vaultd/internal/models"
	"github.com/starford/vaultd/internal/noteservice"
)

// Method names.
const (
	MethodReindex       = "core.reindex"
	MethodListTasks     = "core.list_tasks"
	MethodTaskDetail    = "core.task_detail"
	MethodItemsForTag   = "core.items_for_tag"
	MethodListTags      = "core.list_tags"
	MethodNotesInRange  = "core.notes_in_range"
	MethodWeeklySummary = "core.weekly_summary"
	MethodOpenDaily     = "core.open_daily"
	MethodReadNote      = "core.read_note"
	MethodWriteNote     = "core.write_note"

	// MethodNoteChanged is sent by the server after watcher-driven changes.
	MethodNoteChanged = "core.note_changed"
)

// Backend is the set of vault operations exposed over RPC.
type Backend interface {
	ReindexAll(ctx context.Context) (index.SyncStats, error)
	ListTasks(ctx context.Context, filter models.TaskFilter) []models.Task
	TaskDetail(ctx context.Context, id models.TaskID) (noteservice.TaskDetail, error)
	ItemsForTag(ctx context.Context, tag string) models.TagResult
	ListTags(ctx context.Context) []string
	NotesInRange(ctx context.Context, r models.DateRange) []models.NoteMeta
	WeeklySummary(ctx context.Context, r models.DateRange) models.WeeklySummary
	OpenDaily(ctx context.Context, d models.Date) (models.Note, error)
	ReadNote(ctx context.Context, id models.NoteID) (models.Note, error)
	WriteNote(ctx context.Context, id models.NoteID, content, ifMatch string) (models.Note, error)
}

var _ Backend = (*noteservice.Service)(nil)

// ReindexResult is the result of core.reindex.
type ReindexResult struct {
	Status string `json:"status"`
	index.SyncStats
}

// NoteChange is the payload of core.note_changed.
type NoteChange struct {
	Kind   index.ChangeKind `json:"kind"`
	NoteID models.NoteID    `json:"note_id"`
}

type methodFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Methods routes method names to Backend calls.
type Methods struct {
	backend Backend
	table   map[string]methodFunc
}

var _ Handler = (*Methods)(nil)

// NewMethods builds the method table over b.
func NewMethods(b Backend) *Methods {
	m := &Methods{backend: b}
	m.table = map[string]methodFunc{
		MethodReindex:       m.reindex,
		MethodListTasks:     m.listTasks,
		MethodTaskDetail:    m.taskDetail,
		MethodItemsForTag:   m.itemsForTag,
		MethodListTags:      m.listTags,
		MethodNotesInRange:  m.notesInRange,
		MethodWeeklySummary: m.weeklySummary,
		MethodOpenDaily:     m.openDaily,
		MethodReadNote:      m.readNote,
		MethodWriteNote:     m.writeNote,
	}
	return m
}

// Handle implements Handler.
func (m *Methods) Handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	fn, ok := m.table[method]
	if !ok {
		return nil, NewError(CodeMethodNotFound, "unknown method '%s'", method)
	}
	return fn(ctx, params)
}

func (m *Methods) reindex(ctx context.Context, _ json.RawMessage) (any, error) {
	stats, err := m.backend.ReindexAll(ctx)
	if err != nil {
		return nil, err
	}
	return ReindexResult{Status: "ok", SyncStats: stats}, nil
}

func (m *Methods) listTasks(ctx context.Context, raw json.RawMessage) (any, error) {
	var p listTasksParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return m.backend.ListTasks(ctx, p.filter()), nil
}

func (m *Methods) taskDetail(ctx context.Context, raw json.RawMessage) (any, error) {
	var p taskParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return m.backend.TaskDetail(ctx, models.TaskID(p.TaskID))
}

func (m *Methods) itemsForTag(ctx context.Context, raw json.RawMessage) (any, error) {
	var p tagParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return m.backend.ItemsForTag(ctx, p.Tag), nil
}

func (m *Methods) listTags(ctx context.Context, _ json.RawMessage) (any, error) {
	return m.backend.ListTags(ctx), nil
}

func (m *Methods) notesInRange(ctx context.Context, raw json.RawMessage) (any, error) {
	var p rangeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return m.backend.NotesInRange(ctx, p.dateRange()), nil
}

func (m *Methods) weeklySummary(ctx context.Context, raw json.RawMessage) (any, error) {
	var p rangeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return m.backend.WeeklySummary(ctx, p.dateRange()), nil
}

func (m *Methods) openDaily(ctx context.Context, raw json.RawMessage) (any, error) {
	var p dateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	d, err := models.ParseDate(p.Date)
	if err != nil {
		return nil, invalidParams(err)
	}
	return m.backend.OpenDaily(ctx, d)
}

func (m *Methods) readNote(ctx context.Context, raw json.RawMessage) (any, error) {
	var p noteParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return m.backend.ReadNote(ctx, models.NoteID(p.NoteID))
}

func (m *Methods) writeNote(ctx context.Context, raw json.RawMessage) (any, error) {
	var p writeNoteParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return m.backend.WriteNote(ctx, models.NoteID(p.NoteID), *p.Content, p.IfMatch)
}
