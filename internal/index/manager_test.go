package index_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/vaultd/internal/index"
	"github.com/starford/vaultd/internal/models"
	"github.com/starford/vaultd/internal/parser"
	"github.com/starford/vaultd/internal/testutil"
)

func TestManager_FullReindex(t *testing.T) {
	dir, _, mgr := testutil.TestManager(t)
	testutil.WriteNote(t, dir, "2025-03-15.md", dailyNote)
	testutil.WriteNote(t, dir, "projects/ideas.md", "## Tasks\n- [ ] [T-9] Idea\n")
	testutil.WriteNote(t, dir, "readme.txt", "## Tasks\n- [ ] [T-99] Ignored\n")

	stats, err := mgr.FullReindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, index.SyncStats{Indexed: 2}, stats)

	store := mgr.Store()
	assert.Equal(t, []models.NoteID{"2025-03-15.md", "projects/ideas.md"}, store.NoteIDs())
	assert.Equal(t, []models.TaskID{"T-1", "T-2", "T-9"}, taskIDs(store.ListTasks(models.TaskFilter{})))
}

func TestManager_FullReindexIsIdempotent(t *testing.T) {
	dir, _, mgr := testutil.TestManager(t)
	testutil.WriteNote(t, dir, "2025-03-15.md", dailyNote)

	_, err := mgr.FullReindex(context.Background())
	require.NoError(t, err)
	first := mgr.Store().ItemsForTag("work")

	_, err = mgr.FullReindex(context.Background())
	require.NoError(t, err)
	second := mgr.Store().ItemsForTag("work")

	assert.Equal(t, first, second)
	assert.Len(t, mgr.Store().MentionsForTask("T-1"), 1)
}

func TestManager_FullReindexRemovesStaleNotes(t *testing.T) {
	dir, _, mgr := testutil.TestManager(t)
	testutil.WriteNote(t, dir, "keep.md", "## Tasks\n- [ ] [T-1] Keep\n")
	testutil.WriteNote(t, dir, "gone.md", "## Tasks\n- [ ] [T-2] Gone #stale\n")

	_, err := mgr.FullReindex(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "gone.md")))
	stats, err := mgr.FullReindex(context.Background())
	require.NoError(t, err)

	assert.Equal(t, index.SyncStats{Indexed: 1, Removed: 1}, stats)
	_, ok := mgr.Store().GetTask("T-2")
	assert.False(t, ok)
	assert.NotContains(t, mgr.Store().ListTags(), "stale")
}

type failingSource struct {
	paths []string
	notes map[string]string
	fail  string
}

func (f *failingSource) ListNotePaths() ([]string, error) { return f.paths, nil }

func (f *failingSource) ReadNote(p string) (models.Note, error) {
	if p == f.fail {
		return models.Note{}, errors.New("boom")
	}
	return models.Note{ID: models.NoteID(p), Path: p, Content: f.notes[p]}, nil
}

func TestManager_FullReindexFailsWithoutPartialApply(t *testing.T) {
	src := &failingSource{
		paths: []string{"a.md", "b.md"},
		notes: map[string]string{"a.md": "## Tasks\n- [ ] [T-1] A\n"},
		fail:  "b.md",
	}
	store := index.NewMemStore()
	mgr := index.NewManager(src, store, parser.New(), testutil.Logger())

	_, err := mgr.FullReindex(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.md")
	assert.Empty(t, store.NoteIDs())
	assert.Empty(t, store.ListTasks(models.TaskFilter{}))
}

func TestManager_ApplyChange(t *testing.T) {
	dir, _, mgr := testutil.TestManager(t)
	ctx := context.Background()

	testutil.WriteNote(t, dir, "n.md", "## Tasks\n- [ ] [T-1] First\n")
	id, err := mgr.ApplyChange(ctx, index.ChangeCreated, "n.md")
	require.NoError(t, err)
	assert.Equal(t, models.NoteID("n.md"), id)

	testutil.WriteNote(t, dir, "n.md", "## Tasks\n- [ ] [T-1] Second\n")
	_, err = mgr.ApplyChange(ctx, index.ChangeUpdated, "n.md")
	require.NoError(t, err)
	task, ok := mgr.Store().GetTask("T-1")
	require.True(t, ok)
	assert.Equal(t, "Second", task.Title)

	_, err = mgr.ApplyChange(ctx, index.ChangeDeleted, "n.md")
	require.NoError(t, err)
	_, ok = mgr.Store().GetTask("T-1")
	assert.False(t, ok)
}

func TestManager_ApplyChangeOnVanishedFileRemoves(t *testing.T) {
	dir, _, mgr := testutil.TestManager(t)
	ctx := context.Background()

	testutil.WriteNote(t, dir, "n.md", "## Tasks\n- [ ] [T-1] First\n")
	_, err := mgr.ApplyChange(ctx, index.ChangeCreated, "n.md")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "n.md")))
	_, err = mgr.ApplyChange(ctx, index.ChangeUpdated, "n.md")
	require.NoError(t, err)
	assert.Empty(t, mgr.Store().NoteIDs())
}
