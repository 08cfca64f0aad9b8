package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/vaultd/internal/models"
	"github.com/starford/vaultd/internal/storage"
)

// ChangeKind classifies a watcher-driven index change.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeApplier applies file system changes to the index.
type ChangeApplier interface {
	ApplyChange(ctx context.Context, kind ChangeKind, path string) (models.NoteID, error)
	Reconcile(ctx context.Context) (SyncStats, error)
}

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind ChangeKind, id models.NoteID)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the vault root and forwards note
// changes to applier until ctx is cancelled. It calls cb (if non-nil) after
// each successful index mutation.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a debounced full reconciliation.
func Watch(ctx context.Context, vaultRoot string, applier ChangeApplier, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))

	notify := func(kind ChangeKind, id models.NoteID) {
		if cb != nil {
			cb(kind, id)
		}
	}

	apply := func(kind ChangeKind, rel string) {
		id, err := applier.ApplyChange(ctx, kind, rel)
		if err != nil {
			logger.Warn("watcher: apply failed",
				slog.String("path", rel),
				slog.String("op", string(kind)),
				slog.String("error", err.Error()))
			return
		}
		logger.Debug("watcher: applied", slog.String("note_id", string(id)), slog.String("op", string(kind)))
		notify(kind, id)
	}

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			stats, err := applier.Reconcile(ctx)
			if err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
				continue
			}
			logger.Debug("watcher: reconciled",
				slog.Int("indexed", stats.Indexed),
				slog.Int("removed", stats.Removed))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					for _, rel := range notesUnder(vaultRoot, absPath) {
						apply(ChangeCreated, rel)
					}
					continue
				}
			}

			if !storage.IsNoteFile(filepath.Base(absPath)) {
				continue
			}

			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&fsnotify.Create != 0:
				apply(ChangeCreated, rel)
			case ev.Op&fsnotify.Write != 0:
				apply(ChangeUpdated, rel)
			case ev.Op&fsnotify.Remove != 0:
				apply(ChangeDeleted, rel)
			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports the old path only; the new one arrives as
				// a Create when it stays inside a watched directory.
				apply(ChangeDeleted, rel)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// notesUnder returns the vault-relative paths of note files below dir.
func notesUnder(vaultRoot, dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsNoteFile(d.Name()) {
			return nil
		}
		rel, relErr := filepath.Rel(vaultRoot, p)
		if relErr != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
