// Package testutil provides shared test helpers for setting up vaults and indexes.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/vaultd/internal/index"
	"github.com/starford/vaultd/internal/parser"
	"github.com/starford/vaultd/internal/storage"
)

// FixedNow is the clock used by TestManager parsers.
var FixedNow = time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// WriteNote writes content to rel below vaultDir, creating directories.
func WriteNote(t *testing.T, vaultDir, rel, content string) {
	t.Helper()
	abs := filepath.Join(vaultDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestManager builds a vault-backed index manager with a fixed clock.
func TestManager(t *testing.T) (string, *storage.Vault, *index.Manager) {
	t.Helper()
	vaultDir, provider := TestVault(t)
	vault := storage.NewVault(provider)
	p := parser.New(parser.WithClock(func() time.Time { return FixedNow }))
	mgr := index.NewManager(vault, index.NewMemStore(), p, Logger())
	return vaultDir, vault, mgr
}
