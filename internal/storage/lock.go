package storage

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is created in the vault root while a process owns the vault.
const LockFileName = ".vaultd.lock"

// ErrVaultLocked is returned when another process already owns the vault.
var ErrVaultLocked = errors.New("vault is locked by another process")

// Lock is a cross-process advisory lock on a vault directory.
type Lock struct {
	flock *flock.Flock
}

// AcquireLock takes the vault lock without blocking.
func AcquireLock(root string) (*Lock, error) {
	fl := flock.New(filepath.Join(root, LockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("storage: acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("storage: %s: %w", root, ErrVaultLocked)
	}
	return &Lock{flock: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.flock.Path()
}

// Release unlocks the vault. Calling it more than once is safe.
func (l *Lock) Release() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("storage: release lock: %w", err)
	}
	return nil
}
