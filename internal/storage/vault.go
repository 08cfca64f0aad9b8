package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/vaultd/internal/models"
)

// Vault materializes notes from a Provider.
type Vault struct {
	provider Provider
}

// NewVault returns a Vault reading through p.
func NewVault(p Provider) *Vault {
	return &Vault{provider: p}
}

// ListNotePaths returns every note path in the vault, sorted.
func (v *Vault) ListNotePaths() ([]string, error) {
	return v.provider.List("")
}

// ReadNote reads the note at p. Title and date are derived from the file name.
func (v *Vault) ReadNote(p string) (models.Note, error) {
	data, err := v.provider.Read(p)
	if err != nil {
		return models.Note{}, err
	}
	id := NoteIDFromPath(p)
	return models.Note{
		ID:       id,
		Path:     string(id),
		Title:    TitleFromPath(p),
		Date:     DateFromPath(p),
		Content:  string(data),
		Checksum: Checksum(data),
	}, nil
}

// Exists reports whether a note file exists at p.
func (v *Vault) Exists(p string) (bool, error) {
	return v.provider.Exists(p)
}

// Write atomically replaces the content of the note file at p.
func (v *Vault) Write(p string, content []byte) error {
	return v.provider.Write(p, content)
}

// Root returns the absolute vault root.
func (v *Vault) Root() string {
	return v.provider.Root()
}

// NoteIDFromPath returns the id of the note stored at the vault-relative path p.
func NoteIDFromPath(p string) models.NoteID {
	return models.NoteID(path.Clean(filepath.ToSlash(p)))
}

// TitleFromPath returns the file stem of p.
func TitleFromPath(p string) string {
	base := path.Base(filepath.ToSlash(p))
	return strings.TrimSuffix(base, path.Ext(base))
}

// DateFromPath parses the file stem as YYYY-MM-DD or YY-MM-DD.
func DateFromPath(p string) *models.Date {
	stem := TitleFromPath(p)
	for _, layout := range []string{"2006-01-02", "06-01-02"} {
		if d, err := models.ParseDateLayout(layout, stem); err == nil {
			return &d
		}
	}
	return nil
}

// DailyNotePath returns the canonical file name of the note for d.
func DailyNotePath(d models.Date) string {
	return d.String() + ".md"
}

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
