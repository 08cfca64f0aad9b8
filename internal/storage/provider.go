// Package storage provides access to the Markdown vault on disk.
package storage

// Provider is the interface for vault file operations. Paths are relative to the
// vault root and may use forward slashes.
type Provider interface {
	// List returns the sorted paths of every .md file under dir.
	List(dir string) ([]string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
	// Root returns the absolute vault root.
	Root() string
}
