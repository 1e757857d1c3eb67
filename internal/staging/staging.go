// Package staging keeps uploaded audio on local disk between the request that
// received it and the transcription that consumes it.
package staging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Area is a directory of staged payloads
type Area struct {
	root string
}

// New creates the staging directory if needed
func New(root string) (*Area, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Area{root: root}, nil
}

// Root returns the staging directory
func (a *Area) Root() string { return a.root }

// Put writes r under name and returns the staged path and byte count. On any
// error the partial file is removed.
func (a *Area) Put(name string, r io.Reader) (string, int64, error) {
	abs := filepath.Join(a.root, filepath.Base(filepath.Clean(name)))
	f, err := os.Create(abs)
	if err != nil {
		return "", 0, err
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(abs)
		return "", 0, err
	}
	return abs, n, nil
}

// Read loads a staged payload
func (a *Area) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Remove deletes a staged payload. Removing a missing file is not an error.
func (a *Area) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
