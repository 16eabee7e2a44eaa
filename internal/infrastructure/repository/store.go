package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"plugincheck.dev/cli/internal/core/artifact"
)

// diskStore maps artifact keys to files under a single cache directory.
// File names are derived from the key hash, so a key always maps to the
// same authoritative path.
type diskStore struct {
	dir string
}

func newDiskStore(dir string) (*diskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &diskStore{dir: dir}, nil
}

func (s *diskStore) pathFor(key artifact.Key) string {
	sum := sha256.Sum256([]byte(key.String()))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16])+".bin")
}

// write streams src into the key's file. The write goes to a temporary
// sibling first and is renamed into place, so a reader never observes a
// partial file at the authoritative path.
func (s *diskStore) write(key artifact.Key, src io.Reader) (path string, size int64, err error) {
	path = s.pathFor(key)

	tmp, err := os.CreateTemp(s.dir, "fetch-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create staging file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	size, err = io.Copy(tmp, src)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write artifact bytes: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close staging file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", 0, fmt.Errorf("failed to publish artifact file: %w", err)
	}
	return path, size, nil
}

func (s *diskStore) remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
