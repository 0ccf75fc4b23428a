// Package logstore keeps demo build logs as JSON files on disk.
package logstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/origami/origamid/internal/core/domain"
	"github.com/origami/origamid/internal/core/ports"
)

// FileStore writes each build log to <dir>/<logID> as a JSON array of the
// raw build records.
type FileStore struct {
	dir string
}

var _ ports.LogStore = (*FileStore)(nil)

// NewFileStore creates the log directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Write replaces the log stored under logID. Readers see either the old or
// the new log, never a partial one.
func (s *FileStore) Write(logID string, records []domain.BuildRecord) error {
	path, err := s.path(logID)
	if err != nil {
		return err
	}
	if records == nil {
		records = []domain.BuildRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal build log: %w", err)
	}
	return writeFileAtomic(path, data, 0o644)
}

// Read returns the raw JSON log stored under logID.
func (s *FileStore) Read(logID string) ([]byte, error) {
	path, err := s.path(logID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrLogNotFound, logID)
	}
	if err != nil {
		return nil, fmt.Errorf("read build log %s: %w", logID, err)
	}
	return data, nil
}

func (s *FileStore) path(logID string) (string, error) {
	if logID == "" || logID == "." || logID == ".." || strings.ContainsAny(logID, `/\`) {
		return "", fmt.Errorf("invalid log id %q", logID)
	}
	return filepath.Join(s.dir, logID), nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
