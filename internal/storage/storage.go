// Package storage provides file-based JSON record storage on an afero
// filesystem. Each record lives in its own <key>.json file below a base
// directory.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var (
	ErrNotFound = errors.New("not found")
)

const recordExt = ".json"

// Storage provides file-based JSON storage.
type Storage struct {
	fs       afero.Fs
	basePath string
	locks    *Locker
}

// New creates a Storage rooted at basePath on the OS filesystem.
func New(basePath string) *Storage {
	return NewWithFs(afero.NewOsFs(), basePath)
}

// NewWithFs creates a Storage on the given filesystem.
func NewWithFs(fs afero.Fs, basePath string) *Storage {
	return &Storage{
		fs:       fs,
		basePath: basePath,
		locks:    NewLocker(),
	}
}

// BasePath returns the directory records are stored under.
func (s *Storage) BasePath() string {
	return s.basePath
}

// Fs returns the underlying filesystem.
func (s *Storage) Fs() afero.Fs {
	return s.fs
}

// pathToFile converts a path slice to a file path.
func (s *Storage) pathToFile(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...) + recordExt
}

// pathToDir converts a path slice to a directory path.
func (s *Storage) pathToDir(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

// ReadRaw returns the undecoded bytes of the record at path.
func (s *Storage) ReadRaw(ctx context.Context, path []string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.pathToFile(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Marshal encodes v the way records are written: indented, without HTML
// escaping.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// Put writes v as the full record at path, replacing any previous record.
func (s *Storage) Put(ctx context.Context, path []string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	return s.PutRaw(ctx, path, data)
}

// PutRaw writes already encoded data as the record at path. The write goes
// to a temp file that is renamed into place, so readers never observe a
// partial record.
func (s *Storage) PutRaw(ctx context.Context, path []string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filePath := s.pathToFile(path)

	if err := s.fs.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	unlock := s.locks.Lock(filePath)
	defer unlock()

	tmpPath := filePath + ".tmp"
	if err := afero.WriteFile(s.fs, tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := s.fs.Rename(tmpPath, filePath); err != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// Delete removes the record at path. It reports whether a record existed;
// removing a missing record is not an error.
func (s *Storage) Delete(ctx context.Context, path []string) (bool, error) {
	filePath := s.pathToFile(path)

	unlock := s.locks.Lock(filePath)
	defer unlock()

	if err := s.fs.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete file: %w", err)
	}

	return true, nil
}

// List returns the keys of all records and sub directories at path, in
// directory order.
func (s *Storage) List(ctx context.Context, path []string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.pathToDir(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var items []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			items = append(items, name)
		} else if strings.HasSuffix(name, recordExt) {
			items = append(items, strings.TrimSuffix(name, recordExt))
		}
	}

	return items, nil
}

// ScanFunc receives one record. A non-nil readErr means the file could not
// be read; returning an error from ScanFunc stops the scan.
type ScanFunc func(key string, data json.RawMessage, readErr error) error

// Scan calls fn for every record at path. A missing directory scans nothing.
func (s *Storage) Scan(ctx context.Context, path []string, fn ScanFunc) error {
	dirPath := s.pathToDir(path)

	entries, err := afero.ReadDir(s.fs, dirPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}

		key := strings.TrimSuffix(name, recordExt)
		data, readErr := afero.ReadFile(s.fs, filepath.Join(dirPath, name))
		if err := fn(key, json.RawMessage(data), readErr); err != nil {
			return err
		}
	}

	return nil
}

// Exists checks if a record exists at path.
func (s *Storage) Exists(ctx context.Context, path []string) bool {
	ok, err := afero.Exists(s.fs, s.pathToFile(path))
	return err == nil && ok
}
