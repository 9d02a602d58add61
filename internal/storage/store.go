// Package storage keeps uploaded clips and annotated result videos as flat
// files under the data directory, and signs the short-lived URLs that expose
// them over HTTP.
package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
)

// ErrTooLarge marks uploads that exceed the store's size cap.
var ErrTooLarge = errors.New("object exceeds size limit")

// Object names are a single path segment: no separators, no leading dot, so
// a name can never escape its directory.
var objectNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,199}$`)

// ValidName reports whether name is safe to map onto the filesystem.
func ValidName(name string) bool {
	return objectNameRE.MatchString(name)
}

// Store resolves object names to paths under three sibling directories:
// objects holds uploaded clips, results holds annotated videos, and work
// holds scratch files (downloads, encoder temp output).
type Store struct {
	objectsDir string
	resultsDir string
	workDir    string
	logger     *slog.Logger
}

func NewStore(objectsDir, resultsDir, workDir string, logger *slog.Logger) (*Store, error) {
	for _, dir := range []string{objectsDir, resultsDir, workDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}
	return &Store{
		objectsDir: objectsDir,
		resultsDir: resultsDir,
		workDir:    workDir,
		logger:     logger,
	}, nil
}

// ObjectPath resolves an uploaded clip name to its path.
func (s *Store) ObjectPath(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return filepath.Join(s.objectsDir, name), nil
}

// ResultPath resolves an annotated video name to its path.
func (s *Store) ResultPath(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("invalid result name %q", name)
	}
	return filepath.Join(s.resultsDir, name), nil
}

// WorkPath resolves a scratch file name. Callers pass names they generated
// themselves, so there is no validation step.
func (s *Store) WorkPath(name string) string {
	return filepath.Join(s.workDir, name)
}

// Exists reports whether an uploaded object is present.
func (s *Store) Exists(name string) bool {
	path, err := s.ObjectPath(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ResultExists reports whether an annotated video is present.
func (s *Store) ResultExists(name string) bool {
	path, err := s.ResultPath(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// SaveObject streams an upload into the object store. The write goes through
// a temp file and a rename, so a partial upload never becomes visible under
// its final name. When limit is positive, uploads larger than limit bytes are
// rejected. Returns the number of bytes stored.
func (s *Store) SaveObject(name string, r io.Reader, limit int64) (int64, error) {
	path, err := s.ObjectPath(name)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.objectsDir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write object %s: %w", name, err)
	}
	if limit > 0 && n > limit {
		tmp.Close()
		return 0, fmt.Errorf("object %s over %d bytes: %w", name, limit, ErrTooLarge)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close object %s: %w", name, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("failed to store object %s: %w", name, err)
	}

	if s.logger != nil {
		s.logger.Info("stored object", "name", name, "bytes", n)
	}
	return n, nil
}
