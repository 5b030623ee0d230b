// Package blob stores fetched binary resources under the session's media
// directory and addresses them by file-path handles, the local analog of
// object URLs.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store writes blobs into one directory, one file per key.
type Store struct {
	dir string
}

// NewStore creates the media directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put writes data for key, keeping the server filename's extension, and
// returns the handle. Re-putting a key replaces its previous file.
func (s *Store) Put(key, filename string, data []byte) (string, error) {
	if err := s.Remove(key); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, key+ext(filename))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return path, nil
}

// Remove deletes the blob for key, if any.
func (s *Store) Remove(key string) error {
	matches, err := filepath.Glob(filepath.Join(s.dir, key+".*"))
	if err != nil {
		return err
	}
	bare := filepath.Join(s.dir, key)
	if _, statErr := os.Stat(bare); statErr == nil {
		matches = append(matches, bare)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove blob: %w", err)
		}
	}
	return nil
}

func ext(filename string) string {
	e := filepath.Ext(filename)
	// Guard against path tricks in server-supplied filenames.
	if strings.ContainsAny(e, `/\`) {
		return ""
	}
	return e
}
