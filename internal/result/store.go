// Package result persists produced thumbnail bytes on the local filesystem,
// keyed by job identity.
package result

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a reference does not resolve to stored bytes.
var ErrNotFound = errors.New("result not found")

// Store writes thumbnails under a base directory. References are relative
// file names; keys are validated so a reference cannot escape the root.
type Store struct {
	basePath string
}

// NewStore initializes a Store rooted at basePath, creating it if needed.
func NewStore(basePath string) (*Store, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("result store base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create result store directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// Put writes the thumbnail for a job and returns its reference. The write
// goes through a temp file and a rename so a reference never resolves to a
// partial artifact.
func (s *Store) Put(ctx context.Context, jobID string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := jobID + ".jpg"
	if err := validateRef(ref); err != nil {
		return "", err
	}

	finalPath := filepath.Join(s.basePath, ref)
	tmp, err := os.CreateTemp(s.basePath, ref+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to store thumbnail: %w", err)
	}
	return ref, nil
}

// Get resolves a reference to the stored bytes.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateRef(ref); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.basePath, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read thumbnail: %w", err)
	}
	return data, nil
}

func validateRef(ref string) error {
	if ref == "" {
		return errors.New("result reference is required")
	}
	if strings.ContainsAny(ref, `/\`) || strings.Contains(ref, "..") {
		return fmt.Errorf("invalid result reference %q", ref)
	}
	return nil
}
