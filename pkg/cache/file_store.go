package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSlotStore keeps each slot in its own file under a base directory.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a half-written slot behind.
type FileSlotStore struct {
	basePath string
}

// NewFileSlotStore creates the base directory if missing.
func NewFileSlotStore(basePath string) (*FileSlotStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("cache base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileSlotStore{basePath: basePath}, nil
}

// Get returns the slot payload, or (nil, false, nil) when absent.
func (s *FileSlotStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.slotPath(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read slot %s: %w", key, err)
	}
	return data, true, nil
}

// Set replaces the slot payload atomically.
func (s *FileSlotStore) Set(_ context.Context, key string, value []byte) error {
	target := s.slotPath(key)
	tmp, err := os.CreateTemp(s.basePath, ".slot-*")
	if err != nil {
		return fmt.Errorf("create temp slot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write slot %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close slot %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace slot %s: %w", key, err)
	}
	return nil
}

// Delete removes the slot. Deleting a missing slot is not an error.
func (s *FileSlotStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.slotPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	return nil
}

func (s *FileSlotStore) slotPath(key string) string {
	name := strings.NewReplacer("/", "_", ":", "_", string(os.PathSeparator), "_").Replace(key)
	if name == "" {
		name = "slot"
	}
	return filepath.Join(s.basePath, name+".json")
}
