package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Supported slot drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// ErrUnavailable reports that durable storage could not be opened.
var ErrUnavailable = errors.New("storage unavailable")

// Slot is a durable key-value store holding complete serialized values.
// Writes replace the previous value; the last writer wins.
type Slot interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Close() error
}

// Open creates the slot for driver under dir. Any failure wraps ErrUnavailable.
func Open(driver, dir string) (Slot, error) {
	var (
		slot Slot
		err  error
	)
	switch driver {
	case "", DriverFile:
		slot, err = NewFileSlot(dir)
	case DriverSQLite:
		slot, err = NewSQLSlot(filepath.Join(dir, "traceviz.db"))
	default:
		err = fmt.Errorf("unknown driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return slot, nil
}

// FileSlot keeps one file per key inside a directory.
type FileSlot struct {
	mu  sync.RWMutex
	dir string
}

// NewFileSlot creates the directory if needed.
func NewFileSlot(dir string) (*FileSlot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	return &FileSlot{dir: dir}, nil
}

// Get returns the stored value, or ok=false when the key was never written.
func (s *FileSlot) Get(key string) (string, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return "", false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read snapshot: %w", err)
	}
	return string(data), true, nil
}

// Set atomically replaces the value stored under key.
func (s *FileSlot) Set(key, value string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath := fmt.Sprintf("%s.%d.tmp", path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace snapshot file: %w", err)
	}
	return nil
}

// Close is a no-op for files.
func (s *FileSlot) Close() error {
	return nil
}

func (s *FileSlot) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid snapshot key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}
