package repository

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/natefinch/atomic"
)

// tomlFile caches the decoded contents of a TOML file and reloads them when
// the file's modification time changes. A missing file reads as empty.
type tomlFile struct {
	path       string
	perm       os.FileMode
	modifiedAt time.Time
}

func (f *tomlFile) fileModified() (bool, error) {
	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		mod := !f.modifiedAt.IsZero()
		f.modifiedAt = time.Time{}
		return mod, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read file timestamp: %w", err)
	}
	modTime := info.ModTime()
	mod := !f.modifiedAt.Equal(modTime)
	if mod {
		f.modifiedAt = modTime
	}
	return mod, nil
}

func (f *tomlFile) load(v any) error {
	_, err := toml.DecodeFile(f.path, v)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load repository: %w", err)
	}
	return nil
}

// save replaces the file atomically, so an interrupted write leaves the
// previous contents in place.
func (f *tomlFile) save(v any) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	if err := atomic.WriteFile(f.path, &buf); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	if err := os.Chmod(f.path, f.perm); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	if info, err := os.Stat(f.path); err == nil {
		f.modifiedAt = info.ModTime()
	}
	return nil
}
