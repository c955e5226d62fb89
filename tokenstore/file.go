package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// fileContents is the on-disk layout: entries grouped by profile so several
// fleetctl profiles can share one token file.
type fileContents struct {
	Profiles map[string]map[string]string `json:"profiles"` // key = profile
}

// FileKV stores entries for one profile in a JSON file.
// Writes happen under a lock file and go through a temp file + rename, so
// concurrent processes never observe a partially written file and never drop
// each other's profiles.
type FileKV struct {
	path    string
	profile string
}

var _ KV = (*FileKV)(nil)

// NewFileKV returns a FileKV for profile in the file at path.
func NewFileKV(path, profile string) *FileKV {
	if profile == "" {
		profile = "default"
	}
	return &FileKV{path: path, profile: profile}
}

// NewFile returns a Store persisted to path under profile.
func NewFile(path, profile string, opts ...Option) *Store {
	return New(NewFileKV(path, profile), opts...)
}

// Path returns the token file location.
func (f *FileKV) Path() string {
	return f.path
}

func (f *FileKV) Get(key string) (string, bool, error) {
	contents, err := f.read()
	if err != nil {
		return "", false, err
	}
	entries, ok := contents.Profiles[f.profile]
	if !ok {
		return "", false, nil
	}
	v, ok := entries[key]
	return v, ok, nil
}

func (f *FileKV) Put(entries map[string]string) error {
	return f.update(func(profile map[string]string) {
		for k, v := range entries {
			profile[k] = v
		}
	})
}

func (f *FileKV) Delete(keys ...string) error {
	if _, err := os.Stat(f.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return f.update(func(profile map[string]string) {
		for _, k := range keys {
			delete(profile, k)
		}
	})
}

// read loads the file. A missing file reads as empty.
func (f *FileKV) read() (*fileContents, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return &fileContents{Profiles: map[string]map[string]string{}}, nil
	}
	if err != nil {
		return nil, err
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if contents.Profiles == nil {
		contents.Profiles = map[string]map[string]string{}
	}
	return &contents, nil
}

// update applies fn to this profile's entries and writes the file back.
func (f *FileKV) update(fn func(profile map[string]string)) error {
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create token dir: %w", err)
		}
	}

	lock, err := acquireFileLock(f.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			fmt.Fprintf(os.Stderr, "failed to release lock: %v\n", releaseErr)
		}
	}()

	// Re-read inside the lock; a corrupt file is replaced rather than fatal.
	contents, err := f.read()
	if err != nil {
		contents = &fileContents{Profiles: map[string]map[string]string{}}
	}

	entries := contents.Profiles[f.profile]
	if entries == nil {
		entries = map[string]string{}
	}
	fn(entries)
	if len(entries) == 0 {
		delete(contents.Profiles, f.profile)
	} else {
		contents.Profiles[f.profile] = entries
	}

	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return err
	}

	tempFile := f.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, f.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
