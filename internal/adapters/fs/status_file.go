package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/bft-labs/edgevisor/internal/status"
)

// StatusFileName is the file written under the status directory.
const StatusFileName = "status.json"

// StatusFile implements status.Store using a JSON file.
type StatusFile struct {
	path string
}

// NewStatusFile creates a StatusFile writing to path. A directory path
// gets StatusFileName appended.
func NewStatusFile(path string) *StatusFile {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, StatusFileName)
	}
	return &StatusFile{path: path}
}

// Load retrieves the last saved snapshot from disk.
// Returns an empty snapshot and nil error if no file exists.
func (f *StatusFile) Load(ctx context.Context) (status.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return status.Snapshot{}, nil
		}
		return status.Snapshot{}, err
	}

	var snap status.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return status.Snapshot{}, err
	}
	return snap, nil
}

// Save persists snap atomically: write to a temp file, then rename.
func (f *StatusFile) Save(ctx context.Context, snap status.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Path returns the full path to the status file.
func (f *StatusFile) Path() string {
	return f.path
}

var _ status.Store = (*StatusFile)(nil)
