package transfer

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
)

// Status represents the state of a transfer.
type Status string

const (
	// StatusPending means the transfer has not moved any bytes yet.
	StatusPending Status = "pending"
	// StatusInProgress means bytes are currently being streamed.
	StatusInProgress Status = "in_progress"
	// StatusPaused means the transfer stopped before completion and can be
	// resumed from the persisted offset.
	StatusPaused Status = "paused"
	// StatusCompleted means the file is fully on disk and verified.
	// Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed means the transfer ended with an integrity failure.
	// Terminal; the next attempt restarts from byte zero.
	StatusFailed Status = "failed"
)

// State is the sidecar record persisted alongside a partial file so a
// transfer survives process restarts. The invariant is that
// BytesTransferred never exceeds the byte count actually on disk: the
// sidecar is only written after the corresponding bytes are flushed.
type State struct {
	SourceURL        string    `json:"source_url"`
	LocalPath        string    `json:"local_path"`
	TotalBytes       int64     `json:"total_bytes,omitempty"`
	BytesTransferred int64     `json:"bytes_transferred"`
	ChangeID         string    `json:"change_id,omitempty"`
	Status           Status    `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StatePath returns the sidecar path for a destination file.
func StatePath(localPath string) string {
	return localPath + ".fetchstate.json"
}

// PartPath returns the partial-data path for a destination file.
func PartPath(localPath string) string {
	return localPath + ".part"
}

// Load reads the persisted transfer state for a destination path. Returns
// nil without error when no sidecar exists.
func Load(fs afero.Fs, localPath string) (*State, error) {
	return loadState(fs, localPath)
}

// loadState reads the sidecar for localPath. Returns nil without error when
// no sidecar exists. A corrupt sidecar is treated as absent: the worst case
// is a restart from byte zero, never a corrupt result.
func loadState(fs afero.Fs, localPath string) (*State, error) {
	data, err := afero.ReadFile(fs, StatePath(localPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sidecar: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, nil
	}
	return &s, nil
}

// saveState persists the sidecar via write-to-temp-then-rename, so a crash
// mid-write can never leave torn metadata and progress readers always
// observe a consistent snapshot.
func saveState(fs afero.Fs, s *State) error {
	s.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}

	path := StatePath(s.LocalPath)
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace sidecar: %w", err)
	}
	return nil
}

// removeState deletes the sidecar, ignoring its absence.
func removeState(fs afero.Fs, localPath string) error {
	if err := fs.Remove(StatePath(localPath)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
