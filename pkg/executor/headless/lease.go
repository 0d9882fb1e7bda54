package headless

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LeaseFileName is the advisory lock file placed in the artifact directory.
const LeaseFileName = ".auto-run.lock"

// ErrLeaseHeld is returned when another run holds the unit's lease.
var ErrLeaseHeld = errors.New("run lease held by another process")

// Lease is the content of the lock file.
type Lease struct {
	RunID     string       `json:"run_id"`
	Kind      WorkflowKind `json:"kind"`
	Unit      string       `json:"unit"`
	PID       int          `json:"pid"`
	Host      string       `json:"host"`
	StartedAt time.Time    `json:"started_at"`

	path string
}

// Path returns the lock file location.
func (l *Lease) Path() string {
	return l.path
}

// Release removes the lock file if it still belongs to this lease.
func (l *Lease) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	current, err := readLease(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if current.RunID != l.RunID {
		return fmt.Errorf("lease at %s now belongs to run %s", l.path, current.RunID)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// LeaseConflictError carries the holder of a contested lease.
type LeaseConflictError struct {
	Holder Lease
}

func (e *LeaseConflictError) Error() string {
	return fmt.Sprintf("%v: run %s (pid %d on %s) since %s",
		ErrLeaseHeld, e.Holder.RunID, e.Holder.PID, e.Holder.Host, e.Holder.StartedAt.Format(time.RFC3339))
}

// Unwrap lets errors.Is match ErrLeaseHeld.
func (e *LeaseConflictError) Unwrap() error {
	return ErrLeaseHeld
}

// AcquireLease atomically creates the lock file in dir. A lease older than
// staleAfter is reclaimed; reclaimed reports whether that happened.
func AcquireLease(dir string, lease Lease, staleAfter time.Duration, now time.Time) (held *Lease, reclaimed bool, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, false, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	path := filepath.Join(dir, LeaseFileName)
	lease.path = path

	for attempt := 0; attempt < 2; attempt++ {
		err := createExclusive(path, lease)
		if err == nil {
			return &lease, reclaimed, nil
		}
		if !os.IsExist(err) {
			return nil, false, fmt.Errorf("failed to create lease: %w", err)
		}

		holder, readErr := readLease(path)
		if readErr != nil && !os.IsNotExist(readErr) {
			// Unreadable lock files are treated as held until they go stale.
			info, statErr := os.Stat(path)
			if statErr != nil || staleAfter <= 0 || now.Sub(info.ModTime()) < staleAfter {
				return nil, false, &LeaseConflictError{Holder: Lease{RunID: "unknown"}}
			}
		} else if readErr == nil {
			if staleAfter <= 0 || now.Sub(holder.StartedAt) < staleAfter {
				return nil, false, &LeaseConflictError{Holder: holder}
			}
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, false, fmt.Errorf("failed to reclaim stale lease: %w", err)
		}
		reclaimed = true
	}
	return nil, false, &LeaseConflictError{Holder: Lease{RunID: "unknown"}}
}

func createExclusive(path string, lease Lease) error {
	data, err := json.MarshalIndent(lease, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lease: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write lease: %w", err)
	}
	return f.Close()
}

func readLease(path string) (Lease, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lease{}, err
	}
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return Lease{}, fmt.Errorf("failed to parse lease %s: %w", path, err)
	}
	l.path = path
	return l, nil
}
