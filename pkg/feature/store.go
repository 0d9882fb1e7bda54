package feature

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Statuses lists the feature lifecycle states in order.
var Statuses = []string{
	"new", "discussing", "discussed", "researching", "researched",
	"planning", "planned", "in-progress", "done",
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Store edits FEATURE.md files in place. Writes to one file are serialized.
type Store struct {
	mu sync.Mutex
}

// NewStore creates a metadata store.
func NewStore() *Store {
	return &Store{}
}

// Complete sets the status and appends a usage row in a single write, so
// the file never carries one edit without the other.
func (s *Store) Complete(path, status string, record UsageRecord) error {
	if !ValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	return s.update(path, func(doc *Document) {
		doc.Set("status", status)
		doc.SetBody(appendUsageRow(doc.Body(), record.Row()))
	})
}

// Status returns the status recorded in the file, "new" when unset.
func (s *Store) Status(path string) (string, error) {
	doc, err := readDocument(path)
	if err != nil {
		return "", err
	}
	if st := doc.String("status"); st != "" {
		return st, nil
	}
	return "new", nil
}

func (s *Store) update(path string, edit func(*Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := readDocument(path)
	if err != nil {
		return err
	}
	edit(doc)

	out, err := doc.Render()
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return writeFileAtomic(path, []byte(out), info.Mode().Perm())
}

// writeFileAtomic replaces path through a temp file in the same directory so
// readers never see a half-written FEATURE.md.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func readDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := ParseDocument(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
