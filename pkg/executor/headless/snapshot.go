package headless

import (
	"fmt"
	"os"
	"sort"
	"time"
)

// FileState is what a snapshot records for one file.
type FileState struct {
	Size    int64
	ModTime time.Time
}

// DirSnapshot records the regular files directly inside a directory so the
// audit report can list what a run added or changed.
type DirSnapshot struct {
	dir   string
	files map[string]FileState
}

// TakeSnapshot captures dir. A missing directory yields an empty snapshot.
func TakeSnapshot(dir string) (*DirSnapshot, error) {
	s := &DirSnapshot{dir: dir, files: make(map[string]FileState)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to snapshot %s: %w", dir, err)
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		s.files[e.Name()] = FileState{Size: info.Size(), ModTime: info.ModTime()}
	}
	return s, nil
}

// ChangeKind describes how a file differs between snapshots.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// FileChange is one entry of a snapshot diff.
type FileChange struct {
	Name string
	Kind ChangeKind
}

// Changes compares s against the directory's current contents. Names for
// which skip returns true are left out. Results are sorted by name.
func (s *DirSnapshot) Changes(skip func(name string) bool) ([]FileChange, error) {
	after, err := TakeSnapshot(s.dir)
	if err != nil {
		return nil, err
	}

	var changes []FileChange
	for name, st := range after.files {
		if skip != nil && skip(name) {
			continue
		}
		before, existed := s.files[name]
		switch {
		case !existed:
			changes = append(changes, FileChange{Name: name, Kind: ChangeAdded})
		case before.Size != st.Size || !before.ModTime.Equal(st.ModTime):
			changes = append(changes, FileChange{Name: name, Kind: ChangeModified})
		}
	}
	for name := range s.files {
		if skip != nil && skip(name) {
			continue
		}
		if _, ok := after.files[name]; !ok {
			changes = append(changes, FileChange{Name: name, Kind: ChangeRemoved})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Name < changes[j].Name })
	return changes, nil
}

