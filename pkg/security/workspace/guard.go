// Package workspace keeps file operations inside a repository root. Feature
// lookups, artifact scans and rollback deletes resolve every path through a
// Guard so a crafted slug or glob cannot reach outside the working tree.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideWorkspace is returned when a path resolves outside the root.
var ErrOutsideWorkspace = errors.New("path is outside workspace boundaries")

// Guard enforces a root directory boundary on file paths.
type Guard struct {
	root string // absolute, symlink-free
}

// NewGuard creates a guard rooted at dir. The directory must exist.
func NewGuard(dir string) (*Guard, error) {
	if dir == "" {
		return nil, fmt.Errorf("workspace directory cannot be empty")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace directory: %w", err)
	}

	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate workspace directory symlinks: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat workspace directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace path %s is not a directory", dir)
	}

	return &Guard{root: root}, nil
}

// WorkspaceDir returns the absolute path of the workspace root.
func (g *Guard) WorkspaceDir() string {
	return g.root
}

// ResolvePath returns the absolute, symlink-resolved form of path. Relative
// paths are joined to the root. Paths that do not exist yet are resolved
// through their nearest existing ancestor.
func (g *Guard) ResolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	p := filepath.Clean(path)
	if !filepath.IsAbs(p) {
		p = filepath.Join(g.root, p)
	}
	return resolveExisting(p), nil
}

// ValidatePath returns ErrOutsideWorkspace when path escapes the root.
func (g *Guard) ValidatePath(path string) error {
	resolved, err := g.ResolvePath(path)
	if err != nil {
		return err
	}
	if !g.IsWithinWorkspace(resolved) {
		return fmt.Errorf("%w: %s", ErrOutsideWorkspace, path)
	}
	return nil
}

// IsWithinWorkspace reports whether absPath is the root or a descendant.
func (g *Guard) IsWithinWorkspace(absPath string) bool {
	p := resolveExisting(filepath.Clean(absPath))
	if p == g.root {
		return true
	}
	return strings.HasPrefix(p, g.root+string(filepath.Separator))
}

// Join resolves elem under the root and validates the result.
func (g *Guard) Join(elem ...string) (string, error) {
	p := filepath.Join(append([]string{g.root}, elem...)...)
	if err := g.ValidatePath(p); err != nil {
		return "", err
	}
	return resolveExisting(p), nil
}

// MakeRelative converts an absolute path to a slash-separated path relative
// to the root.
func (g *Guard) MakeRelative(absPath string) (string, error) {
	p := resolveExisting(filepath.Clean(absPath))
	if !g.IsWithinWorkspace(p) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, absPath)
	}

	rel, err := filepath.Rel(g.root, p)
	if err != nil {
		return "", fmt.Errorf("failed to make path relative: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// resolveExisting evaluates symlinks on the longest existing prefix of p and
// re-appends the missing tail.
func resolveExisting(p string) string {
	var tail []string
	cur := p
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}
