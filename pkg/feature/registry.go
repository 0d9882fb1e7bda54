// Package feature reads and updates the per-feature documents kept under
// docs/features/<slug>/.
package feature

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/entrhq/gfd/pkg/security/workspace"
)

// DefaultPathPrefix is where feature directories live, relative to the
// workspace root.
const DefaultPathPrefix = "docs/features"

// MetadataFile is the per-feature metadata document.
const MetadataFile = "FEATURE.md"

// ErrFeatureNotFound is returned when a slug has no FEATURE.md.
var ErrFeatureNotFound = errors.New("feature not found")

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateSlug rejects slugs that could name anything other than a single
// directory below the features root.
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) || strings.Contains(slug, "..") {
		return fmt.Errorf("invalid feature slug %q", slug)
	}
	return nil
}

// Feature is the registry view of one feature directory.
type Feature struct {
	Slug      string   `json:"slug"`
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	Owner     string   `json:"owner,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
	Priority  string   `json:"priority"`
	DependsOn []string `json:"depends_on,omitempty"`

	// Dir is absolute; RelDir is relative to the workspace with slashes.
	Dir       string `json:"-"`
	RelDir    string `json:"directory"`
	FeatureMD string `json:"feature_md"`

	Plans           []string `json:"plans"`
	Summaries       []string `json:"summaries"`
	IncompletePlans []string `json:"incomplete_plans"`
	HasResearch     bool     `json:"has_research"`
	HasVerification bool     `json:"has_verification"`
}

// MetadataPath returns the absolute FEATURE.md path.
func (f *Feature) MetadataPath() string {
	return filepath.Join(f.Dir, MetadataFile)
}

// Registry resolves features inside one workspace.
type Registry struct {
	guard       *workspace.Guard
	prefix      string
	featuresDir string
}

// NewRegistry creates a registry rooted at workspaceDir. An empty prefix
// means DefaultPathPrefix.
func NewRegistry(workspaceDir, prefix string) (*Registry, error) {
	guard, err := workspace.NewGuard(workspaceDir)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = DefaultPathPrefix
	}
	prefix = filepath.FromSlash(prefix)
	dir, err := guard.Join(prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid features path: %w", err)
	}
	return &Registry{guard: guard, prefix: prefix, featuresDir: dir}, nil
}

// Root returns the workspace root.
func (r *Registry) Root() string {
	return r.guard.WorkspaceDir()
}

// FeaturesDir returns the absolute directory holding all features.
func (r *Registry) FeaturesDir() string {
	return r.featuresDir
}

// Find loads the feature for slug.
func (r *Registry) Find(slug string) (*Feature, error) {
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}

	dir, err := r.guard.Join(r.prefix, slug)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, slug)
		}
		return nil, fmt.Errorf("failed to read %s: %w", MetadataFile, err)
	}
	doc, err := ParseDocument(string(data))
	if err != nil {
		return nil, fmt.Errorf("feature %s: %w", slug, err)
	}

	rel, err := r.guard.MakeRelative(dir)
	if err != nil {
		return nil, err
	}
	f := &Feature{
		Slug:      slug,
		Name:      orDefault(doc.String("name"), slug),
		Status:    orDefault(doc.String("status"), "new"),
		Owner:     doc.String("owner"),
		Assignees: doc.StringList("assignees"),
		Priority:  orDefault(doc.String("priority"), "medium"),
		DependsOn: doc.StringList("depends_on"),
		Dir:       dir,
		RelDir:    rel,
		FeatureMD: rel + "/" + MetadataFile,
	}
	if err := f.scanFiles(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Feature) scanFiles() error {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", f.RelDir, err)
	}

	f.Plans, f.Summaries, f.IncompletePlans = []string{}, []string{}, []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		upper := strings.ToUpper(name)
		switch {
		case strings.HasSuffix(upper, "-PLAN.MD"):
			f.Plans = append(f.Plans, name)
		case strings.HasSuffix(upper, "-SUMMARY.MD"):
			f.Summaries = append(f.Summaries, name)
		case name == "RESEARCH.md" || strings.HasSuffix(upper, "-RESEARCH.MD"):
			f.HasResearch = true
		case name == "VERIFICATION.md" || strings.HasSuffix(upper, "-VERIFICATION.MD"):
			f.HasVerification = true
		}
	}
	sort.Strings(f.Plans)
	sort.Strings(f.Summaries)

	done := make(map[string]bool, len(f.Summaries))
	for _, s := range f.Summaries {
		done[strings.ToUpper(s[:len(s)-len("-SUMMARY.md")])] = true
	}
	for _, p := range f.Plans {
		id := p[:len(p)-len("-PLAN.md")]
		if !done[strings.ToUpper(id)] {
			f.IncompletePlans = append(f.IncompletePlans, id)
		}
	}
	return nil
}

// ResearchFiles returns the research documents in the feature directory.
func (f *Feature) ResearchFiles() []string {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && (name == "RESEARCH.md" || strings.HasSuffix(strings.ToUpper(name), "-RESEARCH.MD")) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

var (
	priorityOrder = map[string]int{"critical": -1, "high": 0, "medium": 1, "low": 2}
	statusOrder   = map[string]int{
		"in-progress": 0, "planned": 1, "planning": 2, "researched": 3, "researching": 4,
		"discussed": 5, "discussing": 6, "new": 7, "done": 8,
	}
)

func rank(m map[string]int, key string, fallback int) int {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}

// List returns every feature, ordered by priority then status. Directories
// without FEATURE.md and the codebase map directory are skipped.
func (r *Registry) List() ([]*Feature, error) {
	entries, err := os.ReadDir(r.FeaturesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*Feature{}, nil
		}
		return nil, fmt.Errorf("failed to list features: %w", err)
	}

	features := make([]*Feature, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "codebase" || ValidateSlug(e.Name()) != nil {
			continue
		}
		f, err := r.Find(e.Name())
		if err != nil {
			if errors.Is(err, ErrFeatureNotFound) {
				continue
			}
			return nil, err
		}
		features = append(features, f)
	}

	sort.SliceStable(features, func(i, j int) bool {
		pi, pj := rank(priorityOrder, features[i].Priority, 1), rank(priorityOrder, features[j].Priority, 1)
		if pi != pj {
			return pi < pj
		}
		return rank(statusOrder, features[i].Status, 3) < rank(statusOrder, features[j].Status, 3)
	})
	return features, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
