package pii

import (
	"embed"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"legalcore/internal/errs"
)

//go:embed assets/exclusions/*.json
var embeddedExclusions embed.FS

// exclusionFile is the on-disk/embedded JSON shape for one region's
// exclusion data. Categories are an open set — unrecognized keys are
// loaded and tagged by name rather than rejected, per spec.
type exclusionFile struct {
	Categories map[string][]string `json:"categories"`
	Settings   exclusionSettings   `json:"settings"`
}

type exclusionSettings struct {
	CaseSensitive  bool     `json:"caseSensitive"`
	MinConfidence  float64  `json:"minConfidence"`
	FuzzyMatching  bool     `json:"fuzzyMatching"`
	Region         string   `json:"region"`
	Description    string   `json:"description"`
	Languages      []string `json:"languages"`
	Countries      []string `json:"countries"`
}

// region holds one loaded exclusion file's lookup structure.
type region struct {
	name     string
	settings exclusionSettings
	// terms maps a normalized term to its category name, across all
	// categories in the file.
	terms map[string]string
}

// ExclusionRegistry is the Regional Exclusion Registry (C1): a set of
// per-region allow-lists consulted before span reconciliation so that
// known non-sensitive terms (e.g. common legal boilerplate, generic
// organization names) never become redaction candidates.
type ExclusionRegistry struct {
	mu      sync.RWMutex
	regions map[string]*region
	once    sync.Once
	loadErr error
}

// NewExclusionRegistry returns an empty registry. Call Load before use.
func NewExclusionRegistry() *ExclusionRegistry {
	return &ExclusionRegistry{regions: make(map[string]*region)}
}

// Load populates the registry from the embedded default regions and, if
// overrideDir is non-empty, from *.json files in that directory (which
// take precedence over embedded files of the same region name). Load is
// idempotent: subsequent calls are no-ops after the first.
func (r *ExclusionRegistry) Load(overrideDir string) error {
	r.once.Do(func() {
		r.loadErr = r.loadLocked(overrideDir)
	})
	return r.loadErr
}

func (r *ExclusionRegistry) loadLocked(overrideDir string) error {
	entries, err := embeddedExclusions.ReadDir("assets/exclusions")
	if err != nil {
		return errs.Wrap(errs.Fatal, "read embedded exclusions", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := embeddedExclusions.ReadFile(filepath.Join("assets/exclusions", e.Name()))
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if reg, err := parseRegion(name, data); err == nil {
			r.regions[name] = reg
		}
	}

	if overrideDir != "" {
		if entries, err := os.ReadDir(overrideDir); err == nil {
			for _, e := range entries {
				if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
					continue
				}
				data, err := os.ReadFile(filepath.Join(overrideDir, e.Name())) //nolint:gosec // G703: operator-controlled override dir
				if err != nil {
					continue
				}
				name := strings.TrimSuffix(e.Name(), ".json")
				if reg, err := parseRegion(name, data); err == nil {
					r.regions[name] = reg
				}
			}
		}
	}

	if len(r.regions) == 0 {
		return errs.New(errs.Fatal, "no exclusion region loaded; at least the embedded default must be present")
	}
	return nil
}

func parseRegion(name string, data []byte) (*region, error) {
	var f exclusionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errs.Wrap(errs.Validation, "parse exclusion file "+name, err)
	}
	reg := &region{name: name, settings: f.Settings, terms: make(map[string]string)}
	for category, terms := range f.Categories {
		for _, t := range terms {
			key := t
			if !f.Settings.CaseSensitive {
				key = strings.ToLower(key)
			}
			reg.terms[key] = category
		}
	}
	return reg, nil
}

// IsExcluded reports whether text matches an exclusion term in the named
// region. An unknown region name never excludes anything.
func (r *ExclusionRegistry) IsExcluded(text, regionName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regions[regionName]
	if !ok {
		return false
	}
	key := text
	if !reg.settings.CaseSensitive {
		key = strings.ToLower(key)
	}
	_, excluded := reg.terms[key]
	return excluded
}

// IsExcludedAnyRegion reports whether text matches an exclusion term in
// any loaded region, returning the first matching region name.
func (r *ExclusionRegistry) IsExcludedAnyRegion(text string) (region string, excluded bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, reg := range r.regions {
		key := text
		if !reg.settings.CaseSensitive {
			key = strings.ToLower(key)
		}
		if _, ok := reg.terms[key]; ok {
			return name, true
		}
	}
	return "", false
}

// RegionNames returns the loaded region names, sorted alphabetically.
func (r *ExclusionRegistry) RegionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.regions))
	for name := range r.regions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
