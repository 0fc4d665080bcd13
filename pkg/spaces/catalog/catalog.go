package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"hivemind-hq/scribe/pkg/spaces"
)

// Catalog holds the available policy templates. Lookups fall back to the
// custom template so space creation never fails on an unknown template id.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]Template

	// dir is the overlay directory, empty when only built-ins are loaded.
	dir    string
	logger *slog.Logger
}

// New creates a catalog with the built-in templates.
func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		templates: make(map[string]Template),
		logger:    logger.With("component", "catalog"),
	}
	for _, t := range builtinTemplates() {
		c.templates[t.ID] = t
	}
	return c
}

// NewFromDir creates a catalog with built-ins overlaid by templates from a
// YAML directory. Files are *.yaml/*.yml, each holding a list of templates.
func NewFromDir(dir string, logger *slog.Logger) (*Catalog, error) {
	c := New(logger)
	c.dir = dir
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the template with the given id, falling back to the custom
// template when the id is unknown or empty.
func (c *Catalog) Get(id string) Template {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if t, ok := c.templates[id]; ok {
		return cloneTemplate(t)
	}
	return cloneTemplate(c.templates[CustomTemplateID])
}

// Has reports whether a template with the given id exists.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.templates[id]
	return ok
}

// List returns all templates ordered by id.
func (c *Catalog) List() []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PolicyFor returns a fresh policy copied from the named template.
func (c *Catalog) PolicyFor(templateID string) spaces.Policy {
	return c.Get(templateID).Policy
}

// Reload re-reads the overlay directory on top of the built-ins. On error
// the previous template set is kept.
func (c *Catalog) Reload() error {
	if c.dir == "" {
		return nil
	}

	loaded, err := loadDir(c.dir)
	if err != nil {
		return err
	}

	next := make(map[string]Template)
	for _, t := range builtinTemplates() {
		next[t.ID] = t
	}
	for _, t := range loaded {
		next[t.ID] = t
	}

	c.mu.Lock()
	c.templates = next
	c.mu.Unlock()

	c.logger.Info("catalog loaded", "dir", c.dir, "templates", len(next), "overlay", len(loaded))
	return nil
}

// loadDir parses every YAML file in the directory into templates.
func loadDir(dir string) ([]Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading catalog directory %q: %w", dir, err)
	}

	var templates []Template
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, name)
		loaded, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		templates = append(templates, loaded...)
	}
	return templates, nil
}

// loadFile parses one YAML template file.
func loadFile(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template file %q: %w", path, err)
	}

	var doc struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing template file %q: %w", path, err)
	}

	for i, t := range doc.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("template %d in %q has no id", i, path)
		}
		if t.Policy.Transformation.DetailLevel != "" && !t.Policy.Transformation.DetailLevel.Valid() {
			return nil, fmt.Errorf("template %q in %q: invalid detail level %q",
				t.ID, path, t.Policy.Transformation.DetailLevel)
		}
	}
	return doc.Templates, nil
}

// cloneTemplate deep-copies a template so callers cannot mutate the catalog.
func cloneTemplate(t Template) Template {
	p := t.Policy
	p.InclusionCriteria = append([]string(nil), p.InclusionCriteria...)
	p.ExclusionCriteria = append([]string(nil), p.ExclusionCriteria...)
	p.TriggerKeywords = append([]string(nil), p.TriggerKeywords...)
	p.RequireApprovalIf = append([]string(nil), p.RequireApprovalIf...)
	p.HighSensitivityTopics = append([]string(nil), p.HighSensitivityTopics...)
	t.Policy = p
	return t
}
