package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/gokatarajesh/clinic-assessments/internal/assessment"
	"github.com/gokatarajesh/clinic-assessments/internal/scoring"
)

//go:embed schema.json
var schemaJSON string

var ErrNotFound = errors.New("assessment not found")

// Entry is one loaded assessment: its definition plus an optional scoring table.
type Entry struct {
	assessment.Definition `yaml:",inline"`
	Scoring               *scoring.Table `yaml:"scoring,omitempty"`

	Source string `yaml:"-"`
	engine *scoring.Engine
}

// Engine returns the compiled scoring engine, or nil when the assessment has no table.
func (e *Entry) Engine() *scoring.Engine {
	return e.engine
}

// Catalog holds validated assessments keyed by id.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	schema  *gojsonschema.Schema
	logger  zerolog.Logger
}

// New creates an empty catalog.
func New(logger zerolog.Logger) (*Catalog, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile assessment schema: %w", err)
	}
	return &Catalog{
		entries: make(map[string]*Entry),
		schema:  schema,
		logger:  logger.With().Str("component", "catalog").Logger(),
	}, nil
}

// Load reads every *.yaml / *.yml document under fsys.
func Load(fsys fs.FS, logger zerolog.Logger) (*Catalog, error) {
	c, err := New(logger)
	if err != nil {
		return nil, err
	}
	if err := c.LoadFS(fsys); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadDir is Load over a directory on disk.
func LoadDir(dir string, logger zerolog.Logger) (*Catalog, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("catalog dir: %w", err)
	}
	return Load(os.DirFS(dir), logger)
}

// LoadFS adds every document under fsys. Any invalid document fails the whole load.
func (c *Catalog) LoadFS(fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		entry, err := c.Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		entry.Source = p
		return c.Add(entry)
	})
}

// Parse validates a document against the schema, decodes it and checks the
// definition and scoring invariants.
func (c *Catalog) Parse(data []byte) (*Entry, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("empty document")
	}
	result, err := c.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("schema: %s", strings.Join(msgs, "; "))
	}

	var entry Entry
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}
	if err := entry.Definition.Validate(); err != nil {
		return nil, err
	}
	if entry.Scoring != nil {
		if err := entry.Scoring.CheckAgainst(&entry.Definition); err != nil {
			return nil, err
		}
		engine, err := scoring.NewEngine(*entry.Scoring)
		if err != nil {
			return nil, err
		}
		entry.engine = engine
	}
	return &entry, nil
}

// Add registers an entry. Ids must be unique across the catalog.
func (c *Catalog) Add(entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, exists := c.entries[entry.ID]; exists {
		return fmt.Errorf("duplicate assessment id %q (%s and %s)", entry.ID, prev.Source, entry.Source)
	}
	c.entries[entry.ID] = entry
	c.logger.Debug().Str("assessment", entry.ID).Int("questions", entry.Len()).Msg("assessment loaded")
	return nil
}

// Get returns an assessment by id.
func (c *Catalog) Get(id string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return entry, nil
}

// List returns all assessments sorted by id.
func (c *Catalog) List() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of assessments.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
