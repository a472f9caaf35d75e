package templates

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// catalogFile is the on-disk layout of the template catalog
type catalogFile struct {
	Templates []entities.PromptTemplate `yaml:"templates"`
}

// Catalog serves prompt templates from a YAML file on top of the built-in default.
// The file may override the default by declaring a template with the same name.
type Catalog struct {
	path   string
	logger *zap.Logger

	mu        sync.RWMutex
	templates map[string]entities.PromptTemplate
}

// NewCatalog creates a new catalog; an empty path serves only the built-in default
func NewCatalog(path string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Catalog{
		path:      path,
		logger:    logger.With(zap.String("component", "templates")),
		templates: builtins(),
	}
}

// Load creates a catalog and reads path once. A missing file is not an error.
func Load(ctx context.Context, path string, logger *zap.Logger) (*Catalog, error) {
	c := NewCatalog(path, logger)
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the template with the given name
func (c *Catalog) Get(name string) (entities.PromptTemplate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tmpl, ok := c.templates[name]
	return tmpl, ok
}

// List returns all templates sorted by name
func (c *Catalog) List() []entities.PromptTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]entities.PromptTemplate, 0, len(c.templates))
	for _, tmpl := range c.templates {
		list = append(list, tmpl)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Path returns the backing file
func (c *Catalog) Path() string {
	return c.path
}

// Reload re-reads the backing file and swaps the snapshot. On error the previous
// snapshot stays in place.
func (c *Catalog) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.path == "" {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("template file not found, serving built-in templates", zap.String("path", c.path))
		c.swap(builtins())
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading template file: %w", err)
	}

	templates, err := Parse(data)
	if err != nil {
		return fmt.Errorf("parsing template file %s: %w", c.path, err)
	}

	next := builtins()
	for _, tmpl := range templates {
		next[tmpl.Name] = tmpl
	}
	c.swap(next)

	c.logger.Info("templates loaded", zap.String("path", c.path), zap.Int("count", len(templates)))
	return nil
}

func (c *Catalog) swap(next map[string]entities.PromptTemplate) {
	c.mu.Lock()
	c.templates = next
	c.mu.Unlock()
}

// Parse decodes and validates a catalog document. Names must be unique.
func Parse(data []byte) ([]entities.PromptTemplate, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}

	seen := make(map[string]bool, len(file.Templates))
	templates := make([]entities.PromptTemplate, 0, len(file.Templates))
	for i, tmpl := range file.Templates {
		tmpl.Name = strings.TrimSpace(tmpl.Name)
		if err := tmpl.Validate(); err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
		if seen[tmpl.Name] {
			return nil, fmt.Errorf("duplicate template name: %s", tmpl.Name)
		}
		seen[tmpl.Name] = true
		templates = append(templates, tmpl)
	}
	return templates, nil
}

func builtins() map[string]entities.PromptTemplate {
	def := entities.DefaultPromptTemplate()
	return map[string]entities.PromptTemplate{def.Name: def}
}
