package ports

import (
	"context"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
)

// TemplateCatalog provides named prompt templates
type TemplateCatalog interface {
	// Get returns the template with the given name
	Get(name string) (entities.PromptTemplate, bool)

	// List returns all templates sorted by name
	List() []entities.PromptTemplate
}

// ReloadableCatalog is a catalog backed by a file that can be re-read
type ReloadableCatalog interface {
	TemplateCatalog

	// Reload re-reads the backing file and swaps the snapshot
	Reload(ctx context.Context) error

	// Path returns the backing file, empty when only built-ins are served
	Path() string
}
