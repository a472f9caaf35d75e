package templates

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

var _ ports.ReloadableCatalog = (*Catalog)(nil)

const catalogYAML = `
templates:
  - name: minimal
    description: Plain white slides
    system_prompt: Create a minimal deck.
  - name: dark
    description: Dark theme
    html_template: "<html><body class=\"dark\">{{.Slides}}</body></html>"
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func names(list []entities.PromptTemplate) []string {
	out := make([]string, 0, len(list))
	for _, tmpl := range list {
		out = append(out, tmpl.Name)
	}
	return out
}

func TestCatalog_BuiltinOnly(t *testing.T) {
	c := NewCatalog("", zap.NewNop())

	require.NoError(t, c.Reload(context.Background()))

	tmpl, ok := c.Get(entities.DefaultTemplateName)
	require.True(t, ok)
	assert.NotEmpty(t, tmpl.SystemPrompt)
	assert.Equal(t, []string{"default"}, names(c.List()))
	assert.Empty(t, c.Path())
}

func TestCatalog_Load(t *testing.T) {
	t.Run("file templates are added to the default", func(t *testing.T) {
		path := writeCatalog(t, catalogYAML)

		c, err := Load(context.Background(), path, zap.NewNop())
		require.NoError(t, err)

		assert.Equal(t, []string{"dark", "default", "minimal"}, names(c.List()))
		minimal, ok := c.Get("minimal")
		require.True(t, ok)
		assert.Equal(t, "Create a minimal deck.", minimal.SystemPrompt)
		assert.Equal(t, path, c.Path())
	})

	t.Run("file may override the default", func(t *testing.T) {
		path := writeCatalog(t, "templates:\n  - name: default\n    system_prompt: Custom default.\n")

		c, err := Load(context.Background(), path, zap.NewNop())
		require.NoError(t, err)

		tmpl, _ := c.Get("default")
		assert.Equal(t, "Custom default.", tmpl.SystemPrompt)
	})

	t.Run("missing file serves built-ins", func(t *testing.T) {
		c, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, []string{"default"}, names(c.List()))
	})

	t.Run("invalid file fails", func(t *testing.T) {
		path := writeCatalog(t, "templates:\n  - name: broken\n")

		_, err := Load(context.Background(), path, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "template 0")
	})
}

func TestCatalog_Reload(t *testing.T) {
	path := writeCatalog(t, catalogYAML)
	c, err := Load(context.Background(), path, zap.NewNop())
	require.NoError(t, err)

	t.Run("bad content keeps previous snapshot", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("templates: [: nope"), 0o644))

		require.Error(t, c.Reload(context.Background()))
		_, ok := c.Get("minimal")
		assert.True(t, ok)
	})

	t.Run("new content replaces snapshot", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("templates:\n  - name: fresh\n    system_prompt: New.\n"), 0o644))

		require.NoError(t, c.Reload(context.Background()))
		_, ok := c.Get("minimal")
		assert.False(t, ok)
		_, ok = c.Get("fresh")
		assert.True(t, ok)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, c.Reload(ctx), context.Canceled)
	})
}

func TestParse(t *testing.T) {
	t.Run("duplicate names", func(t *testing.T) {
		_, err := Parse([]byte("templates:\n  - name: a\n    system_prompt: x\n  - name: a\n    system_prompt: y\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate template name: a")
	})

	t.Run("empty document", func(t *testing.T) {
		templates, err := Parse([]byte(""))
		require.NoError(t, err)
		assert.Empty(t, templates)
	})
}
