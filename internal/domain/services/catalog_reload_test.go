package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fredcamaral/deckforge/internal/domain/entities"
	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

type MockFileWatcher struct {
	mock.Mock
}

func (m *MockFileWatcher) Watch(ctx context.Context, path string) (<-chan ports.FileChangeEvent, error) {
	args := m.Called(ctx, path)
	if ch := args.Get(0); ch != nil {
		return ch.(<-chan ports.FileChangeEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFileWatcher) Stop() error {
	args := m.Called()
	return args.Error(0)
}

type MockReloadableCatalog struct {
	mock.Mock
}

func (m *MockReloadableCatalog) Get(name string) (entities.PromptTemplate, bool) {
	args := m.Called(name)
	return args.Get(0).(entities.PromptTemplate), args.Bool(1)
}

func (m *MockReloadableCatalog) List() []entities.PromptTemplate {
	args := m.Called()
	return args.Get(0).([]entities.PromptTemplate)
}

func (m *MockReloadableCatalog) Reload(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockReloadableCatalog) Path() string {
	args := m.Called()
	return args.String(0)
}

func TestCatalogReloadService_Start(t *testing.T) {
	t.Run("successful start and stop", func(t *testing.T) {
		watcher := &MockFileWatcher{}
		catalog := &MockReloadableCatalog{}
		events := make(chan ports.FileChangeEvent)

		catalog.On("Path").Return("/etc/deckforge/templates.yaml")
		watcher.On("Watch", mock.Anything, "/etc/deckforge/templates.yaml").Return((<-chan ports.FileChangeEvent)(events), nil)
		watcher.On("Stop").Return(nil)

		service := NewCatalogReloadService(watcher, catalog, zap.NewNop())
		require.NoError(t, service.Start(context.Background()))
		assert.True(t, service.IsWatching())

		require.NoError(t, service.Stop())
		assert.False(t, service.IsWatching())
		watcher.AssertExpectations(t)
	})

	t.Run("already watching", func(t *testing.T) {
		watcher := &MockFileWatcher{}
		catalog := &MockReloadableCatalog{}
		events := make(chan ports.FileChangeEvent)

		catalog.On("Path").Return("/tmp/templates.yaml")
		watcher.On("Watch", mock.Anything, mock.Anything).Return((<-chan ports.FileChangeEvent)(events), nil)
		watcher.On("Stop").Return(nil)

		service := NewCatalogReloadService(watcher, catalog, nil)
		require.NoError(t, service.Start(context.Background()))
		defer func() { _ = service.Stop() }()

		err := service.Start(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already watching")
	})

	t.Run("watcher error", func(t *testing.T) {
		watcher := &MockFileWatcher{}
		catalog := &MockReloadableCatalog{}

		catalog.On("Path").Return("/tmp/templates.yaml")
		watcher.On("Watch", mock.Anything, mock.Anything).Return(nil, errors.New("no such file"))

		service := NewCatalogReloadService(watcher, catalog, nil)
		err := service.Start(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "starting watcher")
		assert.False(t, service.IsWatching())
	})

	t.Run("catalog without file", func(t *testing.T) {
		catalog := &MockReloadableCatalog{}
		catalog.On("Path").Return("")

		service := NewCatalogReloadService(&MockFileWatcher{}, catalog, nil)
		assert.Error(t, service.Start(context.Background()))
	})
}

func TestCatalogReloadService_HandleEvents(t *testing.T) {
	t.Run("reloads on change and survives failures", func(t *testing.T) {
		watcher := &MockFileWatcher{}
		catalog := &MockReloadableCatalog{}
		events := make(chan ports.FileChangeEvent)

		catalog.On("Path").Return("/tmp/templates.yaml")
		catalog.On("Reload", mock.Anything).Return(errors.New("yaml: line 3")).Once()
		catalog.On("Reload", mock.Anything).Return(nil)
		catalog.On("List").Return([]entities.PromptTemplate{entities.DefaultPromptTemplate()})
		watcher.On("Watch", mock.Anything, mock.Anything).Return((<-chan ports.FileChangeEvent)(events), nil)
		watcher.On("Stop").Return(nil)

		service := NewCatalogReloadService(watcher, catalog, nil)
		require.NoError(t, service.Start(context.Background()))

		events <- ports.FileChangeEvent{Path: "/tmp/templates.yaml", Type: ports.Modified, Timestamp: time.Now()}
		events <- ports.FileChangeEvent{Path: "/tmp/templates.yaml", Type: ports.Modified, Timestamp: time.Now()}

		assert.Eventually(t, func() bool { return service.Reloads() == 1 }, time.Second, 10*time.Millisecond)

		require.NoError(t, service.Stop())
		catalog.AssertNumberOfCalls(t, "Reload", 2)
	})

	t.Run("closed channel ends the loop", func(t *testing.T) {
		watcher := &MockFileWatcher{}
		catalog := &MockReloadableCatalog{}
		events := make(chan ports.FileChangeEvent)

		catalog.On("Path").Return("/tmp/templates.yaml")
		watcher.On("Watch", mock.Anything, mock.Anything).Return((<-chan ports.FileChangeEvent)(events), nil)
		watcher.On("Stop").Return(nil)

		service := NewCatalogReloadService(watcher, catalog, nil)
		require.NoError(t, service.Start(context.Background()))

		close(events)
		require.NoError(t, service.Stop())
		assert.Equal(t, 0, service.Reloads())
	})
}
