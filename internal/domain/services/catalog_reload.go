package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// CatalogReloadService reloads the template catalog whenever its file changes
type CatalogReloadService struct {
	watcher     ports.FileWatcher
	catalog     ports.ReloadableCatalog
	logger      *zap.Logger
	mu          sync.Mutex
	watching    bool
	watchCancel context.CancelFunc
	reloads     int
	done        chan struct{}
}

// NewCatalogReloadService creates a new catalog reload service
func NewCatalogReloadService(watcher ports.FileWatcher, catalog ports.ReloadableCatalog, logger *zap.Logger) *CatalogReloadService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CatalogReloadService{
		watcher: watcher,
		catalog: catalog,
		logger:  logger.With(zap.String("service", "catalog_reload")),
	}
}

// Start starts watching the catalog file
func (s *CatalogReloadService) Start(ctx context.Context) error {
	path := s.catalog.Path()
	if path == "" {
		return errors.New("catalog has no backing file")
	}

	s.mu.Lock()
	if s.watching {
		s.mu.Unlock()
		return errors.New("already watching")
	}
	s.watching = true
	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	events, err := s.watcher.Watch(watchCtx, path)
	if err != nil {
		cancel()
		s.mu.Lock()
		s.watching = false
		s.watchCancel = nil
		close(s.done)
		s.mu.Unlock()
		return fmt.Errorf("starting watcher: %w", err)
	}

	go s.handleEvents(watchCtx, events, s.done)

	return nil
}

// Stop stops watching and waits for the event loop to exit
func (s *CatalogReloadService) Stop() error {
	s.mu.Lock()
	if !s.watching {
		s.mu.Unlock()
		return nil
	}

	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	s.watching = false
	done := s.done
	s.mu.Unlock()

	<-done
	return s.watcher.Stop()
}

// IsWatching returns whether the service is currently watching
func (s *CatalogReloadService) IsWatching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watching
}

// Reloads returns the number of successful reloads
func (s *CatalogReloadService) Reloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloads
}

func (s *CatalogReloadService) handleEvents(ctx context.Context, events <-chan ports.FileChangeEvent, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}

			s.logger.Info("template catalog changed",
				zap.String("path", event.Path),
				zap.String("type", event.Type.String()),
				zap.Time("timestamp", event.Timestamp),
			)

			if err := s.catalog.Reload(ctx); err != nil {
				s.logger.Error("failed to reload template catalog",
					zap.Error(err),
					zap.String("path", event.Path),
				)
				continue
			}

			s.mu.Lock()
			s.reloads++
			s.mu.Unlock()

			s.logger.Info("template catalog reloaded",
				zap.Int("templates", len(s.catalog.List())),
			)
		}
	}
}
