package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fredcamaral/deckforge/internal/domain/ports"
)

// FSNotifyWatcher watches a single file through its parent directory so that
// editors replacing the file by rename are still observed
type FSNotifyWatcher struct {
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	events   chan ports.FileChangeEvent
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopped  bool
	checksum string
}

// NewFSNotifyWatcher creates a new fsnotify-based file watcher
func NewFSNotifyWatcher(debounce time.Duration, logger *zap.Logger) *FSNotifyWatcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FSNotifyWatcher{
		debounce: debounce,
		logger:   logger.With(zap.String("component", "watcher")),
		events:   make(chan ports.FileChangeEvent, 10),
		stopCh:   make(chan struct{}),
	}
}

// Watch starts watching path; bursts of changes within the debounce interval are
// reported once, and writes that leave the content unchanged are not reported
func (w *FSNotifyWatcher) Watch(ctx context.Context, path string) (<-chan ports.FileChangeEvent, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil, errors.New("watcher is stopped")
	}
	if w.watcher != nil {
		return nil, errors.New("watcher is already watching a file")
	}

	checksum, err := fileChecksum(absPath)
	if err != nil {
		return nil, fmt.Errorf("initial scan: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching directory: %w", err)
	}

	w.watcher = fsw
	w.checksum = checksum

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx, fsw, absPath)
	}()

	return w.events, nil
}

// Stop stops the watcher and closes the event channel
func (w *FSNotifyWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	fsw := w.watcher
	w.mu.Unlock()

	w.wg.Wait()
	close(w.events)

	if fsw != nil {
		if err := fsw.Close(); err != nil {
			return fmt.Errorf("closing fsnotify watcher: %w", err)
		}
	}
	return nil
}

func (w *FSNotifyWatcher) loop(ctx context.Context, fsw *fsnotify.Watcher, path string) {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending ports.ChangeType
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			changeType, relevant := changeTypeOf(event.Op)
			if !relevant {
				continue
			}
			pending = changeType

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			event, ok := w.settle(path, pending)
			if !ok {
				continue
			}

			select {
			case w.events <- event:
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			}
		}
	}
}

// settle inspects the file once a burst of events is over and decides what to report
func (w *FSNotifyWatcher) settle(path string, pending ports.ChangeType) (ports.FileChangeEvent, bool) {
	event := ports.FileChangeEvent{Path: path, Timestamp: time.Now()}

	checksum, err := fileChecksum(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		w.mu.Lock()
		existed := w.checksum != ""
		w.checksum = ""
		w.mu.Unlock()
		if !existed {
			return event, false
		}
		event.Type = ports.Deleted
		return event, true
	case err != nil:
		w.logger.Warn("reading watched file", zap.String("path", path), zap.Error(err))
		return event, false
	}

	w.mu.Lock()
	previous := w.checksum
	w.checksum = checksum
	w.mu.Unlock()

	if previous == checksum {
		return event, false
	}

	event.Type = ports.Modified
	if previous == "" {
		event.Type = ports.Created
	} else if pending == ports.Renamed {
		event.Type = ports.Renamed
	}
	return event, true
}

func changeTypeOf(op fsnotify.Op) (ports.ChangeType, bool) {
	switch {
	case op.Has(fsnotify.Remove):
		return ports.Deleted, true
	case op.Has(fsnotify.Rename):
		return ports.Renamed, true
	case op.Has(fsnotify.Create):
		return ports.Created, true
	case op.Has(fsnotify.Write):
		return ports.Modified, true
	default:
		return ports.Modified, false
	}
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
