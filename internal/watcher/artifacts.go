package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ArtifactWatcher watches a fixed set of artifact files, using fsnotify on
// their parent directories with polling as a fallback.
type ArtifactWatcher struct {
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	debouncer   *Debouncer
	watched     map[string]struct{}
	dirs        []string
	errors      chan error
	stopCh      chan struct{}
	mu          sync.Mutex
	stopped     bool
}

// NewArtifactWatcher creates a watcher for paths. Empty paths are skipped.
func NewArtifactWatcher(paths []string, opts Options) (*ArtifactWatcher, error) {
	opts = opts.WithDefaults()

	w := &ArtifactWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		watched:   make(map[string]struct{}, len(paths)),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	var abs []string
	dirSeen := make(map[string]struct{})
	for _, p := range paths {
		if p == "" {
			continue
		}
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve absolute path: %w", err)
		}
		if _, dup := w.watched[a]; dup {
			continue
		}
		w.watched[a] = struct{}{}
		abs = append(abs, a)

		dir := filepath.Dir(a)
		if _, ok := dirSeen[dir]; !ok {
			dirSeen[dir] = struct{}{}
			w.dirs = append(w.dirs, dir)
		}
	}
	if len(abs) == 0 {
		return nil, errors.New("no artifact paths to watch")
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			return w, nil
		}
		slog.Warn("fsnotify unavailable, falling back to polling", slog.String("error", err.Error()))
	}
	w.pollWatcher = NewPollingWatcher(abs, opts.PollInterval, w.debouncer.Add)
	return w, nil
}

// Start watches until ctx is cancelled or Stop is called.
func (w *ArtifactWatcher) Start(ctx context.Context) error {
	if w.fsWatcher == nil {
		return w.pollWatcher.Start(ctx)
	}

	added := 0
	for _, dir := range w.dirs {
		if err := w.fsWatcher.Add(dir); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				slog.Warn("artifact_dir_missing", slog.String("dir", dir))
				continue
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		added++
	}
	if added == 0 {
		return errors.New("no artifact directory exists")
	}
	slog.Debug("artifact_watch_started", slog.Int("files", len(w.watched)), slog.Int("dirs", len(w.dirs)))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handleFsnotifyEvent forwards events for watched files to the debouncer.
func (w *ArtifactWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if _, ok := w.watched[path]; !ok {
		return
	}

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		op = OpRename
	default:
		return // chmod only
	}

	w.debouncer.Add(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
}

func (w *ArtifactWatcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		slog.Warn("watcher error dropped", slog.String("error", err.Error()))
	}
}

// Events returns debounced batches of artifact changes.
func (w *ArtifactWatcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal watcher errors.
func (w *ArtifactWatcher) Errors() <-chan error {
	return w.errors
}

// Polling reports whether the polling fallback is in use.
func (w *ArtifactWatcher) Polling() bool {
	return w.fsWatcher == nil
}

// Stop stops the watcher and closes the event channel.
// Safe to call multiple times.
func (w *ArtifactWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	var err error
	if w.fsWatcher != nil {
		err = w.fsWatcher.Close()
	}
	if w.pollWatcher != nil {
		w.pollWatcher.Stop()
	}
	w.debouncer.Stop()
	return err
}
