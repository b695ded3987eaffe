package watcher

import (
	"context"
	"os"
	"sync"
	"time"
)

// PollingWatcher detects artifact changes by periodically comparing size and
// modification time. Used when fsnotify is unavailable (network mounts,
// some container volumes).
type PollingWatcher struct {
	interval time.Duration
	paths    []string
	state    map[string]fileSnapshot
	emit     func(FileEvent)
	stopCh   chan struct{}
	mu       sync.Mutex
	stopped  bool
}

type fileSnapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher for paths. emit receives every
// detected change.
func NewPollingWatcher(paths []string, interval time.Duration, emit func(FileEvent)) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		paths:    paths,
		state:    make(map[string]fileSnapshot, len(paths)),
		emit:     emit,
		stopCh:   make(chan struct{}),
	}
}

// Start records a baseline and polls until ctx is cancelled or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context) error {
	p.mu.Lock()
	for _, path := range p.paths {
		p.state[path] = snapshot(path)
	}
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.detectChanges()
		}
	}
}

// detectChanges compares each path against its last snapshot.
func (p *PollingWatcher) detectChanges() {
	p.mu.Lock()
	var events []FileEvent
	now := time.Now()
	for _, path := range p.paths {
		prev := p.state[path]
		cur := snapshot(path)
		p.state[path] = cur

		switch {
		case !prev.exists && cur.exists:
			events = append(events, FileEvent{Path: path, Operation: OpCreate, Timestamp: now})
		case prev.exists && !cur.exists:
			events = append(events, FileEvent{Path: path, Operation: OpDelete, Timestamp: now})
		case cur.exists && (!cur.modTime.Equal(prev.modTime) || cur.size != prev.size):
			events = append(events, FileEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
	p.mu.Unlock()

	for _, ev := range events {
		p.emit(ev)
	}
}

func snapshot(path string) fileSnapshot {
	info, err := os.Stat(path)
	if err != nil {
		// Unreadable files count as missing.
		return fileSnapshot{}
	}
	return fileSnapshot{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// Stop stops the polling watcher. Safe to call multiple times.
func (p *PollingWatcher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	p.stopped = true
	close(p.stopCh)
}
