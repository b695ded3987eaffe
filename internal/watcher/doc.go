// Package watcher reloads the retrieval engine when its on-disk artifacts
// change.
//
// ArtifactWatcher watches the parent directories of the chunk, index and
// meta files with fsnotify, and falls back to polling their size and
// modification time where fsnotify is unavailable. Events are debounced so
// that a rebuild writing several files triggers one reload.
//
// Usage:
//
//	w, err := watcher.NewArtifactWatcher([]string{chunks, index, meta}, watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go w.Start(ctx)
//
//	r := watcher.NewReloader(holder, loadFn, watcher.DefaultOptions())
//	r.Run(ctx, w.Events())
package watcher
