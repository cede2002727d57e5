// Package watcher feeds the incremental half of the indexing pipeline:
// it reports file creations, modifications, and deletions under a
// workspace root, debounced and filtered through gitignore patterns.
//
// Watching is hybrid. fsnotify is the primary mechanism; when it cannot
// be established (network mounts, some container volume drivers) the
// watcher degrades to periodic polling rather than going silent.
// Debouncing coalesces the event bursts IDEs and git produce, so a
// branch switch becomes one batch of per-file events instead of
// thousands of individual commits.
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	if err := w.Start(ctx, root); err != nil {
//	    return err
//	}
//	for event := range w.Events() {
//	    // event.Operation is OpCreate, OpModify, or OpDelete
//	}
package watcher
