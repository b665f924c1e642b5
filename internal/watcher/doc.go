// Package watcher turns file system activity under a project root into
// debounced batches and drives full index rebuilds from them.
//
// Events come from fsnotify, are filtered against .gitignore files and the
// data directory, and are coalesced per path within a debounce window.
// A Rebuilder consumes the batches and runs at most one rebuild at a time;
// batches that arrive during a rebuild collapse into a single follow-up run.
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go func() { _ = w.Start(ctx, root) }()
//
//	rb := watcher.NewRebuilder(func(ctx context.Context, b watcher.Batch) error {
//	    _, err := runner.Run(ctx, indexer.RunConfig{RootDir: root})
//	    return err
//	})
//	return rb.Run(ctx, w.Events())
package watcher
