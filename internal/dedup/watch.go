package dedup

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watch keeps the index of dir in sync with files created, renamed or
// removed by other programs until ctx is done. Only dir itself is watched,
// not its subdirectories.
//
// Example:
//
//	if err := index.Watch(ctx, "/music"); err != nil {
//	    logger.Warn("watch disabled", "error", err)
//	}
func (x *Index) Watch(ctx context.Context, dir string) error {
	if err := x.Scan(dir); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	x.logger.Info("watching destination directory", "dir", dir)
	go x.watchLoop(ctx, watcher)
	return nil
}

func (x *Index) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			x.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			x.logger.Error("file watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

func (x *Index) handleEvent(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		x.Register(event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		x.Unregister(event.Name)
	}
}
