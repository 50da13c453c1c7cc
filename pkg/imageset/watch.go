package imageset

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/menta2k/image-splitter/internal/utils"
)

// Watch appends image files created in or moved into dir to the set until ctx is
// cancelled. onAdd, when not nil, is called with the path of every added image.
// Watch blocks; run it in its own goroutine.
func (s *Set) Watch(ctx context.Context, dir string, onAdd func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isNewFileEvent(event) || !utils.FileExists(event.Name) {
				continue
			}
			if s.Add(event.Name) > 0 && onAdd != nil {
				onAdd(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
}

func isNewFileEvent(event fsnotify.Event) bool {
	return event.Op&(fsnotify.Create|fsnotify.Rename) != 0 && utils.IsImageFile(event.Name)
}
