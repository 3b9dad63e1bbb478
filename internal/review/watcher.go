package review

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch notifies onChange whenever a study directory appears in or
// disappears from any route's pending_review directory. It blocks until ctx
// is cancelled. Routes created after Watch starts are picked up
// automatically.
func (c *Coordinator) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(c.baseDir); err != nil {
		return err
	}
	for _, ae := range c.routes() {
		c.watchRoute(watcher, ae)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			c.handleEvent(watcher, event, onChange)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("review: watcher: %v", err)
		}
	}
}

func (c *Coordinator) watchRoute(watcher *fsnotify.Watcher, aeTitle string) {
	dir := filepath.Join(c.baseDir, aeTitle, "pending_review")
	// The directory may not exist until the first submission; create it so
	// the watch can attach now.
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.Printf("review: create pending dir for %s: %v", aeTitle, err)
		return
	}
	if err := watcher.Add(dir); err != nil {
		log.Printf("review: watch %s: %v", dir, err)
	}
}

func (c *Coordinator) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, onChange func()) {
	name := filepath.Base(event.Name)

	// A new first-level directory is a new route; attach to its queue.
	if filepath.Dir(event.Name) == c.baseDir {
		if event.Op.Has(fsnotify.Create) && name != "scripts" {
			c.watchRoute(watcher, name)
		}
		return
	}

	if !strings.HasPrefix(name, "study_") {
		return
	}
	if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		onChange()
	}
}
