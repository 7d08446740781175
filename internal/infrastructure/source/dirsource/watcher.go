package dirsource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher triggers an index rebuild when the article directory changes. Bulk
// scrapes touch many files in a burst, so events are debounced into one
// trigger.
type Watcher struct {
	dir      string
	debounce time.Duration
	trigger  func(context.Context)
	log      *slog.Logger
}

func NewWatcher(dir string, debounce time.Duration, trigger func(context.Context), log *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{dir: dir, debounce: debounce, trigger: trigger, log: log}
}

// Run blocks until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info("watching article directory", "dir", w.dir, "debounce", w.debounce)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isArticleFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", "error", err)

		case <-fire:
			timer = nil
			fire = nil
			w.log.Info("article directory changed, triggering rebuild")
			w.trigger(ctx)
		}
	}
}
