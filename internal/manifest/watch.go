package manifest

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/giantswarm/muster-ensemble/pkg/logging"
)

// Watcher reloads a manifest document from disk whenever the underlying
// file changes, for long-running callers (e.g. a future daemon mode) that
// want to pick up externally-edited topology without restarting.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	changes chan *Document
}

// Watch starts watching path and returns a channel that receives a freshly
// parsed Document each time the file is written. The caller must call
// Close when done.
func Watch(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("manifest: watch: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("manifest: watch %q: %w", path, err)
	}

	w := &Watcher{path: path, watcher: fw, changes: make(chan *Document, 1)}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			data, err := os.ReadFile(w.path)
			if err != nil {
				logging.Warn("Manifest", "watch: reread %s: %v", w.path, err)
				continue
			}
			doc, err := Parse(data)
			if err != nil {
				logging.Warn("Manifest", "watch: reparse %s: %v", w.path, err)
				continue
			}
			select {
			case w.changes <- doc:
			default:
				// drop the stale pending reload, the newest one always wins
				select {
				case <-w.changes:
				default:
				}
				w.changes <- doc
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Manifest", "watch error on %s: %v", w.path, err)
		}
	}
}

// Changes returns the channel of freshly reloaded documents.
func (w *Watcher) Changes() <-chan *Document { return w.changes }

// Close stops watching and releases the underlying inotify/kqueue handle.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
