package scenario

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Library whenever its scenario file changes on disk. A file
// that fails to parse is logged and the previous catalog is kept.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	library *Library
	started bool
	done    chan struct{}
}

// NewWatcher watches the directory holding path, so editors that replace the
// file by rename are seen too.
func NewWatcher(path string, library *Library) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}

	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		watcher: fw,
		path:    abs,
		library: library,
		done:    make(chan struct{}),
	}, nil
}

// Start runs the event loop in its own goroutine.
func (w *Watcher) Start() {
	w.started = true
	go func() {
		defer close(w.done)
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Println("[Scenario Watcher] error:", err)
			}
		}
	}()
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	if w.started {
		<-w.done
	}
	return err
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	c, err := ReadFile(w.path)
	if err != nil {
		log.Printf("[Scenario Watcher] keeping previous catalog: %v\n", err)
		return
	}
	w.library.Replace(c)
	log.Printf("[Scenario Watcher] reloaded %d scenarios from %s\n", len(c), w.path)
}
