package watcher

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"hubward/internal/logging"
)

// Watcher wraps the OS filesystem notifier over the inbox root and its
// subdirectories. Event callbacks are dispatched off the notifier loop so
// they can never block event delivery.
type Watcher struct {
	root    string
	fsw     *fsnotify.Watcher
	onEvent func(FileEvent)
	onError func(error)
	logger  *slog.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs a watcher over root. onEvent receives create, write, chmod,
// remove and rename events for files; a created directory is added to the
// watch instead of being forwarded. onError receives non-fatal watch errors (recovery is the caller's
// responsibility).
func New(root string, onEvent func(FileEvent), onError func(error), logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:    root,
		fsw:     fsw,
		onEvent: onEvent,
		onError: onError,
		logger:  logging.NewComponentLogger(logger, "watcher"),
		done:    make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start runs the event loop until Close.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Close stops the notifier and waits for the loop to exit.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case raw, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(raw)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
			w.logger.Warn("watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) handle(raw fsnotify.Event) {
	event := FileEvent{Path: raw.Name, OccurredAt: time.Now().UTC()}
	switch {
	case raw.Has(fsnotify.Create):
		event.Type = EventCreated
		// New directories join the watch so files dropped inside them are
		// still observed.
		if info, err := os.Stat(raw.Name); err == nil && info.IsDir() {
			if err := w.addTree(raw.Name); err != nil && w.onError != nil {
				w.onError(err)
			}
			return
		}
	case raw.Has(fsnotify.Remove):
		event.Type = EventDeleted
	case raw.Has(fsnotify.Rename):
		event.Type = EventRenamed
		event.OldPath = raw.Name
	case raw.Has(fsnotify.Write), raw.Has(fsnotify.Chmod):
		event.Type = EventModified
	default:
		return
	}

	if w.onEvent != nil {
		// Callbacks must never block the notifier loop.
		go w.onEvent(event)
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}
