package watch

import (
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDelay coalesces bursts of filesystem events, e.g. a large copy.
const DefaultDelay = 300 * time.Millisecond

// Scanner counts images in a directory.
type Scanner interface {
	Scan(dir string, recursive bool) ([]string, error)
}

// Notify receives the refreshed image count of the watched directory.
type Notify func(dir string, count int)

// InputWatcher reports image-count changes of the selected input directory.
// Only the top level is watched; recursive mode rescans the whole tree on
// top-level changes.
type InputWatcher struct {
	scanner Scanner
	notify  Notify
	log     logrus.FieldLogger
	delay   time.Duration

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	done    chan struct{}
	stopped chan struct{}
	dir     string
}

// New creates an idle watcher.
func New(scanner Scanner, notify Notify, log logrus.FieldLogger) *InputWatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &InputWatcher{
		scanner: scanner,
		notify:  notify,
		log:     log,
		delay:   DefaultDelay,
	}
}

// Watch replaces the watched directory and emits an initial count. An empty
// dir just stops watching.
func (w *InputWatcher) Watch(dir string, recursive bool) error {
	if err := w.Close(); err != nil {
		return err
	}
	if dir == "" {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.mu.Lock()
	w.fsw = fsw
	w.dir = dir
	w.done = make(chan struct{})
	w.stopped = make(chan struct{})
	done, stopped := w.done, w.stopped
	w.mu.Unlock()

	w.refresh(dir, recursive)
	go w.loop(fsw, dir, recursive, done, stopped)
	return nil
}

// Dir returns the currently watched directory.
func (w *InputWatcher) Dir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dir
}

// Close stops the current watch and waits for its goroutine to exit.
func (w *InputWatcher) Close() error {
	w.mu.Lock()
	fsw, done, stopped := w.fsw, w.done, w.stopped
	w.fsw, w.done, w.stopped, w.dir = nil, nil, nil, ""
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	close(done)
	err := fsw.Close()
	<-stopped
	return err
}

func (w *InputWatcher) loop(fsw *fsnotify.Watcher, dir string, recursive bool, done, stopped chan struct{}) {
	defer close(stopped)
	debounced := debounce.New(w.delay)

	for {
		select {
		case <-done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			debounced(func() {
				select {
				case <-done:
				default:
					w.refresh(dir, recursive)
				}
			})
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).WithField("dir", dir).Warn("input watcher error")
		}
	}
}

func (w *InputWatcher) refresh(dir string, recursive bool) {
	files, err := w.scanner.Scan(dir, recursive)
	if err != nil {
		w.log.WithError(err).WithField("dir", dir).Debug("rescan failed")
		return
	}
	if w.notify != nil {
		w.notify(dir, len(files))
	}
}
