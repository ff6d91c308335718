// Package watch re-runs work when script files change on disk.
package watch

import (
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/pubsub/internal/errors"
	"github.com/Iron-Ham/pubsub/internal/logging"
)

// DefaultDebounce is used when a Watcher is created with a negative debounce.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes to a fixed set of files. It watches the parent
// directories, so editors that save by renaming a temp file are seen too.
type Watcher struct {
	fsw      *fsnotify.Watcher
	files    map[string]bool // absolute paths of watched files
	debounce time.Duration
	onChange func(path string)
	logger   *logging.Logger

	startOnce sync.Once
	closeOnce sync.Once
	stopCh    chan struct{}
	done      chan struct{}
	started   bool
}

// New creates a Watcher for files. onChange is called from the watcher's
// goroutine with the path as given to New, once per debounced burst.
func New(files []string, debounce time.Duration, onChange func(path string), logger *logging.Logger) (*Watcher, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to watch")
	}
	if debounce < 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create file watcher")
	}

	w := &Watcher{
		fsw:      fsw,
		files:    make(map[string]bool),
		debounce: debounce,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	names := make(map[string]string)
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			_ = fsw.Close()
			return nil, errors.Wrapf(err, "resolve %s", f)
		}
		w.files[abs] = true
		names[abs] = f
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, errors.Wrapf(err, "watch %s", dir)
		}
	}
	w.onChange = func(abs string) {
		if onChange != nil {
			onChange(names[abs])
		}
	}

	return w, nil
}

// Start begins delivering change notifications. Calling it more than once
// has no effect.
func (w *Watcher) Start() {
	w.startOnce.Do(func() {
		w.started = true
		go w.loop()
	})
}

// Close stops the watcher and waits for its goroutine to exit, including any
// callback in progress.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopCh)
		// Claims startOnce so a later Start cannot launch the loop.
		w.startOnce.Do(func() {})
		if w.started {
			<-w.done
		}
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)

	// Editors emit several events per save; collect them for a short period.
	timer := time.NewTimer(0)
	<-timer.C

	pending := make(map[string]bool)

	for {
		select {
		case <-w.stopCh:
			timer.Stop()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !w.files[abs] {
				continue
			}
			w.logger.Debug("script changed", "path", abs, "op", event.Op.String())
			pending[abs] = true
			timer.Reset(w.debounce)

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			slices.Sort(paths)
			for _, p := range paths {
				w.onChange(p)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}
