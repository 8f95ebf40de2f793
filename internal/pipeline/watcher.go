package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cdnilsen/eliot-web/internal/parser"
)

// Watcher re-reconciles a book when one of its source files changes under
// root. Events for the same book are debounced; books run one at a time.
type Watcher struct {
	runner   *Runner
	root     string
	debounce time.Duration
	logger   *slog.Logger
	ready    chan struct{}

	// OnReconciled, when set, is called after every triggered run.
	OnReconciled func(book string, rep *Report, err error)
}

func NewWatcher(runner *Runner, root string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		runner:   runner,
		root:     root,
		debounce: debounce,
		logger:   runner.logger.With("component", "watcher"),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once every directory under root is being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches until ctx is cancelled. Cancellation is a clean shutdown and
// returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addWatches(fw, w.root); err != nil {
		return err
	}
	close(w.ready)
	w.logger.Info("watching sources", "root", w.root, "debounce", w.debounce.String())

	done := make(chan struct{})
	defer close(done)
	due := make(chan string)
	timers := map[string]*time.Timer{}
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			book, ok := w.handle(fw, ev)
			if !ok {
				continue
			}
			if t, pending := timers[book]; pending {
				t.Stop()
			}
			timers[book] = time.AfterFunc(w.debounce, func() {
				select {
				case due <- book:
				case <-done:
				}
			})

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case book := <-due:
			delete(timers, book)
			rep, err := w.runner.ReconcileBook(ctx, book)
			if err != nil {
				w.logger.Error("triggered reconcile failed", "book", book, "error", err)
			}
			if w.OnReconciled != nil {
				w.OnReconciled(book, rep, err)
			}
		}
	}
}

// handle maps an event to the book it touches. New directories are watched
// as they appear.
func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event) (string, bool) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addWatches(fw, ev.Name); err != nil {
				w.logger.Warn("watch new directory failed", "path", ev.Name, "error", err)
			}
			return "", false
		}
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return "", false
	}
	if !strings.HasSuffix(ev.Name, ".txt") {
		return "", false
	}
	book, _, err := parser.ParseFileName(filepath.ToSlash(ev.Name))
	if err != nil {
		w.logger.Debug("ignoring change", "path", ev.Name, "error", err)
		return "", false
	}
	w.logger.Debug("source changed", "path", ev.Name, "op", ev.Op.String(), "book", book.Name)
	return book.Name, true
}

func (w *Watcher) addWatches(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
