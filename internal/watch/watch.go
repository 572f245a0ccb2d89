// Package watch takes a snapshot whenever the project has been quiet for a
// while after a change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"

	"github.com/pders01/verz/internal/exclude"
	"github.com/pders01/verz/internal/lock"
	"github.com/pders01/verz/internal/store"
)

// DefaultQuietPeriod is used when Options.QuietPeriod is zero
const DefaultQuietPeriod = 2 * time.Second

// Snapshotter captures the project
type Snapshotter interface {
	Snapshot(message string) (store.Result, error)
}

// Outcome is the result of one automatic snapshot
type Outcome struct {
	Result store.Result
	Err    error
	At     time.Time
}

// Options configures a Watcher
type Options struct {
	Root        string
	Policy      exclude.Policy
	QuietPeriod time.Duration
	Message     string
	// Ignore lists extra entry names that never trigger a snapshot
	Ignore []string
}

// Watcher turns file system events below Root into debounced snapshots
type Watcher struct {
	snap    Snapshotter
	opts    Options
	ignore  map[string]bool
	fsw     *fsnotify.Watcher
	results chan Outcome

	mu         sync.Mutex
	dirty      bool
	lastChange time.Time
}

// New prepares a Watcher. Call Run to start it.
func New(snap Snapshotter, opts Options) (*Watcher, error) {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.Message == "" {
		opts.Message = "auto snapshot"
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	opts.Root = root

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ignore := make(map[string]bool, len(opts.Ignore))
	for _, name := range opts.Ignore {
		ignore[name] = true
	}

	return &Watcher{
		snap:    snap,
		opts:    opts,
		ignore:  ignore,
		fsw:     fsw,
		results: make(chan Outcome, 16),
	}, nil
}

// Results delivers the outcome of every automatic snapshot. Outcomes are
// dropped when nobody reads them.
func (w *Watcher) Results() <-chan Outcome {
	return w.results
}

// Run watches until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.addTree(w.opts.Root); err != nil {
		return err
	}
	log.Infof("watching %s (quiet period %s)", w.opts.Root, w.opts.QuietPeriod)

	var wg conc.WaitGroup
	wg.Go(func() { w.eventLoop(ctx) })
	wg.Go(func() { w.debounceLoop(ctx) })
	wg.Wait()

	close(w.results)
	return nil
}

// addTree registers dir and every directory below it that the policy keeps
func (w *Watcher) addTree(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return exclude.Walk(afero.NewOsFs(), dir, w.opts.Policy, func(path, rel string, info os.FileInfo) error {
		if !info.IsDir() || w.ignore[info.Name()] {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// relevant reports whether a change at path should lead to a snapshot
func (w *Watcher) relevant(path string, isDir bool) bool {
	if w.ignore[filepath.Base(path)] {
		return false
	}
	for dir := filepath.Dir(path); dir != w.opts.Root && dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		if w.ignore[filepath.Base(dir)] {
			return false
		}
	}
	return w.opts.Policy.Decide(w.opts.Root, path, isDir) == exclude.Descend
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}

			info, err := os.Lstat(event.Name)
			isDir := err == nil && info.IsDir()
			if !w.relevant(event.Name, isDir) {
				continue
			}

			if isDir && event.Op&fsnotify.Create != 0 {
				if err := w.addTree(event.Name); err != nil {
					log.Warnf("failed to watch new directory: %v", err)
				}
			}
			log.Debugf("change: %s %s", event.Op, event.Name)
			w.markDirty()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warnf("watch error: %v", err)
		}
	}
}

func (w *Watcher) markDirty() {
	w.mu.Lock()
	w.dirty = true
	w.lastChange = time.Now()
	w.mu.Unlock()
}

// settled reports whether there are changes that have been quiet long enough,
// and clears the dirty flag if so
func (w *Watcher) settled(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirty || now.Sub(w.lastChange) < w.opts.QuietPeriod {
		return false
	}
	w.dirty = false
	return true
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	tick := w.opts.QuietPeriod / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if w.settled(now) {
				w.snapshot()
			}
		}
	}
}

func (w *Watcher) snapshot() {
	res, err := w.snap.Snapshot(w.opts.Message)

	var contention *lock.ContentionError
	if errors.As(err, &contention) {
		// another operation is running; try again after the next quiet period
		log.Infof("sanctuary busy, retrying: %v", err)
		w.markDirty()
	} else if err != nil {
		log.Errorf("auto snapshot failed: %v", err)
	}

	select {
	case w.results <- Outcome{Result: res, Err: err, At: time.Now()}:
	default:
	}
}
