// Package watch rebuilds targets whose sources change on disk.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tsbuild/internal/core"
)

// DefaultDebounce is how long a source must stay quiet before it is rebuilt.
const DefaultDebounce = 200 * time.Millisecond

// RebuildFunc runs the pipeline for the changed targets, in configuration
// order. Its error is logged; the watcher keeps running.
type RebuildFunc func(ctx context.Context, targets []core.Target) error

// Options configures a Watcher.
type Options struct {
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Stats tracks watcher activity.
type Stats struct {
	Events   int
	Skipped  int
	Rebuilds int
	Errors   int
}

// Watcher watches the directories of a set of target sources and calls a
// RebuildFunc for the targets whose source content changed.
//
// A source counts as changed when its sha256 digest differs from the digest
// seen at the last rebuild (or at Start). Saving identical content does not
// trigger a rebuild.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	workDir  string
	targets  []core.Target
	rebuild  RebuildFunc
	log      *zap.Logger
	debounce time.Duration

	// keyed by absolute source path
	pending map[string]time.Time
	digests map[string]core.Digest

	primed   bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	stats    Stats
}

// New creates a Watcher for targets resolved under workDir.
func New(workDir string, targets []core.Target, rebuild RebuildFunc, opts Options) (*Watcher, error) {
	if rebuild == nil {
		return nil, errors.New("watch: nil rebuild func")
	}
	if len(targets) == 0 {
		return nil, errors.New("watch: no targets")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating fsnotify watcher")
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Watcher{
		watcher:  fw,
		workDir:  workDir,
		targets:  append([]core.Target(nil), targets...),
		rebuild:  rebuild,
		log:      opts.Logger,
		debounce: opts.Debounce,
		pending:  make(map[string]time.Time),
		digests:  make(map[string]core.Digest),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Prime records the current source digests as the baseline changes are
// measured against. Call it before the initial build so that edits made
// while that build runs are picked up by Start. Start primes on its own
// when Prime was not called.
func (w *Watcher) Prime() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.targets {
		src := w.sourcePath(t)
		d, err := core.DigestFile(src)
		if err != nil {
			w.log.Debug("source not readable yet", zap.String("source", src), zap.Error(err))
			continue
		}
		w.digests[src] = d
	}
	w.primed = true
}

// Start adds every source directory to the watch list and starts the event
// loop. Sources that changed since Prime are queued for a rebuild. It does
// not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	primed := w.primed
	w.mu.Unlock()

	if !primed {
		w.Prime()
	}

	dirs := make(map[string]bool)
	for _, t := range w.targets {
		dir := filepath.Dir(w.sourcePath(t))
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := w.watcher.Add(dir); err != nil {
			_ = w.watcher.Close()
			close(w.doneCh)
			return errors.Wrapf(err, "watching %s", dir)
		}
		w.log.Debug("watching directory", zap.String("dir", dir))
	}

	// Events from before the directories were added are lost; compare
	// against the baseline instead.
	w.mu.Lock()
	for _, t := range w.targets {
		src := w.sourcePath(t)
		if d, err := core.DigestFile(src); err == nil && d != w.digests[src] {
			w.pending[src] = time.Time{}
			w.log.Debug("source changed before watching", zap.String("source", src))
		}
	}
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Stop ends the event loop, waits for it to exit and releases the
// underlying watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		started := w.running
		w.mu.Unlock()
		if started {
			close(w.stopCh)
			<-w.doneCh
		}
		if err := w.watcher.Close(); err != nil {
			w.log.Warn("closing watcher", zap.Error(err))
		}
	})
}

// Run starts the watcher and blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// Stats returns a snapshot of the watcher's counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	name := filepath.Clean(event.Name)
	if _, ok := w.targetFor(name); !ok {
		return
	}

	w.mu.Lock()
	w.pending[name] = time.Now()
	w.stats.Events++
	w.mu.Unlock()
	w.log.Debug("source event", zap.String("source", name), zap.Stringer("op", event.Op))
}

// flush rebuilds the targets whose sources have been quiet for the debounce
// interval and whose content changed.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var ready []string
	for src, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, src)
			delete(w.pending, src)
		}
	}
	w.mu.Unlock()
	if len(ready) == 0 {
		return
	}

	changed := make(map[string]core.Digest, len(ready))
	for _, src := range ready {
		d, err := core.DigestFile(src)
		if err != nil {
			w.log.Debug("source vanished", zap.String("source", src), zap.Error(err))
			continue
		}
		if d == w.digests[src] {
			w.mu.Lock()
			w.stats.Skipped++
			w.mu.Unlock()
			continue
		}
		changed[src] = d
	}
	if len(changed) == 0 {
		return
	}

	var targets []core.Target
	for _, t := range w.targets {
		if _, ok := changed[w.sourcePath(t)]; ok {
			targets = append(targets, t)
		}
	}
	w.mu.Lock()
	for src, d := range changed {
		w.digests[src] = d
	}
	w.stats.Rebuilds++
	w.mu.Unlock()

	w.log.Info("rebuilding", zap.Int("targets", len(targets)))
	if err := w.rebuild(ctx, targets); err != nil {
		w.log.Warn("rebuild failed", zap.Error(err))
	}
}

func (w *Watcher) targetFor(src string) (core.Target, bool) {
	for _, t := range w.targets {
		if w.sourcePath(t) == src {
			return t, true
		}
	}
	return core.Target{}, false
}

func (w *Watcher) sourcePath(t core.Target) string {
	p := t.Source
	if !filepath.IsAbs(p) && w.workDir != "" {
		p = filepath.Join(w.workDir, p)
	}
	return filepath.Clean(p)
}
