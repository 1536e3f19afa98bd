// Package watch re-parses conversation logs as they change on disk.
//
// A Watcher follows a directory tree with fsnotify. Writes to a .jsonl file
// are debounced per file, then the file is parsed again under a rate limit
// and the outcome is delivered on Results.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/sessionparse/internal/ignore"
	"github.com/fyrsmithlabs/sessionparse/pkg/parser"
	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

var (
	// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
	ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

	// ErrNotDirectory indicates the watch root is not a directory.
	ErrNotDirectory = errors.New("watch root is not a directory")
)

// Config controls debouncing and rate limiting.
type Config struct {
	// Debounce is how long a file must be quiet before it is parsed.
	Debounce time.Duration
	// Rate is the sustained number of parses per second.
	Rate float64
	// Burst is the number of parses allowed back to back.
	Burst int
}

// DefaultConfig returns a 500ms debounce and 4 parses per second.
func DefaultConfig() Config {
	return Config{
		Debounce: 500 * time.Millisecond,
		Rate:     4,
		Burst:    8,
	}
}

// Result is the outcome of one re-parse. Exactly one of Session and Err is
// set.
type Result struct {
	Path      string
	Session   *session.Session
	Err       error
	Timestamp time.Time
}

// Watcher re-parses changed logs under a root directory.
type Watcher struct {
	root     string
	parser   *parser.Parser
	matcher  *ignore.Matcher
	watcher  *fsnotify.Watcher
	limiter  *rate.Limiter
	debounce time.Duration
	logger   *zap.Logger

	results chan Result
	ready   chan string
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher for root. Paths excluded by root's .sessionignore
// are never watched or parsed.
func New(root string, p *parser.Parser, cfg Config, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	matcher, err := ignore.Load(root)
	if err != nil {
		return nil, fmt.Errorf("loading ignore file: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	w := &Watcher{
		root:     root,
		parser:   p,
		matcher:  matcher,
		watcher:  fw,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		debounce: cfg.Debounce,
		logger:   zap.NewNop(),
		results:  make(chan Result, 16),
		ready:    make(chan string, 64),
		stop:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches root and every directory below it, then processes events in
// the background until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root, false); err != nil {
		w.Stop()
		close(w.results)
		return err
	}

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.processReady(ctx)

	go func() {
		w.wg.Wait()
		close(w.results)
	}()

	w.logger.Info("watching for session changes", zap.String("dir", w.root))
	return nil
}

// Stop stops watching. Results is closed once in-flight work finishes.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()

		w.mu.Lock()
		for path, t := range w.pending {
			t.Stop()
			delete(w.pending, path)
		}
		w.mu.Unlock()
	})
}

// Results returns the channel of re-parse outcomes.
func (w *Watcher) Results() <-chan Result {
	return w.results
}

// addTree watches dir and its subdirectories. With schedule set, logs
// already present are queued, covering files written before the watch
// was in place.
func (w *Watcher) addTree(dir string, schedule bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if w.ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
			return nil
		}
		if schedule && isLog(path) {
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if w.ignored(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name, true); err != nil {
				w.logger.Warn("failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
			}
			return
		}
	}

	if isLog(event.Name) {
		w.schedule(event.Name)
	}
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scheduleLocked(path)
}

// scheduleLocked requires w.mu. A timer that already fired cannot be
// reset, so it is replaced and its callback drops out once it sees the
// newer timer in pending.
func (w *Watcher) scheduleLocked(path string) {
	if t, ok := w.pending[path]; ok && t.Reset(w.debounce) {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		current := w.pending[path] == t
		if current {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		if !current {
			return
		}

		select {
		case w.ready <- path:
		case <-w.stop:
		}
	})
	w.pending[path] = t
}

func (w *Watcher) processReady(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case path := <-w.ready:
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
			w.emit(ctx, w.parse(ctx, path))
		}
	}
}

func (w *Watcher) parse(ctx context.Context, path string) Result {
	s, err := w.parser.ParseFile(ctx, path)
	if err != nil {
		w.logger.Warn("re-parse failed", zap.String("file.path", path), zap.Error(err))
	} else {
		w.logger.Debug("re-parsed session",
			zap.String("file.path", path),
			zap.String("session.id", s.ID),
			zap.Int("blocks", len(s.Blocks)))
	}
	return Result{Path: path, Session: s, Err: err, Timestamp: time.Now()}
}

func (w *Watcher) emit(ctx context.Context, r Result) {
	select {
	case w.results <- r:
	case <-w.stop:
	case <-ctx.Done():
	}
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return w.matcher.Match(rel)
}

func isLog(path string) bool {
	return strings.EqualFold(filepath.Ext(path), parser.LogExtension)
}
