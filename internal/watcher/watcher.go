// Package watcher polls snapshot files for modification-time changes and
// hands the new content to a Sink.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/smartstore-copilot/internal/models"
	"github.com/kjstillabower/smartstore-copilot/internal/observability"
)

// Config describes one watched file.
type Config struct {
	Name     string // target name used in logs, metrics and routing keys
	Path     string
	Interval time.Duration
}

// State is the last modification time observed for the path. Seen is false
// until the first change has been handled.
type State struct {
	ModTime time.Time
	Seen    bool
}

// Watcher polls one path. Not safe for concurrent Run calls.
type Watcher struct {
	cfg    Config
	sink   Sink
	logger *zap.Logger

	stat     func(string) (fs.FileInfo, error)
	readFile func(string) ([]byte, error)
	now      func() time.Time

	state State
}

// New validates cfg and returns a Watcher delivering changes to sink.
// An empty Name defaults to Path.
func New(cfg Config, sink Sink, logger *zap.Logger) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("watcher: path is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("watcher: interval must be positive, got %v", cfg.Interval)
	}
	if sink == nil {
		return nil, errors.New("watcher: sink is required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Path
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		cfg:      cfg,
		sink:     sink,
		logger:   logger.With(zap.String("target", cfg.Name), zap.String("path", cfg.Path)),
		stat:     os.Stat,
		readFile: os.ReadFile,
		now:      time.Now,
	}, nil
}

// Run polls immediately and then once per interval until ctx is cancelled.
// It returns ctx.Err(). Poll failures are logged and never end the loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching file", zap.Duration("interval", w.cfg.Interval))

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// State returns the last observed modification time.
func (w *Watcher) State() State {
	return w.state
}

// poll runs one check and reports whether a change was handed to the sink.
func (w *Watcher) poll(ctx context.Context) bool {
	observability.WatcherPollsTotal.WithLabelValues(w.cfg.Name).Inc()

	info, err := w.stat(w.cfg.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			w.logger.Debug("file not present")
			return false
		}
		w.logger.Warn("stat failed", zap.Error(err))
		return false
	}
	if info.IsDir() {
		w.logger.Warn("path is a directory, skipping")
		return false
	}

	modTime := info.ModTime()
	if w.state.Seen && modTime.Equal(w.state.ModTime) {
		return false
	}

	content, err := w.readFile(w.cfg.Path)
	if err != nil {
		// modtime stays unrecorded so the next tick retries
		observability.WatcherReadErrorsTotal.WithLabelValues(w.cfg.Name).Inc()
		w.logger.Warn("read changed file failed", zap.Error(err))
		return false
	}

	change := models.FileChange{
		ID:         ulid.Make().String(),
		Target:     w.cfg.Name,
		Path:       w.cfg.Path,
		ModTime:    modTime,
		Size:       int64(len(content)),
		DetectedAt: w.now(),
		Content:    string(content),
	}
	if err := w.sink.Deliver(ctx, change); err != nil {
		observability.WatcherSinkErrorsTotal.WithLabelValues(w.cfg.Name).Inc()
		w.logger.Error("deliver change failed", zap.String("changeId", change.ID), zap.Error(err))
	}

	w.state = State{ModTime: modTime, Seen: true}
	observability.WatcherChangesTotal.WithLabelValues(w.cfg.Name).Inc()
	observability.WatcherLastChangeTimestamp.WithLabelValues(w.cfg.Name).Set(float64(modTime.Unix()))
	w.logger.Info("file changed", zap.String("changeId", change.ID), zap.Time("modTime", modTime), zap.Int64("size", change.Size))
	return true
}

// Watch polls path every interval and calls onChange with the full content
// each time the modification time changes, until ctx is cancelled.
func Watch(ctx context.Context, path string, interval time.Duration, onChange func(content string)) error {
	w, err := New(Config{Path: path, Interval: interval}, SinkFunc(func(_ context.Context, c models.FileChange) error {
		onChange(c.Content)
		return nil
	}), nil)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
