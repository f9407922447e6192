package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Loader accepts raw trace text.
type Loader interface {
	LoadText(text string) error
}

// Monitor watches a trace file and loads it on every change.
type Monitor struct {
	path    string
	loader  Loader
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	started atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a monitor for path. The parent directory is watched so that
// editors replacing the file by rename are picked up.
func New(path string, loader Loader, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve watch file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Monitor{
		path:    abs,
		loader:  loader,
		logger:  logger.With("file", abs),
		watcher: watcher,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start loads the file once and launches the watch loop in a goroutine.
func (m *Monitor) Start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	go m.run()
}

// Stop requests graceful loop termination and waits until it is done. It is
// safe to call more than once and from several goroutines.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		if m.started.CompareAndSwap(false, true) {
			// never started: only the watcher needs releasing
			close(m.doneCh)
			_ = m.watcher.Close()
			return
		}
		close(m.stopCh)
	})
	<-m.doneCh
}

// LoadOnce reads the file and hands it to the loader.
func (m *Monitor) LoadOnce() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read trace file: %w", err)
	}
	return m.loader.LoadText(string(data))
}

func (m *Monitor) run() {
	defer close(m.doneCh)
	defer m.watcher.Close()

	if err := m.LoadOnce(); err != nil {
		m.logger.Warn("initial trace load failed", "error", err)
	}

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if !m.relevant(event) {
				continue
			}
			m.logger.Debug("trace file changed", "op", event.Op.String())
			if err := m.LoadOnce(); err != nil {
				m.logger.Warn("trace reload failed", "error", err)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("watcher error", "error", err)
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != m.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}
