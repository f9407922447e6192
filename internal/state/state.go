// Package state holds the single currently loaded trace and keeps the durable
// snapshot slot in sync with it.
//
// The Store is the only writer of its state. Consumers read with Current and
// dispatch intents through LoadText, Load and Clear.
package state

import (
	"fmt"
	"log/slog"
	"sync"

	"traceviz/internal/models"
	"traceviz/internal/parser"
	"traceviz/internal/storage"
)

// DefaultKey is the slot key used for the persisted trace.
const DefaultKey = "trace"

// EventKind identifies a store transition.
type EventKind string

const (
	EventLoaded   EventKind = "loaded"
	EventRestored EventKind = "restored"
	EventCleared  EventKind = "cleared"
)

// Event is delivered to subscribers after every transition. Trace is nil
// after a clear.
type Event struct {
	Kind  EventKind
	Trace *models.DurableTrace
}

// Store is the trace state machine: Empty or Loaded(trace).
type Store struct {
	slot   storage.Slot
	key    string
	logger *slog.Logger

	// writeMu orders loads so memory and the slot see the same sequence.
	writeMu sync.Mutex

	mu      sync.RWMutex
	current *models.DurableTrace

	subMu       sync.Mutex
	subscribers map[int]func(Event)
	nextSub     int
}

// New creates an empty store persisting under key in slot.
func New(slot storage.Slot, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		slot:        slot,
		key:         key,
		logger:      logger,
		subscribers: make(map[int]func(Event)),
	}
}

// Restore seeds the store from the persisted snapshot. A missing, unreadable
// or invalid snapshot leaves the store empty and is not reported as an error.
func (s *Store) Restore() bool {
	raw, ok, err := s.slot.Get(s.key)
	if err != nil {
		s.logger.Warn("read persisted trace", "key", s.key, "error", err)
		return false
	}
	if !ok {
		s.logger.Debug("no persisted trace", "key", s.key)
		return false
	}

	trace, err := parser.Parse(raw)
	if err != nil {
		s.logger.Warn("discard persisted trace", "key", s.key, "error", err)
		return false
	}

	s.mu.Lock()
	s.current = &trace
	s.mu.Unlock()

	s.logger.Info("restored trace", "name", trace.Name, "execution", trace.DurableExecutionID, "steps", len(trace.Steps))
	s.publish(Event{Kind: EventRestored, Trace: &trace})
	return true
}

// Current returns the loaded trace, if any.
func (s *Store) Current() (models.DurableTrace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return models.DurableTrace{}, false
	}
	return *s.current, true
}

// Loaded reports whether a trace is loaded.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// LoadText parses text and loads the result. On a parse error the store is
// left unchanged and the *parser.ParseError is returned.
func (s *Store) LoadText(text string) error {
	_, err := s.LoadTextTrace(text)
	return err
}

// LoadTextTrace is LoadText that also returns the trace it loaded, so callers
// do not have to read it back through Current.
func (s *Store) LoadTextTrace(text string) (models.DurableTrace, error) {
	trace, err := parser.Parse(text)
	if err != nil {
		return models.DurableTrace{}, err
	}
	return trace, s.Load(trace)
}

// Load replaces the current trace and persists it. The in-memory transition
// happens even when persisting fails; the write error is returned.
func (s *Store) Load(trace models.DurableTrace) error {
	data, err := parser.Marshal(trace)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	s.mu.Lock()
	s.current = &trace
	s.mu.Unlock()
	setErr := s.slot.Set(s.key, string(data))
	s.writeMu.Unlock()

	s.logger.Info("loaded trace", "name", trace.Name, "execution", trace.DurableExecutionID, "steps", len(trace.Steps))
	s.publish(Event{Kind: EventLoaded, Trace: &trace})

	if setErr != nil {
		s.logger.Error("persist trace", "key", s.key, "error", setErr)
		return fmt.Errorf("persist trace: %w", setErr)
	}
	return nil
}

// Clear empties the in-memory view. The persisted snapshot is kept, so the
// next start restores the trace again.
func (s *Store) Clear() {
	s.writeMu.Lock()
	s.mu.Lock()
	wasLoaded := s.current != nil
	s.current = nil
	s.mu.Unlock()
	s.writeMu.Unlock()

	if wasLoaded {
		s.logger.Info("cleared trace")
	}
	s.publish(Event{Kind: EventCleared})
}

// Subscribe registers fn for every future transition. Callbacks run
// synchronously on the goroutine that caused the transition, outside the
// store lock. The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) publish(evt Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(evt)
	}
}
