// Package memstore is an in-process document store implementing the
// repository interfaces. Watches behave like Firestore snapshot listeners:
// an initial snapshot, then one snapshot per burst of changes.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/quocanhngo/tripzi/internal/model"
)

// Store holds every collection. Use Conversations, Messages and LiveShares
// to get the repository views.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	convs  map[string]*model.Conversation
	msgs   map[string]map[string]*entry // conversationID -> messageID
	shares map[string]map[string]*model.LiveShare
	seq    int64

	watchers map[*watcher]struct{}
	failures map[string]error
}

type entry struct {
	msg *model.Message
	seq int64
}

type watcher struct {
	topic  string
	signal chan struct{}
	err    error
}

// New creates an empty store. now resolves server timestamps; nil means time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:      now,
		convs:    make(map[string]*model.Conversation),
		msgs:     make(map[string]map[string]*entry),
		shares:   make(map[string]map[string]*model.LiveShare),
		watchers: make(map[*watcher]struct{}),
		failures: make(map[string]error),
	}
}

// FailNext makes the next call of op (e.g. "messages.Create") return err
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// BreakListeners reports err to every running watch, which then returns
func (s *Store) BreakListeners(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers {
		w.err = err
		w.poke()
	}
}

// Listeners returns the number of running watches
func (s *Store) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// takeFailure must be called with mu held
func (s *Store) takeFailure(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

// notify must be called with mu held
func (s *Store) notify(topics ...string) {
	for w := range s.watchers {
		for _, t := range topics {
			if w.topic == t {
				w.poke()
				break
			}
		}
	}
}

// poke never blocks; pending signals coalesce into one snapshot
func (w *watcher) poke() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// watch registers before the first snapshot so no change is missed, then
// calls deliver once initially and once per signal. deliver takes its own
// snapshot; it is never called with mu held.
func (s *Store) watch(ctx context.Context, topic string, deliver func(err error)) error {
	w := &watcher{topic: topic, signal: make(chan struct{}, 1)}
	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.watchers, w)
		s.mu.Unlock()
	}()

	deliver(nil)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.signal:
			if ctx.Err() != nil {
				return nil
			}
			s.mu.Lock()
			err := w.err
			s.mu.Unlock()
			if err != nil {
				deliver(err)
				return err
			}
			deliver(nil)
		}
	}
}

func chatTopic(id string) string     { return "chat:" + id }
func messagesTopic(id string) string { return "messages:" + id }
func sharesTopic(id string) string   { return "shares:" + id }

const chatsTopic = "chats"
