package toast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default store settings.
const (
	DefaultLimit       = 1
	DefaultRemoveDelay = 1000 * time.Second
)

// Observer is told about every dispatched action.
type Observer interface {
	ActionDispatched(kind string)
}

// Option configures a Store.
type Option func(*Store)

// WithLimit sets how many toasts are retained.
func WithLimit(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithRemoveDelay sets how long a dismissed toast lingers before removal.
func WithRemoveDelay(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.removeDelay = d
		}
	}
}

// WithIDGenerator replaces the generator used for toasts added without an ID.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver attaches an observer of dispatched actions.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observer = o
	}
}

// Handle refers to a toast returned by Add.
type Handle struct {
	ID    string
	store *Store
}

// Dismiss hides the toast.
func (h Handle) Dismiss() {
	h.store.Dismiss(h.ID)
}

// Update merges p into the toast; p.ID is ignored.
func (h Handle) Update(p Patch) {
	p.ID = h.ID
	h.store.Update(p)
}

type pendingRemoval struct {
	timer *time.Timer
}

// Store is the notification state of one browser session.
// Actions are applied and published in call order.
type Store struct {
	mu          sync.Mutex
	state       State
	pending     map[string]*pendingRemoval
	listeners   *Registry
	limit       int
	removeDelay time.Duration
	newID       func() string
	logger      *slog.Logger
	observer    Observer
	closed      bool
	touched     time.Time

	// successor yields the store that replaces this one once a directory
	// sweep has retired it. Nil for stores that are closed for good.
	successor func() *Store
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state:       State{Toasts: []Toast{}},
		pending:     make(map[string]*pendingRemoval),
		listeners:   NewRegistry(),
		limit:       DefaultLimit,
		removeDelay: DefaultRemoveDelay,
		newID:       uuid.NewString,
		logger:      slog.Default(),
		touched:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add shows a new toast and returns a handle bound to its ID.
// A toast without an ID gets a generated one.
func (s *Store) Add(t Toast) Handle {
	if t.ID == "" {
		t.ID = s.newID()
	}
	if t.Variant == "" {
		t.Variant = VariantDefault
	}
	t.Open = true

	target := s.dispatch(Action{Kind: ActionAdd, Toast: t})

	return Handle{ID: t.ID, store: target}
}

// Update merges the set fields of p into the toast with p.ID.
// Unknown IDs are ignored.
func (s *Store) Update(p Patch) {
	s.dispatch(Action{Kind: ActionUpdate, Patch: p})
}

// Dismiss hides the toast with the given ID, or every toast when id is empty,
// and schedules its removal.
func (s *Store) Dismiss(id string) {
	s.dispatch(Action{Kind: ActionDismiss, ID: id})
}

// Remove deletes the toast with the given ID, or every toast when id is empty.
func (s *Store) Remove(id string) {
	s.dispatch(Action{Kind: ActionRemove, ID: id})
}

// Subscribe registers l for every future state and returns the function
// that unregisters it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	if next := s.successorLocked(); next != nil {
		s.mu.Unlock()
		return next().Subscribe(l)
	}
	defer s.mu.Unlock()
	s.touched = time.Now()
	return s.listeners.Add(l)
}

// Watch registers l, immediately calls it with the current state and returns
// the function that unregisters it. No action is applied between the
// snapshot and the registration.
func (s *Store) Watch(l Listener) func() {
	s.mu.Lock()
	if next := s.successorLocked(); next != nil {
		s.mu.Unlock()
		return next().Watch(l)
	}
	defer s.mu.Unlock()
	s.touched = time.Now()
	unsubscribe := s.listeners.Add(l)
	l(s.state)
	return unsubscribe
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Listeners returns the number of registered listeners.
func (s *Store) Listeners() int {
	return s.listeners.Len()
}

// Close stops pending removal timers. Later actions are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successor = nil
	s.closeLocked()
}

func (s *Store) closeLocked() {
	s.closed = true
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
}

// touch marks the store as in use.
func (s *Store) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()
}

// retireIfIdle closes the store when it has no listeners and saw no activity
// since cutoff. Actions sent to a retired store go to its successor.
func (s *Store) retireIfIdle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.listeners.Len() > 0 || !s.touched.Before(cutoff) {
		return false
	}
	s.closeLocked()
	return true
}

func (s *Store) successorLocked() func() *Store {
	if s.closed {
		return s.successor
	}
	return nil
}

// dispatch applies a and returns the store that applied it.
func (s *Store) dispatch(a Action) *Store {
	s.mu.Lock()
	if next := s.successorLocked(); next != nil {
		s.mu.Unlock()
		return next().dispatch(a)
	}
	defer s.mu.Unlock()
	s.applyLocked(a)
	return s
}

func (s *Store) applyLocked(a Action) {
	if s.closed {
		return
	}

	next := Reduce(s.state, a, s.limit)
	s.state = next
	s.touched = time.Now()

	if a.Kind == ActionDismiss {
		for _, t := range next.Toasts {
			if a.ID == "" || t.ID == a.ID {
				s.scheduleRemovalLocked(t.ID)
			}
		}
	}
	s.dropStaleTimersLocked()

	s.logger.Debug("toast action applied",
		slog.String("action", string(a.Kind)),
		slog.Int("toasts", len(next.Toasts)),
	)
	if s.observer != nil {
		s.observer.ActionDispatched(string(a.Kind))
	}

	s.listeners.Notify(next)
}

func (s *Store) scheduleRemovalLocked(id string) {
	if _, ok := s.pending[id]; ok {
		return
	}
	p := &pendingRemoval{}
	p.timer = time.AfterFunc(s.removeDelay, func() {
		s.expire(id, p)
	})
	s.pending[id] = p
}

func (s *Store) expire(id string, p *pendingRemoval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[id] != p {
		return
	}
	delete(s.pending, id)
	s.applyLocked(Action{Kind: ActionRemove, ID: id})
}

// dropStaleTimersLocked cancels timers of toasts no longer in the list.
func (s *Store) dropStaleTimersLocked() {
	for id, p := range s.pending {
		if _, ok := s.state.Find(id); !ok {
			p.timer.Stop()
			delete(s.pending, id)
		}
	}
}

// PendingRemovals returns how many dismissed toasts wait for removal.
func (s *Store) PendingRemovals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
