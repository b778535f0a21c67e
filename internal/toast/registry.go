package toast

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Listener receives every state published by a Store.
// Listeners run synchronously inside the dispatch and must not dispatch
// actions on the same Store.
type Listener func(State)

type subscription struct {
	fn      Listener
	mu      sync.Mutex
	removed atomic.Bool
	inCall  atomic.Bool
}

func (s *subscription) invoke(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed.Load() {
		return
	}
	s.inCall.Store(true)
	defer s.inCall.Store(false)
	s.fn(st)
}

// Registry is an ordered set of listeners with constant-time insert and
// delete by handle. Iteration follows registration order.
type Registry struct {
	mu    sync.RWMutex
	order *list.List
	index map[uint64]*list.Element
	next  uint64
}

// NewRegistry creates an empty listener registry.
func NewRegistry() *Registry {
	return &Registry{
		order: list.New(),
		index: make(map[uint64]*list.Element),
	}
}

// Add registers fn and returns a function that removes it again.
// The returned function is idempotent and may be called from inside fn.
// Once it returns, no new invocation of fn starts.
func (r *Registry) Add(fn Listener) func() {
	sub := &subscription{fn: fn}

	r.mu.Lock()
	r.next++
	handle := r.next
	r.index[handle] = r.order.PushBack(sub)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.remove(handle)
			sub.removed.Store(true)
			if !sub.inCall.Load() {
				// Wait out an invocation that passed the removed check.
				sub.mu.Lock()
				sub.mu.Unlock() //nolint:staticcheck // empty critical section is a barrier
			}
		})
	}
}

func (r *Registry) remove(handle uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.index[handle]; ok {
		r.order.Remove(el)
		delete(r.index, handle)
	}
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index)
}

// Notify calls every registered listener with st.
func (r *Registry) Notify(st State) {
	r.mu.RLock()
	subs := make([]*subscription, 0, r.order.Len())
	for el := r.order.Front(); el != nil; el = el.Next() {
		subs = append(subs, el.Value.(*subscription)) //nolint:errcheck // only subscriptions are stored
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		sub.invoke(st)
	}
}
