package toast

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DirectoryObserver is told about dispatched actions and the store count.
type DirectoryObserver interface {
	Observer
	StoresChanged(n int)
}

// Directory owns one Store per browser session.
// A single Directory is created at startup and shared by every handler.
type Directory struct {
	mu        sync.Mutex
	stores    map[string]*Store
	storeOpts []Option
	observer  DirectoryObserver
	logger    *slog.Logger
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithStoreOptions sets the options applied to every store the directory creates.
func WithStoreOptions(opts ...Option) DirectoryOption {
	return func(d *Directory) {
		d.storeOpts = append(d.storeOpts, opts...)
	}
}

// WithDirectoryObserver attaches an observer to the directory and its stores.
func WithDirectoryObserver(o DirectoryObserver) DirectoryOption {
	return func(d *Directory) {
		d.observer = o
	}
}

// WithDirectoryLogger sets the logger.
func WithDirectoryLogger(logger *slog.Logger) DirectoryOption {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDirectory creates an empty directory.
func NewDirectory(opts ...DirectoryOption) *Directory {
	d := &Directory{
		stores: make(map[string]*Store),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Get returns the store for key, creating it on first use.
// A store handed out by Get counts as active and is not swept before idle
// has passed again.
func (d *Directory) Get(key string) *Store {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.stores[key]; ok {
		s.touch()
		return s
	}

	opts := append([]Option{WithLogger(d.logger)}, d.storeOpts...)
	if d.observer != nil {
		opts = append(opts, WithObserver(d.observer))
	}
	s := NewStore(opts...)
	s.successor = func() *Store { return d.Get(key) }
	d.stores[key] = s
	d.reportLocked()
	return s
}

// Lookup returns the store for key without creating it.
func (d *Directory) Lookup(key string) (*Store, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.stores[key]
	return s, ok
}

// Drop closes and forgets the store for key.
func (d *Directory) Drop(key string) {
	d.mu.Lock()
	s, ok := d.stores[key]
	if ok {
		delete(d.stores, key)
		d.reportLocked()
	}
	d.mu.Unlock()

	if ok {
		s.Close()
	}
}

// Len returns the number of stores.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.stores)
}

// Sweep drops stores without listeners that saw no activity for idle.
// Callers still holding a swept store keep working: their actions and
// listeners move to the store the next Get creates for the same key.
// It returns the number of dropped stores.
func (d *Directory) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	d.mu.Lock()
	dropped := 0
	for key, s := range d.stores {
		if s.retireIfIdle(cutoff) {
			delete(d.stores, key)
			dropped++
		}
	}
	if dropped > 0 {
		d.reportLocked()
	}
	d.mu.Unlock()

	return dropped
}

// Run sweeps idle stores every period until ctx is done.
func (d *Directory) Run(ctx context.Context, period, idle time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.Sweep(idle); n > 0 {
				d.logger.DebugContext(ctx, "swept idle toast stores", slog.Int("count", n))
			}
		}
	}
}

// Close closes every store.
func (d *Directory) Close() {
	d.mu.Lock()
	stores := d.stores
	d.stores = make(map[string]*Store)
	d.reportLocked()
	d.mu.Unlock()

	for _, s := range stores {
		s.Close()
	}
}

func (d *Directory) reportLocked() {
	if d.observer != nil {
		d.observer.StoresChanged(len(d.stores))
	}
}
