// internal/ledger/registry.go
package ledger

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mcp-calorie-log/internal/metrics"
)

// Registry maps identities to their Ledger. Each identity gets exactly one
// Ledger for the life of the registry; ledgers for different identities share
// nothing but the Store.
type Registry struct {
	store   Store
	clock   Clock
	timeout time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu      sync.RWMutex
	ledgers map[string]*Ledger
}

// DefaultPersistTimeout applies when no WithPersistTimeout option is given.
const DefaultPersistTimeout = 5 * time.Second

type Option func(*Registry)

func WithClock(c Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithPersistTimeout bounds each load, save and clear against the Store.
// Zero disables the bound.
func WithPersistTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		clock:   systemClock{loc: time.UTC},
		timeout: DefaultPersistTimeout,
		log:     zerolog.Nop(),
		ledgers: make(map[string]*Ledger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the ledger for identity, creating it on first access. The new
// ledger loads its persisted state lazily on its first operation.
func (r *Registry) Get(identity string) *Ledger {
	r.mu.RLock()
	l, ok := r.ledgers[identity]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.ledgers[identity]; ok {
		return l
	}
	l = newLedger(identity, r.store, r.clock, r.timeout, r.metrics, r.log)
	r.ledgers[identity] = l
	r.metrics.SetActiveLedgers(len(r.ledgers))
	return l
}

// Len reports how many ledgers have been created.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ledgers)
}

// Today is the current bucket date according to the registry's clock.
func (r *Registry) Today() string {
	return DateOf(r.clock, r.clock.Now())
}
