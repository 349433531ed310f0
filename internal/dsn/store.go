// Package dsn implements the DSNHandler / local data store of spec.md
// §2 and §4.9: the local attribute store every node keeps for itself
// (insert/update/remove; changes are not pushed to DSNs), and the
// cover-area cache + subscription-frequency
// bookkeeping a node keeps about its own data when it is acting as a
// DSN.
package dsn

import (
	"sort"
	"sync"

	"minhton/internal/logger"
	"minhton/internal/mdomain"
)

// LocalStore is the per-node attribute table exposed through the Node
// application API's insert/update/remove (spec.md §6). It is the
// analogue of the teacher's in-memory Storage, keyed by attribute name
// instead of a ring identifier.
type LocalStore struct {
	mu   sync.RWMutex
	data map[string]mdomain.Attribute
	lgr  logger.Logger

	// onChange is invoked (outside the lock) for every insert/update/
	// remove so the owning node can push SubscriptionUpdates to any DSN
	// that has subscribed to the affected key.
	onChange func(key string, val mdomain.Attribute, removed bool)
}

// Option configures a LocalStore at construction.
type Option func(*LocalStore)

// WithLogger sets the logger used for structured diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(s *LocalStore) {
		if l != nil {
			s.lgr = l
		}
	}
}

// WithChangeCallback registers a hook fired after every mutating call.
func WithChangeCallback(fn func(key string, val mdomain.Attribute, removed bool)) Option {
	return func(s *LocalStore) { s.onChange = fn }
}

// NewLocalStore creates an empty attribute store.
func NewLocalStore(opts ...Option) *LocalStore {
	s := &LocalStore{
		data: make(map[string]mdomain.Attribute),
		lgr:  &logger.NopLogger{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Insert adds or overwrites entries, firing onChange for each.
func (s *LocalStore) Insert(entries []mdomain.Attribute) {
	s.mu.Lock()
	for _, a := range entries {
		s.data[a.Key] = a
	}
	s.mu.Unlock()
	s.lgr.Debug("localstore: insert", logger.F("count", len(entries)))
	for _, a := range entries {
		s.notify(a.Key, a, false)
	}
}

// Update replaces existing entries; semantically identical to Insert
// for this map-backed store (spec.md draws no distinction beyond
// intent), kept as a separate method to mirror the Node API surface.
func (s *LocalStore) Update(entries []mdomain.Attribute) { s.Insert(entries) }

// Remove deletes the named keys, firing onChange for each removed key.
func (s *LocalStore) Remove(keys []string) {
	s.mu.Lock()
	removed := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := s.data[k]; ok {
			delete(s.data, k)
			removed = append(removed, k)
		}
	}
	s.mu.Unlock()
	s.lgr.Debug("localstore: remove", logger.F("count", len(removed)))
	for _, k := range removed {
		s.notify(k, mdomain.Attribute{Key: k}, true)
	}
}

// Get returns the current value of key, if present.
func (s *LocalStore) Get(key string) (mdomain.Attribute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.data[key]
	return a, ok
}

// All returns every attribute currently held, sorted by key for
// deterministic iteration in tests and inquiry responses.
func (s *LocalStore) All() []mdomain.Attribute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]mdomain.Attribute, 0, len(s.data))
	for _, a := range s.data {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *LocalStore) notify(key string, val mdomain.Attribute, removed bool) {
	if s.onChange != nil {
		s.onChange(key, val, removed)
	}
}

// Satisfies reports whether this node's current attribute state
// satisfies query. A nil/absent attribute never satisfies a query on
// its key (spec.md §8 invariant 8 requires this to be decidable from
// either local state or an inquiry answer).
//
// Query syntax is intentionally small: "key" (existence), or
// "key=value" (exact match). Richer predicate languages are out of
// scope for this store; algorithm packages compose Satisfies calls for
// more elaborate find() queries.
func (s *LocalStore) Satisfies(query string) bool {
	key, want, hasValue := splitQuery(query)
	a, ok := s.Get(key)
	if !ok {
		return false
	}
	if !hasValue {
		return true
	}
	return a.Value == want
}

func splitQuery(query string) (key, value string, hasValue bool) {
	for i := 0; i < len(query); i++ {
		if query[i] == '=' {
			return query[:i], query[i+1:], true
		}
	}
	return query, "", false
}
