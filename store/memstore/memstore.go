// Package memstore implements the state store in process memory.
//
// It is the dev-mode and test substitute for the redis store. All
// operations are guarded by a single mutex; semantics mirror the redis
// commands the core relies on (LREM count handling included).
package memstore

import (
	"context"
	"sync"

	"github.com/dife-bioinformatics/mekewe/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu       sync.Mutex
	hashes   map[string]map[string]string
	lists    map[string][]string
	counters map[string]int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		hashes:   make(map[string]map[string]string),
		lists:    make(map[string][]string),
		counters: make(map[string]int64),
	}
}

// HashSet sets a hash field.
func (s *Store) HashSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
	return nil
}

// HashGet reads a hash field.
func (s *Store) HashGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.hashes[key][field]
	return val, ok, nil
}

// HashGetAll returns a copy of all fields of a hash.
func (s *Store) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

// HashDelete removes a hash field.
func (s *Store) HashDelete(_ context.Context, key, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes[key], field)
	return nil
}

// ListPushLeft prepends a value.
func (s *Store) ListPushLeft(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append([]string{value}, s.lists[key]...)
	return nil
}

// ListPushRight appends a value.
func (s *Store) ListPushRight(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append(s.lists[key], value)
	return nil
}

// ListPopRight pops from the right end.
func (s *Store) ListPopRight(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[key]
	if len(l) == 0 {
		return "", false, nil
	}
	val := l[len(l)-1]
	s.lists[key] = l[:len(l)-1]
	return val, true, nil
}

// ListPosition finds the first index of a value.
func (s *Store) ListPosition(_ context.Context, key, value string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.lists[key] {
		if v == value {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

// ListLength returns the list length.
func (s *Store) ListLength(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.lists[key])), nil
}

// ListRange returns elements start..stop inclusive; negative indexes
// count from the end as in LRANGE.
func (s *Store) ListRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[key]
	n := int64(len(l))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	return out, nil
}

// ListRemove removes occurrences of value per LREM semantics: count > 0
// removes from the head, count < 0 from the tail, count == 0 all.
// Returns the number of removed elements.
func (s *Store) ListRemove(_ context.Context, key string, count int64, value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[key]

	remaining := count
	if count < 0 {
		remaining = -count
	}
	all := count == 0

	var removed int64
	matches := func(v string) bool { return v == value }
	var out []string
	if count >= 0 {
		for _, v := range l {
			if matches(v) && (all || remaining > 0) {
				if !all {
					remaining--
				}
				removed++
				continue
			}
			out = append(out, v)
		}
	} else {
		for i := len(l) - 1; i >= 0; i-- {
			v := l[i]
			if matches(v) && remaining > 0 {
				remaining--
				removed++
				continue
			}
			out = append([]string{v}, out...)
		}
	}
	s.lists[key] = out
	return removed, nil
}

// CounterSet sets a counter.
func (s *Store) CounterSet(_ context.Context, key string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] = value
	return nil
}

// CounterGet reads a counter; unset counters read as zero.
func (s *Store) CounterGet(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

// CounterIncr increments a counter and returns the new value.
func (s *Store) CounterIncr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Verify Store implements the store interface.
var _ store.Store = (*Store)(nil)
