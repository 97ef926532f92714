// Package cache implements the keyed in-memory stores shared by the
// gateway event handlers and the REST layer. A store is typed by key and
// record, optionally size-bounded with ring replacement, and serializes
// every operation under one mutex.
package cache

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
)

var (
	// ErrDuplicateKey is returned by Put when the key is already present.
	ErrDuplicateKey = errors.New("cache: duplicate key")

	// ErrNotFound is returned by Update when the key is absent and
	// put-if-missing was not requested.
	ErrNotFound = errors.New("cache: not found")
)

// Store is a mutex-guarded keyed record store. keyOf projects a record's
// key; setKey stamps a key into a synthesized record for put-if-missing
// updates.
type Store[K comparable, V any] struct {
	mu     sync.Mutex
	keyOf  func(*V) K
	setKey func(*V, K)

	items map[K]*V

	// Bounded mode: ring of inserted keys. The write index only grows;
	// once it reaches the limit, slot idx%limit is overwritten, so the
	// oldest insertion is evicted first.
	limit    int
	ring     []K
	writeIdx uint64

	// Goroutine id of a running Update mutator. A mutator calling back
	// into the store would deadlock on mu; the guard panics instead.
	mutator atomic.Int64
}

// New returns an unbounded store.
func New[K comparable, V any](keyOf func(*V) K, setKey func(*V, K)) *Store[K, V] {
	return &Store[K, V]{
		keyOf:  keyOf,
		setKey: setKey,
		items:  make(map[K]*V),
	}
}

// NewBounded returns a store holding at most limit records.
func NewBounded[K comparable, V any](keyOf func(*V) K, setKey func(*V, K), limit int) *Store[K, V] {
	s := New(keyOf, setKey)
	s.limit = limit
	s.ring = make([]K, limit)
	return s
}

func (s *Store[K, V]) guard() {
	if g := s.mutator.Load(); g != 0 && g == goid() {
		panic("cache: store method called from inside an Update mutator")
	}
}

// Put stores a record, failing if its key is already present.
func (s *Store[K, V]) Put(v V) error {
	s.guard()
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.keyOf(&v)
	if _, ok := s.items[k]; ok {
		return ErrDuplicateKey
	}
	s.insert(k, &v)
	return nil
}

// insert adds a record, evicting the oldest insertion in bounded mode.
func (s *Store[K, V]) insert(k K, v *V) {
	if s.limit > 0 {
		slot := int(s.writeIdx % uint64(s.limit))
		if s.writeIdx >= uint64(s.limit) {
			delete(s.items, s.ring[slot])
		}
		s.ring[slot] = k
		s.writeIdx++
	}
	s.items[k] = v
}

// Get returns a copy of the record under k.
func (s *Store[K, V]) Get(k K) (V, bool) {
	s.guard()
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.items[k]; ok {
		return *v, true
	}
	var zero V
	return zero, false
}

// Has reports whether k is present.
func (s *Store[K, V]) Has(k K) bool {
	s.guard()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[k]
	return ok
}

// Remove deletes the record under k and reports whether it was present.
func (s *Store[K, V]) Remove(k K) bool {
	s.guard()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[k]; !ok {
		return false
	}
	delete(s.items, k)
	return true
}

// RemoveAll deletes every known key and returns the subset of keys that
// were not found.
func (s *Store[K, V]) RemoveAll(keys []K) []K {
	s.guard()
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []K
	for _, k := range keys {
		if _, ok := s.items[k]; ok {
			delete(s.items, k)
		} else {
			missing = append(missing, k)
		}
	}
	return missing
}

// Update applies fn to the record under k while holding the store lock.
// When the key is absent: with putIfMissing a zero record is synthesized
// with the key stamped, mutated and stored; otherwise ErrNotFound. fn must
// not call back into this store.
func (s *Store[K, V]) Update(k K, fn func(*V), putIfMissing bool) error {
	s.guard()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[k]
	if !ok {
		if !putIfMissing {
			return ErrNotFound
		}
		v = new(V)
		s.setKey(v, k)
		s.mutate(v, fn)
		s.insert(k, v)
		return nil
	}
	s.mutate(v, fn)
	return nil
}

func (s *Store[K, V]) mutate(v *V, fn func(*V)) {
	s.mutator.Store(goid())
	defer s.mutator.Store(0)
	fn(v)
}

// Patch copies every set field of v into the stored record: pointers only
// when non-nil, slices and maps only when non-empty, scalars only when
// non-zero. A patch therefore never clears a field.
func (s *Store[K, V]) Patch(v V, putIfMissing bool) error {
	return s.Update(s.keyOf(&v), func(dst *V) {
		patchInto(dst, &v)
	}, putIfMissing)
}

func patchInto[V any](dst, src *V) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src).Elem()
	for i := 0; i < sv.NumField(); i++ {
		f := sv.Field(i)
		if !dv.Field(i).CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.Ptr, reflect.Interface:
			if f.IsNil() {
				continue
			}
		case reflect.Slice, reflect.Map:
			if f.Len() == 0 {
				continue
			}
		default:
			if f.IsZero() {
				continue
			}
		}
		dv.Field(i).Set(f)
	}
}

// Len returns the number of stored records.
func (s *Store[K, V]) Len() int {
	s.guard()
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// ForEach calls fn with a copy of every record. fn must not call back
// into this store.
func (s *Store[K, V]) ForEach(fn func(V)) {
	s.guard()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutator.Store(goid())
	defer s.mutator.Store(0)
	for _, v := range s.items {
		fn(*v)
	}
}
