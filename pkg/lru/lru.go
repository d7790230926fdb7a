// Package lru implements a bounded least-recently-used table for per-key
// state that must be swept by age.
//
// The table evicts the least recently touched key when full and reports
// every eviction through an optional callback. RemoveIf walks from the
// oldest entry so sweeps can stop early once they reach live state.
//
// Thread Safety: Table is NOT safe for concurrent use. Callers shard their
// state and guard each shard with their own mutex.
package lru

import "container/list"

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Table is a generic LRU table.
//
// Type Parameters:
//   - K: Key type (must be comparable)
//   - V: Value type (any)
type Table[K comparable, V any] struct {
	capacity int
	order    *list.List // front = most recently touched
	items    map[K]*list.Element
	onEvict  func(K, V)
}

// New creates a table holding at most capacity keys (1000 if <= 0).
// onEvict, when non-nil, is called for keys dropped to make room.
func New[K comparable, V any](capacity int, onEvict func(K, V)) *Table[K, V] {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Table[K, V]{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[K]*list.Element, capacity/4),
		onEvict:  onEvict,
	}
}

// Get returns the value for key and marks it most recently used.
func (t *Table[K, V]) Get(key K) (V, bool) {
	if elem, ok := t.items[key]; ok {
		t.order.MoveToFront(elem)
		return elem.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Peek returns the value for key without touching recency.
func (t *Table[K, V]) Peek(key K) (V, bool) {
	if elem, ok := t.items[key]; ok {
		return elem.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

func (t *Table[K, V]) Put(key K, value V) {
	if elem, ok := t.items[key]; ok {
		t.order.MoveToFront(elem)
		elem.Value.(*entry[K, V]).value = value
		return
	}
	t.items[key] = t.order.PushFront(&entry[K, V]{key: key, value: value})
	t.evictOverflow()
}

// GetOrCreate returns the value for key, building it with factory when
// the key is absent.
func (t *Table[K, V]) GetOrCreate(key K, factory func() V) V {
	if v, ok := t.Get(key); ok {
		return v
	}
	v := factory()
	t.items[key] = t.order.PushFront(&entry[K, V]{key: key, value: v})
	t.evictOverflow()
	return v
}

func (t *Table[K, V]) evictOverflow() {
	for t.order.Len() > t.capacity {
		oldest := t.order.Back()
		e := oldest.Value.(*entry[K, V])
		t.order.Remove(oldest)
		delete(t.items, e.key)
		if t.onEvict != nil {
			t.onEvict(e.key, e.value)
		}
	}
}

func (t *Table[K, V]) Remove(key K) bool {
	elem, ok := t.items[key]
	if !ok {
		return false
	}
	t.order.Remove(elem)
	delete(t.items, key)
	return true
}

// RemoveIf deletes every entry for which pred returns true, walking from
// the least recently used end. It stops at the first entry for which stop
// returns true, if stop is non-nil. It returns the number removed.
func (t *Table[K, V]) RemoveIf(pred func(K, V) bool, stop func(K, V) bool) int {
	removed := 0
	for elem := t.order.Back(); elem != nil; {
		prev := elem.Prev()
		e := elem.Value.(*entry[K, V])
		if stop != nil && stop(e.key, e.value) {
			break
		}
		if pred(e.key, e.value) {
			t.order.Remove(elem)
			delete(t.items, e.key)
			removed++
		}
		elem = prev
	}
	return removed
}

// Range calls fn for each entry from most to least recently used until fn
// returns false.
func (t *Table[K, V]) Range(fn func(K, V) bool) {
	for elem := t.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry[K, V])
		if !fn(e.key, e.value) {
			return
		}
	}
}

func (t *Table[K, V]) Len() int {
	return t.order.Len()
}

func (t *Table[K, V]) Capacity() int {
	return t.capacity
}

func (t *Table[K, V]) Clear() {
	t.order.Init()
	t.items = make(map[K]*list.Element, t.capacity/4)
}
