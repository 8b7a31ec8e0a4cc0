// Package safe provides small concurrency-safe containers.
package safe

import (
	"sync"
)

// Map is a thread-safe map. It is safe for concurrent access by multiple
// goroutines.
type Map[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V)}
}

func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}
func (m *Map[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
}
func (m *Map[K, V]) Get(key K) (actual V, loaded bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	actual, loaded = m.m[key]
	return actual, loaded
}
func (m *Map[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
}

// GetOrSet returns the existing value for the key if present. Otherwise it
// stores and returns the given value. The loaded result is true if the value
// was present.
func (m *Map[K, V]) GetOrSet(key K, value V) (actual V, loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if actual, loaded = m.m[key]; loaded {
		return actual, true
	}
	m.m[key] = value
	return value, false
}

// Range calls f for each entry until f returns false. The map lock is held
// for the duration; f must not call back into the map.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.m {
		if !f(k, v) {
			return
		}
	}
}

// Values returns a snapshot of the current values.
func (m *Map[K, V]) Values() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := make([]V, 0, len(m.m))
	for _, v := range m.m {
		vs = append(vs, v)
	}
	return vs
}
