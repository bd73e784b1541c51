// Package keylock provides mutual exclusion keyed by string identity.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Map serializes callers holding the same key while letting different keys
// proceed in parallel. Entries are dropped once no caller references them.
// The zero value is ready to use.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Lock blocks until key is free and returns the matching unlock func.
func (m *Map) Lock(key string) (unlock func()) {
	m.mu.Lock()
	if m.entries == nil {
		m.entries = make(map[string]*entry)
	}
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.entries, key)
			}
			m.mu.Unlock()
		})
	}
}

// Len reports how many keys are currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
