package cache

import "sync"

// AppendOnly maps keys to values that are written once and never replaced
// or evicted. The zero value is not usable; use NewAppendOnly.
type AppendOnly[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewAppendOnly[T any]() *AppendOnly[T] {
	return &AppendOnly[T]{items: make(map[string]T)}
}

func (a *AppendOnly[T]) Get(key string) (T, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.items[key]
	return v, ok
}

// Add stores v under key unless the key is already present. It reports
// whether v was stored.
func (a *AppendOnly[T]) Add(key string, v T) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.items[key]; ok {
		return false
	}
	a.items[key] = v
	return true
}

// Missing returns the keys, in input order and without duplicates, that
// are not stored yet.
func (a *AppendOnly[T]) Missing(keys []string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	seen := make(map[string]struct{}, len(keys))
	var out []string
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := a.items[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

func (a *AppendOnly[T]) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.items)
}
