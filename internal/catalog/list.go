package catalog

import (
	"slices"
	"sync"
)

// ObjectList is a collection of named objects keyed by normalized full name.
// It is safe for concurrent use.
type ObjectList[T NamedObject] struct {
	mu    sync.RWMutex
	nc    NameCase
	items map[string]T
}

// NewObjectList creates an empty list using nc to normalize keys.
func NewObjectList[T NamedObject](nc NameCase) *ObjectList[T] {
	return &ObjectList[T]{nc: nc, items: make(map[string]T)}
}

func (l *ObjectList[T]) key(name string) string {
	return l.nc.Normalize(name)
}

// Add stores obj unless an object with the same name is already present.
// It reports whether obj was stored.
func (l *ObjectList[T]) Add(obj T) bool {
	k := l.key(obj.FullName())
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.items[k]; ok {
		return false
	}
	l.items[k] = obj
	return true
}

// Remove deletes obj and reports whether it was present.
func (l *ObjectList[T]) Remove(obj T) bool {
	k := l.key(obj.FullName())
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.items[k]; !ok {
		return false
	}
	delete(l.items, k)
	return true
}

// Lookup finds an object by full name.
func (l *ObjectList[T]) Lookup(fullName string) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	obj, ok := l.items[l.key(fullName)]
	return obj, ok
}

// Contains reports whether obj is in the list.
func (l *ObjectList[T]) Contains(obj T) bool {
	_, ok := l.Lookup(obj.FullName())
	return ok
}

// Values returns the objects sorted by normalized full name.
func (l *ObjectList[T]) Values() []T {
	l.mu.RLock()
	keys := make([]string, 0, len(l.items))
	for k := range l.items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]T, len(keys))
	for i, k := range keys {
		out[i] = l.items[k]
	}
	l.mu.RUnlock()
	return out
}

func (l *ObjectList[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}
