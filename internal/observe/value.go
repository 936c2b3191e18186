// Package observe provides independently observable values.
package observe

import "sync"

// Observable is a read-only view of a Value.
type Observable[T any] interface {
	Get() T
	Subscribe(fn func(T)) (cancel func())
}

// Value holds a single value and notifies subscribers when it changes.
// Subscribers run on the goroutine that called Set, after the value's lock
// has been released.
type Value[T any] struct {
	mu    sync.RWMutex
	v     T
	equal func(a, b T) bool
	subs  map[int]func(T)
	next  int
}

// NewValue creates a Value. equal decides whether a Set is a change; a nil
// equal treats every Set as a change.
func NewValue[T any](initial T, equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		v:     initial,
		equal: equal,
		subs:  make(map[int]func(T)),
	}
}

// NewComparable creates a Value for a comparable type using ==.
func NewComparable[T comparable](initial T) *Value[T] {
	return NewValue(initial, func(a, b T) bool { return a == b })
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.v
}

// Set stores x and notifies subscribers if it differs from the current value.
// It reports whether subscribers were notified.
func (v *Value[T]) Set(x T) bool {
	v.mu.Lock()
	if v.equal != nil && v.equal(v.v, x) {
		v.mu.Unlock()
		return false
	}
	v.v = x
	subs := make([]func(T), 0, len(v.subs))
	for _, fn := range v.subs {
		subs = append(subs, fn)
	}
	v.mu.Unlock()

	for _, fn := range subs {
		fn(x)
	}
	return true
}

// Subscribe registers fn for future changes. The returned cancel func
// removes the subscription and is safe to call more than once.
func (v *Value[T]) Subscribe(fn func(T)) (cancel func()) {
	v.mu.Lock()
	id := v.next
	v.next++
	v.subs[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
	}
}
