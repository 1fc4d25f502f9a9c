// Package observe provides small publish-on-change primitives used to expose
// per-vessel state to any number of subscribers.
package observe

import (
	"sync"

	"github.com/google/uuid"
)

// Observable is the read side of a Value.
type Observable[T any] interface {
	// Get returns the current value and whether one has been set.
	Get() (T, bool)
	// Subscribe registers fn to be called with every new value. If a value is
	// already present fn is called once with it before Subscribe returns.
	// The returned func removes the subscription.
	Subscribe(fn func(T)) (cancel func())
}

// Value holds a current value and notifies subscribers when it changes.
// Setting a value equal to the current one is a no-op.
type Value[T any] struct {
	mu     sync.Mutex
	val    T
	set    bool
	closed bool
	equal  func(a, b T) bool
	subs   map[string]func(T)
	order  []string
}

// NewValue returns an empty Value for a comparable type.
func NewValue[T comparable]() *Value[T] {
	return NewValueFunc(func(a, b T) bool { return a == b })
}

// NewValueFunc returns an empty Value that uses equal to detect changes.
// A nil equal publishes every Set.
func NewValueFunc[T any](equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		equal: equal,
		subs:  make(map[string]func(T)),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val, v.set
}

// Set stores val and publishes it if it differs from the current value.
// It reports whether subscribers were notified. Set on a closed Value does
// nothing.
func (v *Value[T]) Set(val T) bool {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return false
	}
	if v.set && v.equal != nil && v.equal(v.val, val) {
		v.mu.Unlock()
		return false
	}
	v.val = val
	v.set = true
	subs := v.snapshotLocked()
	v.mu.Unlock()

	for _, fn := range subs {
		fn(val)
	}
	return true
}

// Subscribe implements Observable.
func (v *Value[T]) Subscribe(fn func(T)) func() {
	id := uuid.NewString()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return func() {}
	}
	v.subs[id] = fn
	v.order = append(v.order, id)
	cur, ok := v.val, v.set
	v.mu.Unlock()

	if ok {
		fn(cur)
	}
	return func() { v.unsubscribe(id) }
}

// Close drops all subscribers. Later Set calls are ignored and the last
// value remains readable through Get.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.subs = make(map[string]func(T))
	v.order = nil
}

// Subscribers returns the number of active subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

func (v *Value[T]) unsubscribe(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.subs[id]; !ok {
		return
	}
	delete(v.subs, id)
	for i, o := range v.order {
		if o == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
}

func (v *Value[T]) snapshotLocked() []func(T) {
	subs := make([]func(T), 0, len(v.order))
	for _, id := range v.order {
		subs = append(subs, v.subs[id])
	}
	return subs
}

// Feed fans events out to subscribers. Unlike Value it has no current state.
type Feed[T any] struct {
	mu    sync.Mutex
	subs  map[string]func(T)
	order []string
}

// NewFeed returns an empty Feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[string]func(T))}
}

// Subscribe registers fn for every subsequent Publish.
func (f *Feed[T]) Subscribe(fn func(T)) (cancel func()) {
	id := uuid.NewString()
	f.mu.Lock()
	f.subs[id] = fn
	f.order = append(f.order, id)
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[id]; !ok {
			return
		}
		delete(f.subs, id)
		for i, o := range f.order {
			if o == id {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers ev to every subscriber in subscription order. Callbacks
// run on the caller's goroutine without the feed lock held.
func (f *Feed[T]) Publish(ev T) {
	f.mu.Lock()
	subs := make([]func(T), 0, len(f.order))
	for _, id := range f.order {
		subs = append(subs, f.subs[id])
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// Len returns the number of subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
