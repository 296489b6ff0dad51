// Package observe provides a small typed publish/subscribe primitive shared by
// the widget stores. A Subject keeps an ordered observer list and notifies it
// in registration order without holding any lock while a listener runs.
package observe

import "sync"

// Listener receives values published on a Subject.
type Listener[T any] func(T)

// ReplayPolicy decides whether a late subscriber receives the current value.
type ReplayPolicy[T any] func(T) bool

// Option configures a Subject.
type Option[T any] func(*Subject[T])

// WithReplay enables replay-on-subscribe. When policy is nil every held value
// is replayed; otherwise only values for which policy returns true are.
func WithReplay[T any](policy ReplayPolicy[T]) Option[T] {
	return func(s *Subject[T]) {
		s.replay = true
		s.policy = policy
	}
}

type delivery[T any] struct {
	value   T
	targets []Listener[T]
}

// Subject is an ordered observer list holding the last published value.
//
// Deliveries go through a FIFO queue drained by one goroutine at a time, so
// every listener observes publishes in the same order. A listener may publish
// or subscribe on the same Subject; those deliveries are queued and run after
// the current one finishes. When another goroutine is already draining,
// Publish and Subscribe return once the delivery is queued.
type Subject[T any] struct {
	mu sync.Mutex

	listeners []Listener[T]
	current   T
	set       bool
	replay    bool
	policy    ReplayPolicy[T]

	queue    []delivery[T]
	draining bool
}

// New constructs a Subject.
func New[T any](opts ...Option[T]) *Subject[T] {
	s := &Subject[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Subscribe registers listener. With replay enabled and a value already held,
// listener is invoked once with it, before Subscribe returns unless a
// delivery is already in progress. Nil listeners are ignored.
func (s *Subject[T]) Subscribe(listener Listener[T]) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	if s.set && s.replay && (s.policy == nil || s.policy(s.current)) {
		s.queue = append(s.queue, delivery[T]{value: s.current, targets: []Listener[T]{listener}})
	}
	s.mu.Unlock()
	s.Drain()
}

// Publish stores value and notifies every listener in registration order.
func (s *Subject[T]) Publish(value T) {
	s.Enqueue(value)
	s.Drain()
}

// Enqueue stores value and queues its delivery without running listeners.
// Callers holding their own locks enqueue under them and Drain after release.
func (s *Subject[T]) Enqueue(value T) {
	s.mu.Lock()
	s.current = value
	s.set = true
	if len(s.listeners) > 0 {
		targets := append([]Listener[T](nil), s.listeners...)
		s.queue = append(s.queue, delivery[T]{value: value, targets: targets})
	}
	s.mu.Unlock()
}

// Drain delivers queued values in order. It returns immediately when another
// call is already draining; that call picks up whatever was queued.
func (s *Subject[T]) Drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue[0] = delivery[T]{}
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.deliver(next)
		s.mu.Lock()
	}
	s.queue = nil
	s.draining = false
	s.mu.Unlock()
}

func (s *Subject[T]) deliver(d delivery[T]) {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.draining = false
			s.mu.Unlock()
			panic(r)
		}
	}()
	for _, listener := range d.targets {
		listener(d.value)
	}
}

// Reset drops the held value so later subscribers get no replay. Deliveries
// already queued still run.
func (s *Subject[T]) Reset() {
	var zero T
	s.mu.Lock()
	s.current = zero
	s.set = false
	s.mu.Unlock()
}

// Current returns the held value and whether one has been published.
func (s *Subject[T]) Current() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.set
}
