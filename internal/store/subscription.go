package store

import (
	"context"
	"sync"
)

// Subscription delivers snapshots of one collection. The channel holds at
// most one pending snapshot: a slow reader only ever sees the latest state
// and never blocks writers. Snapshots are shared and must not be modified.
type Subscription[T any] struct {
	mu       sync.Mutex
	ch       chan T
	done     chan struct{}
	once     sync.Once
	onCancel func()
}

func newSubscription[T any](onCancel func()) *Subscription[T] {
	return &Subscription[T]{
		ch:       make(chan T, 1),
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
}

// Updates is closed after Cancel.
func (s *Subscription[T]) Updates() <-chan T { return s.ch }

// Done is closed once the subscription is cancelled.
func (s *Subscription[T]) Done() <-chan struct{} { return s.done }

// Cancel stops delivery. It is safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		close(s.ch)
		s.mu.Unlock()
		if s.onCancel != nil {
			s.onCancel()
		}
	})
}

func (s *Subscription[T]) publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	// drop the stale snapshot, if any
	select {
	case <-s.ch:
	default:
	}
	s.ch <- v
}

// watch cancels s when ctx ends.
func (s *Subscription[T]) watch(ctx context.Context) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-s.done:
		}
	}()
}

// topic fans one collection out to its subscribers.
type topic[T any] struct {
	mu   sync.Mutex
	subs map[*Subscription[T]]struct{}
}

// subscribe registers a subscriber and hands it the result of load as its
// first snapshot. load runs under the topic lock so no broadcast can slip
// between the read and the registration.
func (t *topic[T]) subscribe(ctx context.Context, load func() (T, error)) (*Subscription[T], error) {
	t.mu.Lock()
	v, err := load()
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	var sub *Subscription[T]
	sub = newSubscription[T](func() { t.remove(sub) })
	if t.subs == nil {
		t.subs = make(map[*Subscription[T]]struct{})
	}
	t.subs[sub] = struct{}{}
	sub.publish(v)
	t.mu.Unlock()

	sub.watch(ctx)
	return sub, nil
}

func (t *topic[T]) remove(sub *Subscription[T]) {
	t.mu.Lock()
	delete(t.subs, sub)
	t.mu.Unlock()
}

// refresh reloads and broadcasts, skipping the load when nobody listens.
func (t *topic[T]) refresh(load func() (T, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subs) == 0 {
		return nil
	}
	v, err := load()
	if err != nil {
		return err
	}
	for sub := range t.subs {
		sub.publish(v)
	}
	return nil
}

func (t *topic[T]) broadcast(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs {
		sub.publish(v)
	}
}

func (t *topic[T]) cancelAll() {
	t.mu.Lock()
	subs := make([]*Subscription[T], 0, len(t.subs))
	for sub := range t.subs {
		subs = append(subs, sub)
	}
	t.mu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}

func (t *topic[T]) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}
