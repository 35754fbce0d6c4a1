package feed

import (
	"context"
	"sync"
)

// Hub fans values out to subscribers. Each subscriber has its own unbounded
// queue so Publish never blocks on a slow reader.
type Hub[T any] struct {
	mu   sync.Mutex
	subs map[int]*subscriber[T]
	next int
}

type subscriber[T any] struct {
	mu     sync.Mutex
	queue  []T
	signal chan struct{}
	out    chan T
}

// Subscribe returns a channel that first yields initial and then every
// published value. The channel is closed once ctx is done.
func (h *Hub[T]) Subscribe(ctx context.Context, initial ...T) <-chan T {
	s := &subscriber[T]{
		signal: make(chan struct{}, 1),
		out:    make(chan T),
		queue:  append([]T(nil), initial...),
	}
	if len(s.queue) > 0 {
		s.signal <- struct{}{}
	}

	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[int]*subscriber[T])
	}
	id := h.next
	h.next++
	h.subs[id] = s
	h.mu.Unlock()

	go func() {
		defer close(s.out)
		defer h.remove(id)
		for {
			item, ok := s.pop()
			if !ok {
				select {
				case <-s.signal:
					continue
				case <-ctx.Done():
					return
				}
			}
			select {
			case s.out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return s.out
}

func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		s.push(v)
	}
}

func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub[T]) remove(id int) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (s *subscriber[T]) push(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) pop() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if len(s.queue) == 0 {
		return zero, false
	}
	item := s.queue[0]
	s.queue[0] = zero
	s.queue = s.queue[1:]
	return item, true
}
