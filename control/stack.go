package control

import "sync"

// Stack is a LIFO shared by a fixed number of workers. Pop blocks while the
// stack is empty and other workers may still push; when the last worker
// finds it empty the stack is done and every waiter returns.
type Stack[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []T
	workers int
	idle    int
	done    bool
}

// NewStack returns an empty stack for workers poppers.
func NewStack[T any](workers int) *Stack[T] {
	s := &Stack[T]{workers: workers}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Push adds v and wakes one waiting popper.
func (s *Stack[T]) Push(v T) {
	s.mu.Lock()
	s.items = append(s.items, v)
	s.cond.Signal()
	s.mu.Unlock()
}

// Pop removes the newest item. ok is false once the stack is done.
func (s *Stack[T]) Pop() (v T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.items) == 0 {
		if s.done {
			return v, false
		}
		s.idle++
		if s.idle == s.workers {
			s.idle--
			s.done = true
			s.cond.Broadcast()
			return v, false
		}
		s.cond.Wait()
		s.idle--
	}
	n := len(s.items) - 1
	v = s.items[n]
	var zero T
	s.items[n] = zero
	s.items = s.items[:n]
	return v, true
}

// Close ends the stack early; pending and future Pops return false. Used
// when a worker fails and will never pop again.
func (s *Stack[T]) Close() {
	s.mu.Lock()
	s.done = true
	s.items = nil
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Reset empties the stack for a new phase.
func (s *Stack[T]) Reset(workers int) {
	s.mu.Lock()
	s.items, s.workers, s.idle, s.done = nil, workers, 0, false
	s.mu.Unlock()
}

// Len is the number of queued items.
func (s *Stack[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
