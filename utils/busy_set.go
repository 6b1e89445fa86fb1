package utils

import "sync"

// BusySet tracks ids with an action in flight. It is owned by the
// component that issues the action; TryAdd is the only way in.
type BusySet[K comparable] struct {
	mu  sync.Mutex
	ids map[K]struct{}
}

func NewBusySet[K comparable]() *BusySet[K] {
	return &BusySet[K]{ids: make(map[K]struct{})}
}

// TryAdd marks id busy and reports whether it was idle before.
func (s *BusySet[K]) TryAdd(id K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *BusySet[K]) Remove(id K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

func (s *BusySet[K]) Contains(id K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *BusySet[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
