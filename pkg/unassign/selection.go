package unassign

import "sync"

// Selection is the set of instances pending unassignment, kept in the
// order they were selected
type Selection struct {
	ids   []string
	index map[string]struct{}
	mutex sync.RWMutex
}

// NewSelection creates a selection holding ids
func NewSelection(ids ...string) *Selection {
	s := &Selection{index: make(map[string]struct{})}
	s.Add(ids...)
	return s
}

// Add selects instances; already selected IDs are ignored
func (s *Selection) Add(ids ...string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			continue
		}
		s.index[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
}

// Remove deselects instances
func (s *Selection) Remove(ids ...string) {
	if len(ids) == 0 {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, id := range ids {
		delete(s.index, id)
	}
	kept := s.ids[:0]
	for _, id := range s.ids {
		if _, ok := s.index[id]; ok {
			kept = append(kept, id)
		}
	}
	s.ids = kept
}

// Contains reports whether an instance is selected
func (s *Selection) Contains(id string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.index[id]
	return ok
}

// IDs returns the selected instance IDs
func (s *Selection) IDs() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]string(nil), s.ids...)
}

// Len returns the number of selected instances
func (s *Selection) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.ids)
}

// Clear deselects everything
func (s *Selection) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.ids = nil
	s.index = make(map[string]struct{})
}
