package memory

import "sync"

// ShortTerm is a bounded ring of recent notes for a single agent. Oldest
// entries fall off when capacity is exceeded.
type ShortTerm struct {
	mu       sync.Mutex
	capacity int
	notes    []string
}

// NewShortTerm creates a buffer holding at most capacity notes.
func NewShortTerm(capacity int) *ShortTerm {
	if capacity <= 0 {
		capacity = 10
	}
	return &ShortTerm{capacity: capacity}
}

// Add appends a note, evicting the oldest when full.
func (s *ShortTerm) Add(note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, note)
	if len(s.notes) > s.capacity {
		s.notes = s.notes[len(s.notes)-s.capacity:]
	}
}

// Notes returns a copy of the buffered notes, oldest first.
func (s *ShortTerm) Notes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.notes))
	copy(out, s.notes)
	return out
}
