package feed

import "sync"

// CursorStore holds at most one cursor, bound to one Key.
//
// Once a cursor is set the store is bound to its key; reads and writes under
// any other key fail with ErrValidation until Clear is called. Clear must be
// called whenever the filter changes.
type CursorStore struct {
	mu     sync.Mutex
	bound  bool
	key    Key
	cursor Cursor
}

// Get returns the cursor for key. ok is false when no cursor is held.
func (s *CursorStore) Get(key Key) (c Cursor, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bound {
		return Cursor{}, false, nil
	}
	if s.key != key {
		return Cursor{}, false, ValidationError("cursor get",
			"cursor belongs to %s, not %s; clear the store before changing filters", s.key, key)
	}
	return s.cursor, true, nil
}

// Set stores c, binding the store to c's key if it is unbound.
func (s *CursorStore) Set(c Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bound && s.key != c.key {
		return ValidationError("cursor set",
			"store is bound to %s, cursor is for %s; clear the store before changing filters", s.key, c.key)
	}
	s.bound = true
	s.key = c.key
	s.cursor = c
	return nil
}

// Clear drops the cursor and unbinds the store.
func (s *CursorStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bound = false
	s.key = Key{}
	s.cursor = Cursor{}
}

// peek returns whatever cursor is held regardless of key.
func (s *CursorStore) peek() (Cursor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, s.bound
}
