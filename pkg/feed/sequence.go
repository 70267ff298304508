package feed

import "sort"

// sequence is the materialized list: unique ids, always sorted with Before.
type sequence[T Item] struct {
	items []T
	ids   map[string]struct{}
}

func newSequence[T Item]() sequence[T] {
	return sequence[T]{ids: make(map[string]struct{})}
}

func (s *sequence[T]) reset() {
	s.items = nil
	s.ids = make(map[string]struct{})
}

func (s *sequence[T]) contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *sequence[T]) tail() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

func (s *sequence[T]) snapshot() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// replace rebuilds the sequence from batch. When an id repeats inside the
// batch the later entry wins.
func (s *sequence[T]) replace(batch []T) {
	latest := make(map[string]T, len(batch))
	for _, it := range batch {
		latest[it.ItemID()] = it
	}
	s.rebuild(latest)
}

// replaceRetainingTail applies a snapshot but keeps previously paginated
// items older than the snapshot tail, provided the snapshot filled its
// window. An unfilled or unbounded window means the snapshot covers
// everything, so nothing is retained.
func (s *sequence[T]) replaceRetainingTail(batch []T, window int) {
	prev := s.items
	s.replace(batch)
	if window <= 0 || len(s.items) < window {
		return
	}
	edge, _ := s.tail()
	for _, it := range prev {
		if s.contains(it.ItemID()) || !Before(edge, it) {
			continue
		}
		s.push(it)
	}
}

// applyDelta removes and upserts, then re-sorts.
func (s *sequence[T]) applyDelta(upserts []T, removed []string) {
	current := make(map[string]T, len(s.items)+len(upserts))
	for _, it := range s.items {
		current[it.ItemID()] = it
	}
	for _, id := range removed {
		delete(current, id)
	}
	for _, it := range upserts {
		current[it.ItemID()] = it
	}
	s.rebuild(current)
}

// appendTail appends items that are new and strictly after the current tail.
// It returns how many were appended.
func (s *sequence[T]) appendTail(batch []T) int {
	appended := 0
	for _, it := range batch {
		if s.contains(it.ItemID()) {
			continue
		}
		if last, ok := s.tail(); ok && !Before(last, it) {
			continue
		}
		s.push(it)
		appended++
	}
	return appended
}

func (s *sequence[T]) push(it T) {
	s.items = append(s.items, it)
	s.ids[it.ItemID()] = struct{}{}
}

func (s *sequence[T]) rebuild(byID map[string]T) {
	items := make([]T, 0, len(byID))
	ids := make(map[string]struct{}, len(byID))
	for id, it := range byID {
		items = append(items, it)
		ids[id] = struct{}{}
	}
	sort.Slice(items, func(i, j int) bool { return Before(items[i], items[j]) })
	s.items = items
	s.ids = ids
}
