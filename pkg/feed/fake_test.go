package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type rec struct {
	ID    string
	T     int64
	Owner string
}

func (r rec) ItemID() string      { return r.ID }
func (r rec) OrderKey() time.Time { return time.Unix(r.T, 0) }

func ids(items []rec) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

type fakeListener struct {
	q      Query
	push   func(Message[rec])
	closes atomic.Int32
}

func (l *fakeListener) Close() error {
	l.closes.Add(1)
	return nil
}

// fakeSource scripts subscriptions and pages. When gate is set, Fetch signals
// started and then blocks until gate is closed.
type fakeSource struct {
	mu           sync.Mutex
	listeners    []*fakeListener
	subscribeErr error
	fetchErr     error
	pages        [][]rec
	afters       []*Cursor
	gate         chan struct{}
	started      chan struct{}
}

func (s *fakeSource) Subscribe(_ context.Context, q Query, push func(Message[rec])) (Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	l := &fakeListener{q: q, push: push}
	s.listeners = append(s.listeners, l)
	return l, nil
}

func (s *fakeSource) Fetch(ctx context.Context, _ Query, after *Cursor, limit int) ([]rec, error) {
	s.mu.Lock()
	s.afters = append(s.afters, after)
	var page []rec
	if len(s.pages) > 0 {
		page = s.pages[0]
		s.pages = s.pages[1:]
	}
	gate, started, fetchErr := s.gate, s.started, s.fetchErr
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(page) > limit {
		page = page[:limit]
	}
	return page, nil
}

func (s *fakeSource) last() *fakeListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) == 0 {
		return nil
	}
	return s.listeners[len(s.listeners)-1]
}

func (s *fakeSource) queue(pages ...[]rec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, pages...)
}

func (s *fakeSource) lastAfter() *Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.afters) == 0 {
		return nil
	}
	return s.afters[len(s.afters)-1]
}

func snapshot(items ...rec) Message[rec] {
	return FullSnapshot[rec]{Items: items}
}
