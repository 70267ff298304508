package screens

import (
	"context"
	"sync"
	"time"

	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

// Kind names what a screen lists.
type Kind string

const (
	KindPosts    Kind = "posts"
	KindComments Kind = "comments"
	KindTricks   Kind = "tricks"
)

// View is one rendering of a screen's list.
type View struct {
	ScreenID string      `json:"screen_id"`
	Kind     Kind        `json:"kind"`
	Filter   feed.Filter `json:"filter"`
	Version  uint64      `json:"version"`
	Items    any         `json:"items"`
	Error    string      `json:"error,omitempty"`
}

// list is a feed.Collection with its item type erased.
type list interface {
	open(ctx context.Context, filter feed.Filter) error
	loadMore(ctx context.Context, filter feed.Filter, count int) (any, int, error)
	current() View
	views() <-chan View
	close() error
}

type collectionList[T feed.Item] struct {
	c   *feed.Collection[T]
	out chan View
}

func newList[T feed.Item](src feed.Source[T], opts ...feed.Option) *collectionList[T] {
	l := &collectionList[T]{c: feed.New(src, opts...), out: make(chan View, 1)}
	go l.forward()
	return l
}

// forward converts typed views into the latest-wins output channel until
// the collection closes its Watch channel.
func (l *collectionList[T]) forward() {
	defer close(l.out)
	for v := range l.c.Watch() {
		out := erase(v)
		select {
		case <-l.out:
		default:
		}
		l.out <- out
	}
}

func erase[T feed.Item](v feed.View[T]) View {
	out := View{Filter: v.Filter, Version: v.Version, Items: v.Items}
	if v.Items == nil {
		out.Items = []T{}
	}
	if v.Err != nil {
		out.Error = v.Err.Error()
	}
	return out
}

func (l *collectionList[T]) open(ctx context.Context, filter feed.Filter) error {
	_, err := l.c.Open(ctx, filter)
	return err
}

func (l *collectionList[T]) loadMore(ctx context.Context, filter feed.Filter, count int) (any, int, error) {
	page, err := l.c.LoadMore(ctx, filter, count)
	return page, len(page), err
}

func (l *collectionList[T]) current() View {
	f, _ := l.c.Filter()
	v := View{Filter: f, Items: l.c.Items()}
	if err := l.c.Err(); err != nil {
		v.Error = err.Error()
	}
	return v
}

func (l *collectionList[T]) views() <-chan View { return l.out }

func (l *collectionList[T]) close() error { return l.c.Close() }

// Screen is one open list owned by a user.
type Screen struct {
	ID     string
	UserID string
	Kind   Kind

	list    list
	created time.Time

	mu       sync.Mutex
	lastSeen time.Time
	streams  int
}

// Views streams the screen's list after every change. Only the latest
// unread view is kept. The channel closes when the screen closes.
func (s *Screen) Views() <-chan View { return s.list.views() }

// Current returns the screen's list as it is now.
func (s *Screen) Current() View {
	v := s.list.current()
	v.ScreenID = s.ID
	v.Kind = s.Kind
	return v
}

// Stamp fills in the screen fields of a view taken from Views.
func (s *Screen) Stamp(v View) View {
	v.ScreenID = s.ID
	v.Kind = s.Kind
	return v
}

func (s *Screen) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// idleSince reports whether the screen has been unused since cutoff. Screens
// with an attached stream are never idle.
func (s *Screen) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams == 0 && s.lastSeen.Before(cutoff)
}

func (s *Screen) attach(now time.Time) {
	s.mu.Lock()
	s.streams++
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Screen) detach(now time.Time) {
	s.mu.Lock()
	s.streams--
	s.lastSeen = now
	s.mu.Unlock()
}
