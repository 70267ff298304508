// Package screens keeps the server side state of client screens. Each
// screen owns one live collection (a post feed, a comment thread or a trick
// log) for as long as the client uses it, and is closed after a period of
// inactivity.
package screens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/internal/models"
	"github.com/fyrsmithlabs/skatepedia/internal/posts"
	"github.com/fyrsmithlabs/skatepedia/internal/tricks"
	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

var (
	// ErrTooManyScreens is returned when a user hits the open screen cap.
	ErrTooManyScreens = errors.New("too many open screens")

	// ErrWrongKind is returned when an operation does not apply to the screen.
	ErrWrongKind = errors.New("operation not supported by this screen")
)

// PostFeeds provides the post and comment sources.
type PostFeeds interface {
	Feed() feed.Source[models.Post]
	Comments(postID string) (feed.Source[models.Comment], error)
}

// TrickLogs provides per-user trick item sources.
type TrickLogs interface {
	Log(userID string) (feed.Source[models.TrickItem], error)
}

// Config tunes the registry.
type Config struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	MaxPerUser    int
	PageSize      int
	Window        int
	Policy        feed.MergePolicy
}

// Registry tracks open screens.
type Registry struct {
	cfg     Config
	posts   PostFeeds
	tricks  TrickLogs
	metrics *Metrics
	logger  *zap.Logger

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	screens map[string]*Screen
	byUser  map[string]int
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, postFeeds PostFeeds, trickLogs TrickLogs, metrics *Metrics, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	return &Registry{
		cfg:     cfg,
		posts:   postFeeds,
		tricks:  trickLogs,
		metrics: metrics,
		logger:  logger.Named("screens"),
		now:     time.Now,
		newID:   uuid.NewString,
		screens: make(map[string]*Screen),
		byUser:  make(map[string]int),
	}
}

func (r *Registry) options(kind Kind) []feed.Option {
	opts := []feed.Option{
		feed.WithOrderBy(models.OrderByDateCreated),
		feed.WithWindow(r.cfg.Window),
		feed.WithMergePolicy(r.cfg.Policy),
		feed.WithLogger(r.logger.With(zap.String("kind", string(kind)))),
	}
	if r.metrics != nil {
		opts = append(opts, feed.WithObserver(observer{m: r.metrics, kind: kind}))
	}
	return opts
}

// OpenPosts opens a post feed screen showing every post, or only the user's
// own when mine is set.
func (r *Registry) OpenPosts(ctx context.Context, userID string, mine bool) (*Screen, error) {
	l := newList(r.posts.Feed(), r.options(KindPosts)...)
	return r.open(ctx, userID, KindPosts, l, posts.FeedFilter(userID, mine))
}

// OpenComments opens the comment thread of a post.
func (r *Registry) OpenComments(ctx context.Context, userID, postID string) (*Screen, error) {
	src, err := r.posts.Comments(postID)
	if err != nil {
		return nil, err
	}
	return r.open(ctx, userID, KindComments, newList(src, r.options(KindComments)...), feed.All)
}

// OpenTricks opens the user's log for one trick.
func (r *Registry) OpenTricks(ctx context.Context, userID, trickID string) (*Screen, error) {
	src, err := r.tricks.Log(userID)
	if err != nil {
		return nil, err
	}
	return r.open(ctx, userID, KindTricks, newList(src, r.options(KindTricks)...), tricks.TrickFilter(trickID))
}

func (r *Registry) open(ctx context.Context, userID string, kind Kind, l list, filter feed.Filter) (*Screen, error) {
	now := r.now()
	s := &Screen{ID: r.newID(), UserID: userID, Kind: kind, list: l, created: now, lastSeen: now}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = l.close()
		return nil, feed.ErrClosed
	}
	if r.cfg.MaxPerUser > 0 && r.byUser[userID] >= r.cfg.MaxPerUser {
		r.mu.Unlock()
		_ = l.close()
		return nil, ErrTooManyScreens
	}
	r.screens[s.ID] = s
	r.byUser[userID]++
	r.mu.Unlock()

	if err := l.open(ctx, filter); err != nil {
		r.remove(s)
		_ = l.close()
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.Opened.WithLabelValues(string(kind)).Inc()
		r.metrics.Open.WithLabelValues(string(kind)).Inc()
	}
	r.logger.Debug("screen opened",
		zap.String("screen_id", s.ID),
		zap.String("user_id", userID),
		zap.String("kind", string(kind)),
		zap.Stringer("filter", filter))
	return s, nil
}

// Get returns userID's screen. Screens of other users are reported as not
// found.
func (r *Registry) Get(userID, screenID string) (*Screen, error) {
	r.mu.Lock()
	s, ok := r.screens[screenID]
	r.mu.Unlock()
	if !ok || s.UserID != userID {
		return nil, feed.NotFoundError("screen "+screenID, nil)
	}
	s.touch(r.now())
	return s, nil
}

// SwitchPosts changes a post feed screen between all posts and the user's
// own. The list starts over from empty.
func (r *Registry) SwitchPosts(ctx context.Context, userID, screenID string, mine bool) error {
	s, err := r.Get(userID, screenID)
	if err != nil {
		return err
	}
	if s.Kind != KindPosts {
		return fmt.Errorf("%w: %s screen has a fixed filter", ErrWrongKind, s.Kind)
	}
	return s.list.open(ctx, posts.FeedFilter(userID, mine))
}

// LoadMore appends the next page to a screen. filter must be the screen's
// active filter; count defaults to the configured page size.
func (r *Registry) LoadMore(ctx context.Context, userID, screenID string, filter feed.Filter, count int) (any, int, error) {
	s, err := r.Get(userID, screenID)
	if err != nil {
		return nil, 0, err
	}
	if count == 0 {
		count = r.cfg.PageSize
	}
	return s.list.loadMore(ctx, filter, count)
}

// Attach marks a screen as streamed so it does not expire. The returned
// function detaches it.
func (r *Registry) Attach(s *Screen) (detach func()) {
	s.attach(r.now())
	var once sync.Once
	return func() { once.Do(func() { s.detach(r.now()) }) }
}

// Close closes userID's screen.
func (r *Registry) Close(userID, screenID string) error {
	s, err := r.Get(userID, screenID)
	if err != nil {
		return err
	}
	if !r.remove(s) {
		return nil
	}
	return r.release(s)
}

// Len reports the number of open screens.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.screens)
}

// remove unregisters s and reports whether it was registered.
func (r *Registry) remove(s *Screen) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.screens[s.ID]; !ok {
		return false
	}
	delete(r.screens, s.ID)
	if r.byUser[s.UserID]--; r.byUser[s.UserID] <= 0 {
		delete(r.byUser, s.UserID)
	}
	return true
}

func (r *Registry) release(s *Screen) error {
	if r.metrics != nil {
		r.metrics.Open.WithLabelValues(string(s.Kind)).Dec()
	}
	r.logger.Debug("screen closed", zap.String("screen_id", s.ID), zap.String("kind", string(s.Kind)))
	return s.list.close()
}

// Sweep closes screens idle for longer than the idle timeout and returns
// how many were closed.
func (r *Registry) Sweep() int {
	if r.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var idle []*Screen
	for _, s := range r.screens {
		if s.idleSince(cutoff) {
			idle = append(idle, s)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, s := range idle {
		if !r.remove(s) {
			continue
		}
		if err := r.release(s); err != nil {
			r.logger.Warn("closing idle screen", zap.String("screen_id", s.ID), zap.Error(err))
		}
		if r.metrics != nil {
			r.metrics.Expired.WithLabelValues(string(s.Kind)).Inc()
		}
		n++
	}
	if n > 0 {
		r.logger.Info("idle screens closed", zap.Int("count", n))
	}
	return n
}

// Run sweeps idle screens until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Shutdown closes every screen and rejects new ones.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	r.closed = true
	all := make([]*Screen, 0, len(r.screens))
	for _, s := range r.screens {
		all = append(all, s)
	}
	r.screens = make(map[string]*Screen)
	r.byUser = make(map[string]int)
	r.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := r.release(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
