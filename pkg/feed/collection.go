package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MergePolicy decides how a FullSnapshot interacts with paginated items.
type MergePolicy int

const (
	// ReplacePolicy makes every snapshot authoritative: the sequence becomes
	// exactly the snapshot and paginated items missing from it are dropped.
	// This matches snapshot-listener semantics and is the default.
	ReplacePolicy MergePolicy = iota

	// RetainTailPolicy keeps paginated items older than the snapshot tail
	// when the subscription is windowed and the snapshot fills the window.
	RetainTailPolicy
)

func (p MergePolicy) String() string {
	switch p {
	case RetainTailPolicy:
		return "retain_tail"
	default:
		return "replace"
	}
}

// ParseMergePolicy maps a config value onto a MergePolicy.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch s {
	case "", "replace":
		return ReplacePolicy, nil
	case "retain_tail":
		return RetainTailPolicy, nil
	default:
		return ReplacePolicy, ValidationError("merge policy", "unknown policy %q", s)
	}
}

// Observer receives collection events, typically to feed metrics.
type Observer interface {
	Pushed(kind string, items int)
	Paged(fetched, appended int)
	Discarded()
}

type noopObserver struct{}

func (noopObserver) Pushed(string, int) {}
func (noopObserver) Paged(int, int)     {}
func (noopObserver) Discarded()         {}

type options struct {
	orderBy  string
	window   int
	policy   MergePolicy
	observer Observer
	logger   *zap.Logger
}

// Option configures a Collection.
type Option func(*options)

// WithOrderBy sets the ordering field passed to the source (default "date_created").
func WithOrderBy(field string) Option {
	return func(o *options) { o.orderBy = field }
}

// WithWindow caps the live subscription to the newest n items.
func WithWindow(n int) Option {
	return func(o *options) { o.window = n }
}

// WithMergePolicy selects how snapshots treat paginated items.
func WithMergePolicy(p MergePolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithObserver installs an event observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// View is one observation of the materialized sequence.
type View[T Item] struct {
	Filter  Filter
	Items   []T
	Version uint64
	Err     error
}

// Collection is a live paginated list owned by a single screen.
//
// OnPush and the apply step of LoadMore are serialized by one mutex; network
// calls happen outside it.
type Collection[T Item] struct {
	src     Source[T]
	opts    options
	cursors CursorStore

	mu      sync.Mutex
	seq     sequence[T]
	active  *Subscription
	gen     uint64
	version uint64
	lastErr error
	closed  bool
	views   chan View[T]
}

// New creates a collection over src.
func New[T Item](src Source[T], opts ...Option) *Collection[T] {
	o := options{
		orderBy:  "date_created",
		observer: noopObserver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Collection[T]{
		src:   src,
		opts:  o,
		seq:   newSequence[T](),
		views: make(chan View[T], 1),
	}
}

// Open starts a live subscription scoped to filter. Any active subscription
// is closed first and the sequence and cursor start over from empty.
func (c *Collection[T]) Open(ctx context.Context, filter Filter) (*Subscription, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	prev := c.active
	c.gen++
	sub := &Subscription{
		key:     Key{Filter: filter, OrderBy: c.opts.orderBy},
		gen:     c.gen,
		release: c.release,
	}
	c.active = sub
	c.seq.reset()
	c.cursors.Clear()
	c.lastErr = nil
	c.publishLocked()
	c.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			c.opts.logger.Warn("closing previous subscription", zap.Error(err))
		}
	}

	q := c.query(filter)
	gen := sub.gen
	l, err := c.src.Subscribe(ctx, q, func(m Message[T]) { c.deliver(gen, m) })
	if err != nil {
		c.release(gen)
		return nil, classify("open", err)
	}
	sub.attach(l)

	c.opts.logger.Debug("subscription opened",
		zap.Stringer("key", sub.key),
		zap.Int("window", c.opts.window),
		zap.Stringer("policy", c.opts.policy))
	return sub, nil
}

// OnPush applies msg to the active subscription. It is a no-op when nothing
// is open.
func (c *Collection[T]) OnPush(msg Message[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.active == nil {
		return
	}
	c.applyLocked(msg)
}

// deliver is the push callback bound to one subscription generation.
func (c *Collection[T]) deliver(gen uint64, msg Message[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.active == nil || c.active.gen != gen {
		return
	}
	c.applyLocked(msg)
}

func (c *Collection[T]) applyLocked(msg Message[T]) {
	switch m := msg.(type) {
	case FullSnapshot[T]:
		if c.opts.policy == RetainTailPolicy {
			c.seq.replaceRetainingTail(m.Items, c.opts.window)
		} else {
			c.seq.replace(m.Items)
		}
		c.lastErr = nil
		c.opts.observer.Pushed("snapshot", len(m.Items))
	case Delta[T]:
		c.seq.applyDelta(m.Upserts, m.Removed)
		c.opts.observer.Pushed("delta", len(m.Upserts)+len(m.Removed))
	case Failure[T]:
		c.lastErr = classify("subscription", m.Err)
		c.opts.observer.Pushed("failure", 0)
		c.opts.logger.Warn("subscription failure", zap.Error(m.Err))
	default:
		return
	}
	c.reconcileCursorLocked()
	c.publishLocked()
}

// reconcileCursorLocked drops the cursor when a push removed its item, so
// the next LoadMore continues from the new tail instead of skipping the
// items between the tail and the stale cursor.
func (c *Collection[T]) reconcileCursorLocked() {
	cur, ok := c.cursors.peek()
	if !ok || c.seq.contains(cur.ID()) {
		return
	}
	c.cursors.Clear()
	c.opts.logger.Debug("cursor item left the sequence, resuming from tail", zap.String("cursor", cur.ID()))
}

// LoadMore fetches up to count items after the cursor and appends the new
// ones to the tail. filter must be the active filter.
//
// An empty page returns an empty slice and leaves the cursor untouched; it
// means there is no more data. A page that completes after its subscription
// was closed or replaced is discarded and ErrClosed is returned.
func (c *Collection[T]) LoadMore(ctx context.Context, filter Filter, count int) ([]T, error) {
	if count <= 0 {
		return nil, ValidationError("load more", "count must be positive, got %d", count)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	sub := c.active
	if sub == nil {
		c.mu.Unlock()
		return nil, ValidationError("load more", "no active subscription")
	}
	if sub.key.Filter != filter {
		c.mu.Unlock()
		return nil, ValidationError("load more", "filter %s does not match active filter %s", filter, sub.key.Filter)
	}
	cur, ok, err := c.cursors.Get(sub.key)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	var after *Cursor
	if ok {
		after = &cur
	} else if last, has := c.seq.tail(); has {
		seeded := NewCursor(sub.key, last)
		after = &seeded
	}
	gen := sub.gen
	c.mu.Unlock()

	page, err := c.src.Fetch(ctx, c.query(filter), after, count)
	if err != nil {
		return nil, classify("load more", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.active == nil || c.active.gen != gen {
		c.opts.observer.Discarded()
		c.opts.logger.Debug("discarding page for closed subscription",
			zap.Stringer("key", sub.key),
			zap.Int("fetched", len(page)))
		return nil, ErrClosed
	}
	if len(page) == 0 {
		c.opts.observer.Paged(0, 0)
		return []T{}, nil
	}

	appended := c.seq.appendTail(page)
	if err := c.cursors.Set(NewCursor(sub.key, page[len(page)-1])); err != nil {
		return nil, err
	}
	c.opts.observer.Paged(len(page), appended)
	if appended > 0 {
		c.publishLocked()
	}
	return page, nil
}

// Items returns a copy of the materialized sequence.
func (c *Collection[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.snapshot()
}

// Err returns the last subscription failure, cleared by the next snapshot.
func (c *Collection[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Filter returns the active filter, if a subscription is open.
func (c *Collection[T]) Filter() (Filter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Filter{}, false
	}
	return c.active.key.Filter, true
}

// Cursor returns the stored pagination cursor, if any.
func (c *Collection[T]) Cursor() (Cursor, bool) {
	return c.cursors.peek()
}

// Watch returns a channel carrying the latest view after every change.
// Slow readers only see the most recent view. The channel is closed by Close.
func (c *Collection[T]) Watch() <-chan View[T] {
	return c.views
}

// Close releases the active subscription and closes the Watch channel.
// It is idempotent.
func (c *Collection[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sub := c.active
	c.active = nil
	c.seq.reset()
	c.cursors.Clear()
	close(c.views)
	c.mu.Unlock()

	if sub != nil {
		return sub.Close()
	}
	return nil
}

// release drops state owned by subscription gen if it is still active.
func (c *Collection[T]) release(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.active == nil || c.active.gen != gen {
		return
	}
	c.active = nil
	c.seq.reset()
	c.cursors.Clear()
	c.lastErr = nil
	c.publishLocked()
}

func (c *Collection[T]) query(filter Filter) Query {
	return Query{Filter: filter, OrderBy: c.opts.orderBy, Window: c.opts.window}
}

// publishLocked replaces any unread view with the current one.
func (c *Collection[T]) publishLocked() {
	c.version++
	v := View[T]{
		Items:   c.seq.snapshot(),
		Version: c.version,
		Err:     c.lastErr,
	}
	if c.active != nil {
		v.Filter = c.active.key.Filter
	}
	select {
	case <-c.views:
	default:
	}
	select {
	case c.views <- v:
	default:
	}
}

// Subscription is the handle for one open live feed.
type Subscription struct {
	key     Key
	gen     uint64
	release func(gen uint64)

	mu       sync.Mutex
	listener Listener
	closed   bool
}

// Filter returns the filter the subscription was opened with.
func (s *Subscription) Filter() Filter { return s.key.Filter }

// Key returns the (filter, ordering) pair of the subscription.
func (s *Subscription) Key() Key { return s.key }

// Closed reports whether Close has been called.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the source listener and drops the collection state tied to
// this subscription. Only the first call has an effect.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	l := s.listener
	s.listener = nil
	s.mu.Unlock()

	s.release(s.gen)
	if l != nil {
		return l.Close()
	}
	return nil
}

func (s *Subscription) attach(l Listener) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = l.Close()
		return
	}
	s.listener = l
	s.mu.Unlock()
}
