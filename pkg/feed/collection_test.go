package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var ownerU1 = Where("owner", "U1")

func openU1(t *testing.T, opts ...Option) (*Collection[rec], *fakeSource, *Subscription) {
	t.Helper()
	src := &fakeSource{}
	c := New[rec](src, opts...)
	t.Cleanup(func() { _ = c.Close() })

	sub, err := c.Open(context.Background(), ownerU1)
	require.NoError(t, err)
	return c, src, sub
}

func TestCollection_EndToEnd_ReplacePolicy(t *testing.T) {
	c, src, _ := openU1(t)
	ctx := context.Background()

	src.last().push(snapshot(rec{ID: "1", T: 100}, rec{ID: "2", T: 90}))
	assert.Equal(t, []string{"1", "2"}, ids(c.Items()))

	src.queue([]rec{{ID: "3", T: 80}})
	page, err := c.LoadMore(ctx, ownerU1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, ids(page))
	assert.Equal(t, []string{"1", "2", "3"}, ids(c.Items()))

	cur, ok := c.Cursor()
	require.True(t, ok)
	assert.Equal(t, "3", cur.ID())

	// The snapshot is authoritative: 2 and 3 are gone.
	src.last().push(snapshot(rec{ID: "1", T: 100}, rec{ID: "4", T: 95}))
	assert.Equal(t, []string{"1", "4"}, ids(c.Items()))

	_, ok = c.Cursor()
	assert.False(t, ok, "cursor on a dropped item is cleared")
}

func TestCollection_SnapshotDroppingCursorResumesFromTail(t *testing.T) {
	c, src, _ := openU1(t, WithWindow(2))
	ctx := context.Background()

	src.last().push(snapshot(rec{ID: "a", T: 100}, rec{ID: "b", T: 90}))
	src.queue([]rec{{ID: "c", T: 80}})
	_, err := c.LoadMore(ctx, ownerU1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(c.Items()))

	// A newer item pushes b out of the window and c out of the sequence.
	src.last().push(snapshot(rec{ID: "z", T: 110}, rec{ID: "a", T: 100}))
	assert.Equal(t, []string{"z", "a"}, ids(c.Items()))

	src.queue([]rec{{ID: "b", T: 90}})
	_, err = c.LoadMore(ctx, ownerU1, 1)
	require.NoError(t, err)

	after := src.lastAfter()
	require.NotNil(t, after)
	assert.Equal(t, "a", after.ID(), "fetch continues from the new tail")
	assert.Equal(t, []string{"z", "a", "b"}, ids(c.Items()))
}

func TestCollection_RetainedCursorSurvivesSnapshot(t *testing.T) {
	c, src, _ := openU1(t, WithWindow(2), WithMergePolicy(RetainTailPolicy))

	src.last().push(snapshot(rec{ID: "1", T: 100}, rec{ID: "2", T: 90}))
	src.queue([]rec{{ID: "3", T: 80}})
	_, err := c.LoadMore(context.Background(), ownerU1, 1)
	require.NoError(t, err)

	src.last().push(snapshot(rec{ID: "1", T: 100}, rec{ID: "4", T: 95}))
	cur, ok := c.Cursor()
	require.True(t, ok)
	assert.Equal(t, "3", cur.ID())
}

func TestCollection_EndToEnd_RetainTailPolicy(t *testing.T) {
	c, src, _ := openU1(t, WithWindow(2), WithMergePolicy(RetainTailPolicy))
	ctx := context.Background()

	assert.Equal(t, 2, src.last().q.Window)

	src.last().push(snapshot(rec{ID: "1", T: 100}, rec{ID: "2", T: 90}))
	src.queue([]rec{{ID: "3", T: 80}})
	_, err := c.LoadMore(ctx, ownerU1, 1)
	require.NoError(t, err)

	// The window is full, so items older than its tail survive.
	src.last().push(snapshot(rec{ID: "1", T: 100}, rec{ID: "4", T: 95}))
	assert.Equal(t, []string{"1", "4", "2", "3"}, ids(c.Items()))

	// A snapshot that does not fill the window covers everything.
	src.last().push(snapshot(rec{ID: "4", T: 95}))
	assert.Equal(t, []string{"4"}, ids(c.Items()))
}

func TestCollection_OnPushIsFullReplace(t *testing.T) {
	batch := []rec{{ID: "b", T: 50}, {ID: "a", T: 50}, {ID: "c", T: 70}, {ID: "a", T: 50}}
	want := []string{"c", "a", "b"}

	c, src, _ := openU1(t)
	src.queue([]rec{{ID: "x", T: 10}}, []rec{{ID: "y", T: 5}})

	for i := 0; i < 3; i++ {
		_, err := c.LoadMore(context.Background(), ownerU1, 5)
		require.NoError(t, err)

		c.OnPush(FullSnapshot[rec]{Items: batch})
		if diff := cmp.Diff(want, ids(c.Items())); diff != "" {
			t.Fatalf("push %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestCollection_LoadMoreNeverDuplicates(t *testing.T) {
	c, src, _ := openU1(t)

	src.last().push(snapshot(rec{ID: "1", T: 100}, rec{ID: "2", T: 90}))
	src.queue([]rec{{ID: "2", T: 90}, {ID: "3", T: 80}, {ID: "3", T: 80}})

	page, err := c.LoadMore(context.Background(), ownerU1, 10)
	require.NoError(t, err)
	assert.Len(t, page, 3)
	assert.Equal(t, []string{"1", "2", "3"}, ids(c.Items()))
}

func TestCollection_LoadMoreSkipsItemsAheadOfTail(t *testing.T) {
	c, src, _ := openU1(t)

	src.last().push(snapshot(rec{ID: "1", T: 100}, rec{ID: "2", T: 90}))
	src.queue([]rec{{ID: "9", T: 95}, {ID: "3", T: 80}})

	_, err := c.LoadMore(context.Background(), ownerU1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(c.Items()))
}

func TestCollection_EmptyPageKeepsCursor(t *testing.T) {
	c, src, _ := openU1(t)
	ctx := context.Background()

	src.queue([]rec{{ID: "3", T: 80}}, nil)

	_, err := c.LoadMore(ctx, ownerU1, 1)
	require.NoError(t, err)
	before, ok := c.Cursor()
	require.True(t, ok)

	page, err := c.LoadMore(ctx, ownerU1, 1)
	require.NoError(t, err)
	assert.NotNil(t, page)
	assert.Empty(t, page)

	after, ok := c.Cursor()
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, "3", src.lastAfter().ID())
}

func TestCollection_LoadMoreSeedsCursorFromTail(t *testing.T) {
	c, src, _ := openU1(t)

	_, err := c.LoadMore(context.Background(), ownerU1, 1)
	require.NoError(t, err)
	assert.Nil(t, src.lastAfter(), "empty sequence fetches from the start")

	src.last().push(snapshot(rec{ID: "1", T: 100}, rec{ID: "2", T: 90}))
	_, err = c.LoadMore(context.Background(), ownerU1, 1)
	require.NoError(t, err)

	after := src.lastAfter()
	require.NotNil(t, after)
	assert.Equal(t, "2", after.ID())
	assert.Equal(t, Key{Filter: ownerU1, OrderBy: "date_created"}, after.Key())
}

func TestCollection_LoadMoreRejectsStaleFilter(t *testing.T) {
	c, src, _ := openU1(t)
	ctx := context.Background()

	_, err := c.LoadMore(ctx, All, 1)
	assert.ErrorIs(t, err, ErrValidation)

	src.queue([]rec{{ID: "3", T: 80}})
	_, err = c.LoadMore(ctx, ownerU1, 1)
	require.NoError(t, err)

	// Switching filters resets cursor and sequence.
	_, err = c.Open(ctx, All)
	require.NoError(t, err)
	_, ok := c.Cursor()
	assert.False(t, ok)
	assert.Empty(t, c.Items())

	_, err = c.LoadMore(ctx, ownerU1, 1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCollection_LoadMoreValidatesCount(t *testing.T) {
	c, _, _ := openU1(t)
	_, err := c.LoadMore(context.Background(), ownerU1, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCollection_LoadMoreWithoutSubscription(t *testing.T) {
	c := New[rec](&fakeSource{})
	defer c.Close()

	_, err := c.LoadMore(context.Background(), All, 1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCollection_LateCompletionIsDiscarded(t *testing.T) {
	t.Run("subscription closed", func(t *testing.T) {
		c, src, sub := openU1(t)
		src.last().push(snapshot(rec{ID: "1", T: 100}))

		src.gate = make(chan struct{})
		src.started = make(chan struct{}, 1)
		src.queue([]rec{{ID: "2", T: 90}})

		errCh := make(chan error, 1)
		go func() {
			_, err := c.LoadMore(context.Background(), ownerU1, 1)
			errCh <- err
		}()

		<-src.started
		require.NoError(t, sub.Close())
		close(src.gate)

		assert.ErrorIs(t, <-errCh, ErrClosed)
		assert.Empty(t, c.Items())
		_, ok := c.Cursor()
		assert.False(t, ok)
	})

	t.Run("filter switched", func(t *testing.T) {
		c, src, _ := openU1(t)

		src.gate = make(chan struct{})
		src.started = make(chan struct{}, 1)
		src.queue([]rec{{ID: "stale", T: 90}})

		errCh := make(chan error, 1)
		go func() {
			_, err := c.LoadMore(context.Background(), ownerU1, 1)
			errCh <- err
		}()

		<-src.started
		_, err := c.Open(context.Background(), All)
		require.NoError(t, err)
		src.last().push(snapshot(rec{ID: "fresh", T: 120}))
		close(src.gate)

		assert.ErrorIs(t, <-errCh, ErrClosed)
		assert.Equal(t, []string{"fresh"}, ids(c.Items()))
	})
}

func TestCollection_PushToClosedSubscriptionIgnored(t *testing.T) {
	c, src, sub := openU1(t)
	old := src.last()

	require.NoError(t, sub.Close())
	old.push(snapshot(rec{ID: "1", T: 100}))
	assert.Empty(t, c.Items())

	_, err := c.Open(context.Background(), All)
	require.NoError(t, err)
	old.push(snapshot(rec{ID: "late", T: 100}))
	assert.Empty(t, c.Items())
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	c, src, sub := openU1(t)
	l := src.last()

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.True(t, sub.Closed())
	assert.Equal(t, int32(1), l.closes.Load())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, int32(1), l.closes.Load())
}

func TestCollection_OpenClosesPreviousSubscription(t *testing.T) {
	c, src, first := openU1(t)
	l := src.last()

	second, err := c.Open(context.Background(), All)
	require.NoError(t, err)
	assert.True(t, first.Closed())
	assert.False(t, second.Closed())
	assert.Equal(t, int32(1), l.closes.Load())

	f, ok := c.Filter()
	require.True(t, ok)
	assert.Equal(t, All, f)
}

func TestCollection_OpenErrors(t *testing.T) {
	t.Run("source failure is a connection error", func(t *testing.T) {
		src := &fakeSource{subscribeErr: errors.New("dial tcp: refused")}
		c := New[rec](src)
		defer c.Close()

		_, err := c.Open(context.Background(), All)
		assert.ErrorIs(t, err, ErrConnection)
		_, ok := c.Filter()
		assert.False(t, ok)
	})

	t.Run("half filter is invalid", func(t *testing.T) {
		c := New[rec](&fakeSource{})
		defer c.Close()

		_, err := c.Open(context.Background(), Filter{Field: "owner"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("closed collection", func(t *testing.T) {
		c := New[rec](&fakeSource{})
		require.NoError(t, c.Close())

		_, err := c.Open(context.Background(), All)
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestCollection_FetchErrors(t *testing.T) {
	t.Run("untyped errors become connection errors", func(t *testing.T) {
		c, src, _ := openU1(t)
		src.fetchErr = errors.New("timeout")

		_, err := c.LoadMore(context.Background(), ownerU1, 1)
		assert.ErrorIs(t, err, ErrConnection)
	})

	t.Run("typed errors pass through", func(t *testing.T) {
		c, src, _ := openU1(t)
		src.fetchErr = NotFoundError("fetch", errors.New("collection missing"))

		_, err := c.LoadMore(context.Background(), ownerU1, 1)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrConnection)
	})
}

func TestCollection_FailureIsSurfaced(t *testing.T) {
	c, src, _ := openU1(t)

	src.last().push(snapshot(rec{ID: "1", T: 100}))
	src.last().push(Failure[rec]{Err: errors.New("stream reset")})

	assert.ErrorIs(t, c.Err(), ErrConnection)
	assert.Equal(t, []string{"1"}, ids(c.Items()))

	view := <-c.Watch()
	assert.ErrorIs(t, view.Err, ErrConnection)

	src.last().push(snapshot(rec{ID: "2", T: 100}))
	assert.NoError(t, c.Err())
}

func TestCollection_DeltaIsApplied(t *testing.T) {
	c, src, _ := openU1(t)

	src.last().push(snapshot(rec{ID: "1", T: 100}, rec{ID: "2", T: 90}))
	src.last().push(Delta[rec]{
		Upserts: []rec{{ID: "3", T: 95}, {ID: "1", T: 80}},
		Removed: []string{"2"},
	})
	assert.Equal(t, []string{"3", "1"}, ids(c.Items()))
}

func TestCollection_WatchCarriesLatestView(t *testing.T) {
	c, src, _ := openU1(t)

	src.last().push(snapshot(rec{ID: "1", T: 100}))
	src.last().push(snapshot(rec{ID: "1", T: 100}, rec{ID: "2", T: 90}))

	select {
	case v := <-c.Watch():
		assert.Equal(t, []string{"1", "2"}, ids(v.Items))
		assert.Equal(t, ownerU1, v.Filter)
	case <-time.After(time.Second):
		t.Fatal("no view delivered")
	}

	require.NoError(t, c.Close())
	_, open := <-c.Watch()
	assert.False(t, open)
}

type countingObserver struct {
	pushes, pages, discarded int
}

func (o *countingObserver) Pushed(string, int) { o.pushes++ }
func (o *countingObserver) Paged(int, int)     { o.pages++ }
func (o *countingObserver) Discarded()         { o.discarded++ }

func TestCollection_Observer(t *testing.T) {
	obs := &countingObserver{}
	c, src, _ := openU1(t, WithObserver(obs))

	src.last().push(snapshot(rec{ID: "1", T: 100}))
	_, err := c.LoadMore(context.Background(), ownerU1, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, obs.pushes)
	assert.Equal(t, 1, obs.pages)
	assert.Equal(t, 0, obs.discarded)
}

func TestParseMergePolicy(t *testing.T) {
	p, err := ParseMergePolicy("retain_tail")
	require.NoError(t, err)
	assert.Equal(t, RetainTailPolicy, p)

	p, err = ParseMergePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ReplacePolicy, p)

	_, err = ParseMergePolicy("merge")
	assert.ErrorIs(t, err, ErrValidation)
}
