package posts

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/skatepedia/internal/media"
	"github.com/fyrsmithlabs/skatepedia/internal/models"
	"github.com/fyrsmithlabs/skatepedia/internal/telemetry"
	"github.com/fyrsmithlabs/skatepedia/pkg/docstore"
	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

type fixture struct {
	svc     *Service
	docs    *docstore.MemoryClient
	objects *docstore.MemoryObjects
	tel     *telemetry.TestTelemetry
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	docs := docstore.NewMemoryClient(nil)
	objects := docstore.NewMemoryObjects("http://media.test")
	tel := telemetry.NewTestTelemetry()

	svc, err := NewService(docs, media.NewStore(objects, media.Config{MaxBytes: 1024}, nil), cfg, tel.Telemetry, nil)
	require.NoError(t, err)

	base := time.Date(2024, 11, 4, 12, 0, 0, 0, time.UTC)
	var tick, ids atomic.Int64
	svc.now = func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Minute) }
	svc.newID = func() string { return fmt.Sprintf("id-%02d", ids.Add(1)) }

	return &fixture{svc: svc, docs: docs, objects: objects, tel: tel}
}

func (f *fixture) create(t *testing.T, userID, trick string) models.Post {
	t.Helper()
	p, err := f.svc.Create(context.Background(), userID, NewPost{TrickName: trick}, strings.NewReader("video"), "")
	require.NoError(t, err)
	return p
}

func TestCreate(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	p, err := f.svc.Create(ctx, "u1", NewPost{TrickName: " Kickflip ", Notes: "first try"}, strings.NewReader("video"), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "id-01", p.PostID)
	assert.Equal(t, "Kickflip", p.TrickName)
	assert.Equal(t, "http://media.test/community_posts/id-01", p.VideoURL)

	got, err := f.svc.Get(ctx, p.PostID)
	require.NoError(t, err)
	assert.Equal(t, p.PostID, got.PostID)
	assert.True(t, p.DateCreated.Equal(got.DateCreated))

	_, info, err := f.objects.Open(ctx, media.PostVideoPath(p.PostID))
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", info.ContentType)

	f.tel.AssertSpanExists(t, "posts.Create")
	f.tel.AssertSpanAttribute(t, "posts.Create", "post.id", "id-01")
	assert.Equal(t, int64(1), f.tel.Sum(t, "posts.created.total"))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name  string
		user  string
		in    NewPost
		video string
	}{
		{"blank trick", "u1", NewPost{TrickName: "  "}, "v"},
		{"long trick", "u1", NewPost{TrickName: strings.Repeat("x", maxTrickName+1)}, "v"},
		{"long notes", "u1", NewPost{TrickName: "Ollie", Notes: strings.Repeat("x", maxNotes+1)}, "v"},
		{"bad user", "u/1", NewPost{TrickName: "Ollie"}, "v"},
		{"empty video", "u1", NewPost{TrickName: "Ollie"}, ""},
		{"video too large", "u1", NewPost{TrickName: "Ollie"}, strings.Repeat("v", 1025)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.user, tt.in, strings.NewReader(tt.video), "")
			assert.ErrorIs(t, err, feed.ErrValidation)
		})
	}

	n, err := f.docs.Count(ctx, docstore.Query{Collection: models.PostsCollection})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetMissing(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, feed.ErrNotFound)
}

func TestLike(t *testing.T) {
	f := newFixture(t, Config{LikesPerMinute: 60, LikeBurst: 2})
	ctx := context.Background()
	p := f.create(t, "u1", "Ollie")

	n, err := f.svc.Like(ctx, "u2", p.PostID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = f.svc.Like(ctx, "u2", p.PostID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = f.svc.Like(ctx, "u2", p.PostID)
	assert.ErrorIs(t, err, ErrRateLimited)

	// Another user has their own bucket.
	n, err = f.svc.Like(ctx, "u3", p.PostID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	count, err := f.svc.LikeCount(ctx, p.PostID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	assert.Equal(t, int64(3), f.tel.Sum(t, "posts.likes.total"))
	assert.Equal(t, int64(1), f.tel.Sum(t, "posts.likes.throttled.total"))

	_, err = f.svc.Like(ctx, "u3", "missing")
	assert.ErrorIs(t, err, feed.ErrNotFound)
}

func TestLikeUnlimited(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	p := f.create(t, "u1", "Ollie")

	for i := 0; i < 50; i++ {
		_, err := f.svc.Like(ctx, "u2", p.PostID)
		require.NoError(t, err)
	}
	n, err := f.svc.LikeCount(ctx, p.PostID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
}

func TestComments(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	p := f.create(t, "u1", "Ollie")

	c, err := f.svc.AddComment(ctx, "u2", p.PostID, "  sick  ")
	require.NoError(t, err)
	assert.Equal(t, "sick", c.Content)
	assert.Equal(t, p.PostID, c.PostID)
	_, err = f.svc.AddComment(ctx, "u3", p.PostID, "clean")
	require.NoError(t, err)

	n, err := f.svc.CommentCount(ctx, p.PostID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.svc.AddComment(ctx, "u2", p.PostID, "   ")
	assert.ErrorIs(t, err, feed.ErrValidation)
	_, err = f.svc.AddComment(ctx, "u2", p.PostID, strings.Repeat("x", maxComment+1))
	assert.ErrorIs(t, err, feed.ErrValidation)
	_, err = f.svc.AddComment(ctx, "u2", "missing", "hello")
	assert.ErrorIs(t, err, feed.ErrNotFound)

	_, err = f.svc.Comments("bad/id")
	assert.ErrorIs(t, err, feed.ErrValidation)
}

func TestListByUser(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	a := f.create(t, "u1", "Ollie")
	f.create(t, "u2", "Kickflip")
	b := f.create(t, "u1", "Heelflip")

	posts, err := f.svc.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, b.PostID, posts[0].PostID)
	assert.Equal(t, a.PostID, posts[1].PostID)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	p := f.create(t, "u1", "Ollie")
	for i := 0; i < 3; i++ {
		_, err := f.svc.AddComment(ctx, "u2", p.PostID, "nice")
		require.NoError(t, err)
	}

	assert.ErrorIs(t, f.svc.Delete(ctx, "u2", p.PostID), ErrForbidden)

	require.NoError(t, f.svc.Delete(ctx, "u1", p.PostID))

	_, err := f.svc.Get(ctx, p.PostID)
	assert.ErrorIs(t, err, feed.ErrNotFound)
	n, err := f.svc.CommentCount(ctx, p.PostID)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, _, err = f.objects.Open(ctx, media.PostVideoPath(p.PostID))
	assert.ErrorIs(t, err, feed.ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, "u1", p.PostID), feed.ErrNotFound)
}

func TestDeleteAllByUser(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.create(t, "u1", "Ollie")
	f.create(t, "u1", "Kickflip")
	keep := f.create(t, "u2", "Heelflip")

	n, err := f.svc.DeleteAllByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := f.docs.List(ctx, docstore.Query{Collection: models.PostsCollection})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, keep.PostID, left[0].ID)
}

func TestLiveFeed(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	mine := feed.New(f.svc.Feed())
	defer mine.Close()
	_, err := mine.Open(ctx, FeedFilter("u1", true))
	require.NoError(t, err)

	all := feed.New(f.svc.Feed())
	defer all.Close()
	_, err = all.Open(ctx, FeedFilter("u1", false))
	require.NoError(t, err)

	a := f.create(t, "u1", "Ollie")
	b := f.create(t, "u2", "Kickflip")

	require.Eventually(t, func() bool { return len(all.Items()) == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(mine.Items()) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{b.PostID, a.PostID}, ids(all.Items()))
	assert.Equal(t, []string{a.PostID}, ids(mine.Items()))

	_, err = f.svc.Like(ctx, "u2", a.PostID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		items := mine.Items()
		return len(items) == 1 && items[0].Likes == 1
	}, time.Second, 5*time.Millisecond)
}

func TestLiveComments(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	p := f.create(t, "u1", "Ollie")

	src, err := f.svc.Comments(p.PostID)
	require.NoError(t, err)
	thread := feed.New(src, feed.WithWindow(2))
	defer thread.Close()
	_, err = thread.Open(ctx, feed.All)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := f.svc.AddComment(ctx, "u2", p.PostID, fmt.Sprintf("comment %d", i))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		items := thread.Items()
		return len(items) == 2 && items[0].Content == "comment 3"
	}, time.Second, 5*time.Millisecond)

	page, err := thread.LoadMore(ctx, feed.All, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "comment 1", page[0].Content)
	assert.Equal(t, "comment 0", page[1].Content)
	assert.Len(t, thread.Items(), 4)
}

func ids(posts []models.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.PostID
	}
	return out
}
