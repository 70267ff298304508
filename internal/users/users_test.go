package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/skatepedia/internal/catalog"
	"github.com/fyrsmithlabs/skatepedia/internal/media"
	"github.com/fyrsmithlabs/skatepedia/internal/posts"
	"github.com/fyrsmithlabs/skatepedia/internal/tricks"
	"github.com/fyrsmithlabs/skatepedia/pkg/docstore"
	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

type fixture struct {
	users  *Service
	posts  *posts.Service
	tricks *tricks.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	docs := docstore.NewMemoryClient(nil)
	store := media.NewStore(docstore.NewMemoryObjects("http://media.test"), media.Config{}, nil)
	cat, err := catalog.Default()
	require.NoError(t, err)

	ps, err := posts.NewService(docs, store, posts.Config{}, nil, nil)
	require.NoError(t, err)
	ts := tricks.NewService(docs, store, cat, nil, nil)
	return &fixture{users: NewService(docs, ps, ts, nil, nil), posts: ps, tricks: ts}
}

func TestCreateAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.users.Create(ctx, "u1", NewUser{Username: "shane_o", Email: "shane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)
	assert.False(t, u.DateCreated.IsZero())

	name, err := f.users.Username(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "shane_o", name)

	_, err = f.users.Create(ctx, "u1", NewUser{Username: "other", Email: "o@example.com"})
	assert.ErrorIs(t, err, ErrExists)

	_, err = f.users.Get(ctx, "u2")
	assert.ErrorIs(t, err, feed.ErrNotFound)
}

func TestCreateConcurrentSignupsKeepFirstProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wins atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := f.users.Create(ctx, "u1", NewUser{
				Username: fmt.Sprintf("rider_%d", i),
				Email:    fmt.Sprintf("rider%d@example.com", i),
			})
			switch {
			case err == nil:
				wins.Add(1)
				return nil
			case errors.Is(err, ErrExists):
				return nil
			default:
				return err
			}
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), wins.Load())

	u, err := f.users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.Username, "rider_"))
	assert.Equal(t, strings.TrimPrefix(u.Username, "rider_"), strings.TrimSuffix(strings.TrimPrefix(u.Email, "rider"), "@example.com"))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		id   string
		in   NewUser
	}{
		{"short username", "u1", NewUser{Username: "ab", Email: "a@example.com"}},
		{"bad username", "u1", NewUser{Username: "a b c", Email: "a@example.com"}},
		{"bad email", "u1", NewUser{Username: "skater", Email: "nope"}},
		{"bad id", "u/1", NewUser{Username: "skater", Email: "a@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.users.Create(ctx, tt.id, tt.in)
			assert.ErrorIs(t, err, feed.ErrValidation)
		})
	}
}

func TestDeleteData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.Create(ctx, "u1", NewUser{Username: "skater", Email: "s@example.com"})
	require.NoError(t, err)
	for _, trick := range []string{"ollie", "kickflip"} {
		_, err := f.tricks.Add(ctx, "u1", tricks.NewItem{TrickID: trick}, strings.NewReader("clip"), "")
		require.NoError(t, err)
	}
	_, err = f.posts.Create(ctx, "u1", posts.NewPost{TrickName: "Ollie"}, strings.NewReader("clip"), "")
	require.NoError(t, err)
	keep, err := f.posts.Create(ctx, "u2", posts.NewPost{TrickName: "Ollie"}, strings.NewReader("clip"), "")
	require.NoError(t, err)

	report, err := f.users.DeleteData(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, DeletionReport{TrickItems: 2, Posts: 1}, report)

	_, err = f.users.Get(ctx, "u1")
	assert.ErrorIs(t, err, feed.ErrNotFound)
	items, err := f.tricks.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)
	_, err = f.posts.Get(ctx, keep.PostID)
	assert.NoError(t, err)
}

type failingTricks struct{}

func (failingTricks) DeleteAll(context.Context, string) (int, error) {
	return 0, errors.New("storage down")
}

func TestDeleteDataKeepsProfileOnFailure(t *testing.T) {
	docs := docstore.NewMemoryClient(nil)
	store := media.NewStore(docstore.NewMemoryObjects("http://media.test"), media.Config{}, nil)
	ps, err := posts.NewService(docs, store, posts.Config{}, nil, nil)
	require.NoError(t, err)
	svc := NewService(docs, ps, failingTricks{}, nil, nil)
	ctx := context.Background()

	_, err = svc.Create(ctx, "u1", NewUser{Username: "skater", Email: "s@example.com"})
	require.NoError(t, err)

	_, err = svc.DeleteData(ctx, "u1")
	assert.ErrorContains(t, err, "storage down")

	_, err = svc.Get(ctx, "u1")
	assert.NoError(t, err)
}
