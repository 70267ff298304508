package docstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

const testBase = "http://localhost:8080/media"

var objectDrivers = map[string]func(t *testing.T) Objects{
	"memory": func(t *testing.T) Objects { return NewMemoryObjects(testBase) },
	"nats": func(t *testing.T) Objects {
		o, err := NewNATSObjects(testJetStream(t), "", testBase, nil)
		require.NoError(t, err)
		return o
	},
}

func TestObjects_RoundTrip(t *testing.T) {
	for name, newObjects := range objectDrivers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			o := newObjects(t)

			url, err := o.Upload(ctx, "community_posts/p1", strings.NewReader("clip"), "video/quicktime")
			require.NoError(t, err)
			assert.Equal(t, testBase+"/community_posts/p1", url)

			r, info, err := o.Open(ctx, "community_posts/p1")
			require.NoError(t, err)
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, "clip", string(data))
			assert.Equal(t, "video/quicktime", info.ContentType)
			assert.Equal(t, int64(4), info.Size)

			require.NoError(t, o.Delete(ctx, "community_posts/p1"))
			require.NoError(t, o.Delete(ctx, "community_posts/p1"))

			_, _, err = o.Open(ctx, "community_posts/p1")
			assert.ErrorIs(t, err, feed.ErrNotFound)
		})
	}
}

func TestValidateObjectPath(t *testing.T) {
	assert.NoError(t, ValidateObjectPath("pro_videos/pro1/trick2.mp4"))
	assert.NoError(t, ValidateObjectPath("user_videos/abc-123"))
	assert.ErrorIs(t, ValidateObjectPath(""), feed.ErrValidation)
	assert.ErrorIs(t, ValidateObjectPath("../etc/passwd"), feed.ErrValidation)
	assert.ErrorIs(t, ValidateObjectPath("a//b"), feed.ErrValidation)
}
