package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorStore_BindsToKey(t *testing.T) {
	var s CursorStore
	k1 := Key{Filter: Where("owner", "U1"), OrderBy: "date_created"}
	k2 := Key{Filter: All, OrderBy: "date_created"}

	_, ok, err := s.Get(k1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(NewCursor(k1, rec{ID: "3", T: 80})))
	c, ok, err := s.Get(k1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", c.ID())

	_, _, err = s.Get(k2)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, s.Set(NewCursor(k2, rec{ID: "9", T: 1})), ErrValidation)

	s.Clear()
	require.NoError(t, s.Set(NewCursor(k2, rec{ID: "9", T: 1})))
	c, ok, err = s.Get(k2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "9", c.ID())
}

func TestCursor_After(t *testing.T) {
	c := NewCursor(Key{}, rec{ID: "m", T: 50})

	assert.True(t, c.After(rec{ID: "a", T: 40}))
	assert.True(t, c.After(rec{ID: "z", T: 50}))
	assert.False(t, c.After(rec{ID: "m", T: 50}))
	assert.False(t, c.After(rec{ID: "a", T: 50}))
	assert.False(t, c.After(rec{ID: "a", T: 60}))
}

func TestFilter_Validate(t *testing.T) {
	assert.NoError(t, All.Validate())
	assert.NoError(t, Where("user_id", "U1").Validate())
	assert.ErrorIs(t, Filter{Value: "U1"}.Validate(), ErrValidation)
	assert.ErrorIs(t, Filter{Field: "user_id"}.Validate(), ErrValidation)
	assert.Equal(t, "all", All.String())
	assert.Equal(t, "user_id=U1", Where("user_id", "U1").String())
}
