package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func seqOf(items ...rec) sequence[rec] {
	s := newSequence[rec]()
	s.replace(items)
	return s
}

func TestSequence_ReplaceSortsAndDedupes(t *testing.T) {
	s := seqOf(rec{ID: "a", T: 1, Owner: "old"}, rec{ID: "b", T: 3}, rec{ID: "a", T: 2, Owner: "new"})

	got := s.snapshot()
	assert.Equal(t, []string{"b", "a"}, ids(got))
	assert.Equal(t, "new", got[1].Owner)
}

func TestSequence_TiesBreakByID(t *testing.T) {
	s := seqOf(rec{ID: "z", T: 5}, rec{ID: "m", T: 5}, rec{ID: "a", T: 5})
	assert.Equal(t, []string{"a", "m", "z"}, ids(s.snapshot()))
}

func TestSequence_AppendTail(t *testing.T) {
	s := seqOf(rec{ID: "1", T: 100}, rec{ID: "2", T: 90})

	n := s.appendTail([]rec{{ID: "2", T: 90}, {ID: "0", T: 110}, {ID: "3", T: 80}, {ID: "4", T: 70}})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(s.snapshot()))
}

func TestSequence_ReplaceRetainingTail(t *testing.T) {
	tests := []struct {
		name   string
		window int
		batch  []rec
		want   []string
	}{
		{
			name:   "unbounded window drops everything else",
			window: 0,
			batch:  []rec{{ID: "1", T: 100}},
			want:   []string{"1"},
		},
		{
			name:   "partial window covers everything",
			window: 3,
			batch:  []rec{{ID: "1", T: 100}, {ID: "4", T: 95}},
			want:   []string{"1", "4"},
		},
		{
			name:   "full window keeps older items",
			window: 2,
			batch:  []rec{{ID: "1", T: 100}, {ID: "4", T: 95}},
			want:   []string{"1", "4", "2", "3"},
		},
		{
			name:   "older items behind a newer window survive",
			window: 2,
			batch:  []rec{{ID: "5", T: 200}, {ID: "6", T: 150}},
			want:   []string{"5", "6", "1", "2", "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seqOf(rec{ID: "1", T: 100}, rec{ID: "2", T: 90}, rec{ID: "3", T: 80})
			s.replaceRetainingTail(tt.batch, tt.window)
			assert.Equal(t, tt.want, ids(s.snapshot()))
		})
	}
}

func TestSequence_SnapshotIsACopy(t *testing.T) {
	s := seqOf(rec{ID: "1", T: 1})
	out := s.snapshot()
	out[0].ID = "mutated"
	assert.Equal(t, []string{"1"}, ids(s.snapshot()))
}
