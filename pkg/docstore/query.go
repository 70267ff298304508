package docstore

import (
	"sort"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

type ranked struct {
	doc   Document
	order time.Time
}

// orderOf reads an RFC 3339 timestamp field. Missing or malformed values sort last.
func orderOf(doc Document, field string) time.Time {
	if field == "" {
		return time.Time{}
	}
	r := gjson.GetBytes(doc.Data, field)
	if r.Type != gjson.String {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, r.Str)
	if err != nil {
		return time.Time{}
	}
	return t
}

func matches(doc Document, f feed.Filter) bool {
	if f.IsAll() {
		return true
	}
	r := gjson.GetBytes(doc.Data, f.Field)
	return r.Exists() && r.String() == f.Value
}

// selectDocs filters and orders docs for q.
func selectDocs(docs []Document, q Query) []ranked {
	out := make([]ranked, 0, len(docs))
	for _, d := range docs {
		if matches(d, q.Filter) {
			out = append(out, ranked{doc: d, order: orderOf(d, q.OrderBy)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].order.Equal(out[j].order) {
			return out[i].order.After(out[j].order)
		}
		return out[i].doc.ID < out[j].doc.ID
	})
	return out
}

func firstN(rs []ranked, n int) []Document {
	if n > 0 && len(rs) > n {
		rs = rs[:n]
	}
	out := make([]Document, len(rs))
	for i, r := range rs {
		out[i] = r.doc
	}
	return out
}

// pageAfter skips everything up to and including the position.
func pageAfter(rs []ranked, after *Position, limit int) []Document {
	if after != nil {
		i := sort.Search(len(rs), func(i int) bool {
			r := rs[i]
			if !r.order.Equal(after.Order) {
				return r.order.Before(after.Order)
			}
			return r.doc.ID > after.ID
		})
		rs = rs[i:]
	}
	return firstN(rs, limit)
}

func increment(doc Document, field string, delta int64) (Document, int64, error) {
	n := gjson.GetBytes(doc.Data, field).Int() + delta
	data, err := sjson.SetBytes(doc.Data, field, n)
	if err != nil {
		return Document{}, 0, feed.ValidationError("increment", "set %s on %s: %v", field, doc.ID, err)
	}
	return Document{ID: doc.ID, Data: data}, n, nil
}
