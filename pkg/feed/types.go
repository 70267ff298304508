package feed

import (
	"context"
	"fmt"
	"time"
)

// Item is a record shown in a live list: a post, a comment or a trick item.
type Item interface {
	// ItemID is the stable unique identifier used for deduplication.
	ItemID() string

	// OrderKey is the creation time used for ordering (newest first).
	OrderKey() time.Time
}

// Before reports whether a sorts before b: newer first, ties by id ascending.
func Before(a, b Item) bool {
	ak, bk := a.OrderKey(), b.OrderKey()
	if !ak.Equal(bk) {
		return ak.After(bk)
	}
	return a.ItemID() < b.ItemID()
}

// Filter narrows a collection to documents whose Field equals Value.
// The zero Filter matches every document.
type Filter struct {
	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`
}

// All matches every document in the collection.
var All = Filter{}

// Where returns an equality filter.
func Where(field, value string) Filter {
	return Filter{Field: field, Value: value}
}

// IsAll reports whether f matches every document.
func (f Filter) IsAll() bool {
	return f.Field == "" && f.Value == ""
}

func (f Filter) String() string {
	if f.IsAll() {
		return "all"
	}
	return f.Field + "=" + f.Value
}

// Validate rejects half-specified filters.
func (f Filter) Validate() error {
	if f.Field == "" && f.Value != "" {
		return ValidationError("filter", "value %q given without a field", f.Value)
	}
	if f.Field != "" && f.Value == "" {
		return ValidationError("filter", "field %q given without a value", f.Field)
	}
	return nil
}

// Key identifies one (filter, ordering) pair. Cursors are only meaningful
// under the Key that produced them.
type Key struct {
	Filter  Filter
	OrderBy string
}

func (k Key) String() string {
	return fmt.Sprintf("%s by %s desc", k.Filter, k.OrderBy)
}

// Cursor marks "resume after this item" under one Key.
type Cursor struct {
	key   Key
	id    string
	order time.Time
}

// NewCursor returns a cursor positioned on item under key.
func NewCursor(key Key, item Item) Cursor {
	return Cursor{key: key, id: item.ItemID(), order: item.OrderKey()}
}

// Key returns the key the cursor was produced under.
func (c Cursor) Key() Key { return c.key }

// ID returns the id of the item the cursor is bound to.
func (c Cursor) ID() string { return c.id }

// OrderKey returns the ordering key of the item the cursor is bound to.
func (c Cursor) OrderKey() time.Time { return c.order }

// After reports whether item lies strictly after the cursor position.
func (c Cursor) After(item Item) bool {
	k := item.OrderKey()
	if !k.Equal(c.order) {
		return k.Before(c.order)
	}
	return item.ItemID() > c.id
}

// Query is what a collection asks a Source for.
type Query struct {
	Filter  Filter
	OrderBy string

	// Window caps the live result set to the newest Window items.
	// Zero means the subscription delivers the full result set.
	Window int
}

// Key returns the (filter, ordering) pair of the query.
func (q Query) Key() Key {
	return Key{Filter: q.Filter, OrderBy: q.OrderBy}
}

// Listener is one open push subscription held by a Source.
type Listener interface {
	Close() error
}

// Source is the remote collection capability a Collection is built on.
//
// Subscribe must deliver a FullSnapshot for the initial result set and after
// every change. Pushes after Listener.Close are ignored by the collection,
// but sources should stop delivering promptly.
//
// Fetch returns up to limit items ordered after the cursor (from the start
// when after is nil). Failures should be *Error values; anything else is
// reported to callers as ErrConnection.
type Source[T Item] interface {
	Subscribe(ctx context.Context, q Query, push func(Message[T])) (Listener, error)
	Fetch(ctx context.Context, q Query, after *Cursor, limit int) ([]T, error)
}
