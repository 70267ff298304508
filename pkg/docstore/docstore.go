// Package docstore is the remote document and object client behind every
// live list in skatepedia.
//
// Documents are JSON objects addressed by a collection path and an id.
// Collection paths alternate collection and document segments, for example
// "posts" or "posts/3f2a.../comments". Two drivers are provided: an
// in-memory one for tests and single-node development, and a NATS JetStream
// one that keeps documents in a KeyValue bucket and videos in an ObjectStore.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

var (
	segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	fieldPattern   = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
)

// ErrExists is returned by Create when the document id is taken.
var ErrExists = errors.New("document already exists")

// Document is one stored JSON object.
type Document struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Query selects documents of one collection.
type Query struct {
	Collection string
	Filter     feed.Filter

	// OrderBy names a JSON field holding an RFC 3339 timestamp. Results are
	// ordered newest first, ties broken by id ascending.
	OrderBy string

	// Limit caps the result set to the first Limit documents. Zero means no cap.
	Limit int
}

// Position is the resume point of a paged query: results start strictly
// after the document with this order key and id.
type Position struct {
	ID    string
	Order time.Time
}

// SnapshotFunc receives the full current result set of a subscription, or
// the error that ended it.
type SnapshotFunc func(docs []Document, err error)

// Listener is an open subscription. Close stops delivery and waits for any
// in-flight callback to return, so it must not be called from the callback.
type Listener interface {
	Close() error
}

// Client is the document side of the store.
type Client interface {
	// Subscribe delivers the full result set of q once it is known and again
	// after every change to the collection.
	Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Listener, error)

	// Query returns up to limit documents after the position (from the start
	// when after is nil). q.Limit is ignored.
	Query(ctx context.Context, q Query, after *Position, limit int) ([]Document, error)

	// List returns every document matching q in order.
	List(ctx context.Context, q Query) ([]Document, error)

	// Count returns how many documents match q.
	Count(ctx context.Context, q Query) (int, error)

	Put(ctx context.Context, collection string, doc Document) error

	// Create stores doc only if no live document has its id, atomically with
	// respect to other writers. A taken id fails with ErrExists.
	Create(ctx context.Context, collection string, doc Document) error

	Get(ctx context.Context, collection, id string) (Document, error)

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Increment atomically adds delta to an integer field and returns the new value.
	Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error)
}

// ValidateID rejects ids that cannot be used as a path segment.
func ValidateID(id string) error {
	if !segmentPattern.MatchString(id) {
		return feed.ValidationError("id", "invalid document id %q", id)
	}
	return nil
}

// ValidateCollection rejects malformed collection paths.
func ValidateCollection(path string) error {
	parts := strings.Split(path, "/")
	if len(parts)%2 == 0 {
		return feed.ValidationError("collection", "path %q names a document, not a collection", path)
	}
	for _, p := range parts {
		if !segmentPattern.MatchString(p) {
			return feed.ValidationError("collection", "invalid path segment %q in %q", p, path)
		}
	}
	return nil
}

// Sub returns the path of a subcollection below a document.
func Sub(collection, id, name string) string {
	return collection + "/" + id + "/" + name
}

func (q Query) validate() error {
	if err := ValidateCollection(q.Collection); err != nil {
		return err
	}
	if err := q.Filter.Validate(); err != nil {
		return err
	}
	if !q.Filter.IsAll() && !fieldPattern.MatchString(q.Filter.Field) {
		return feed.ValidationError("query", "invalid filter field %q", q.Filter.Field)
	}
	if q.OrderBy != "" && !fieldPattern.MatchString(q.OrderBy) {
		return feed.ValidationError("query", "invalid order field %q", q.OrderBy)
	}
	if q.Limit < 0 {
		return feed.ValidationError("query", "negative limit %d", q.Limit)
	}
	return nil
}

func validateDoc(collection string, doc Document) error {
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	if err := ValidateID(doc.ID); err != nil {
		return err
	}
	if !json.Valid(doc.Data) || !strings.HasPrefix(strings.TrimSpace(string(doc.Data)), "{") {
		return feed.ValidationError("put", "document %s is not a JSON object", doc.ID)
	}
	return nil
}
