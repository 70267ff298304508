package docstore

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

// Source exposes one collection of a Client as a feed.Source of decoded T.
// Documents that fail to decode are logged and skipped.
type Source[T feed.Item] struct {
	client     Client
	collection string
	logger     *zap.Logger
}

// NewSource returns a Source reading collection from client.
func NewSource[T feed.Item](client Client, collection string, logger *zap.Logger) *Source[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source[T]{client: client, collection: collection, logger: logger}
}

func (s *Source[T]) query(q feed.Query) Query {
	return Query{
		Collection: s.collection,
		Filter:     q.Filter,
		OrderBy:    q.OrderBy,
		Limit:      q.Window,
	}
}

func (s *Source[T]) Subscribe(ctx context.Context, q feed.Query, push func(feed.Message[T])) (feed.Listener, error) {
	return s.client.Subscribe(ctx, s.query(q), func(docs []Document, err error) {
		if err != nil {
			push(feed.Failure[T]{Err: err})
			return
		}
		push(feed.FullSnapshot[T]{Items: s.decode(docs)})
	})
}

func (s *Source[T]) Fetch(ctx context.Context, q feed.Query, after *feed.Cursor, limit int) ([]T, error) {
	var pos *Position
	if after != nil {
		pos = &Position{ID: after.ID(), Order: after.OrderKey()}
	}
	docs, err := s.client.Query(ctx, s.query(q), pos, limit)
	if err != nil {
		return nil, err
	}
	return s.decode(docs), nil
}

func (s *Source[T]) decode(docs []Document) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d.Data, &v); err != nil {
			s.logger.Warn("skipping undecodable document",
				zap.String("collection", s.collection),
				zap.String("id", d.ID),
				zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out
}

// Decode unmarshals a document into v.
func Decode(doc Document, v any) error {
	if err := json.Unmarshal(doc.Data, v); err != nil {
		return feed.ValidationError("decode", "document %s: %v", doc.ID, err)
	}
	return nil
}

// Encode marshals v into a document with the given id.
func Encode(id string, v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Document{}, feed.ValidationError("encode", "document %s: %v", id, err)
	}
	return Document{ID: id, Data: data}, nil
}
