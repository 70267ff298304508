package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

// DefaultBucket is the KeyValue bucket holding all documents.
const DefaultBucket = "skatepedia"

// maxCASAttempts bounds the compare-and-swap loop of Increment.
const maxCASAttempts = 16

var errWatcherClosed = errors.New("watcher closed")

// NATSClient stores documents in a JetStream KeyValue bucket. A document
// lives under the key "<collection with / replaced by .>.<id>", so a watch on
// "<collection>.*" sees exactly the documents of one collection.
type NATSClient struct {
	kv     nats.KeyValue
	logger *zap.Logger
}

// NewNATSClient opens bucket, creating it when it does not exist yet.
func NewNATSClient(js nats.JetStreamContext, bucket string, logger *zap.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "skatepedia documents",
			History:     1,
		})
	}
	if err != nil {
		return nil, feed.ConnectionError("open bucket "+bucket, err)
	}
	return &NATSClient{kv: kv, logger: logger}, nil
}

func subjectPrefix(collection string) string {
	return strings.ReplaceAll(collection, "/", ".")
}

func docKey(collection, id string) string {
	return subjectPrefix(collection) + "." + id
}

func idFromKey(key string) string {
	return key[strings.LastIndexByte(key, '.')+1:]
}

func (c *NATSClient) Subscribe(_ context.Context, q Query, fn SnapshotFunc) (Listener, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	w, err := c.kv.Watch(subjectPrefix(q.Collection) + ".*")
	if err != nil {
		return nil, feed.ConnectionError("subscribe "+q.Collection, err)
	}
	l := &natsListener{w: w, done: make(chan struct{})}
	go l.run(q, fn, c.logger)
	return l, nil
}

func (c *NATSClient) Query(ctx context.Context, q Query, after *Position, limit int) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, feed.ValidationError("query", "negative limit %d", limit)
	}
	docs, err := c.load(ctx, q.Collection)
	if err != nil {
		return nil, err
	}
	return pageAfter(selectDocs(docs, q), after, limit), nil
}

func (c *NATSClient) List(ctx context.Context, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	docs, err := c.load(ctx, q.Collection)
	if err != nil {
		return nil, err
	}
	return firstN(selectDocs(docs, q), q.Limit), nil
}

func (c *NATSClient) Count(ctx context.Context, q Query) (int, error) {
	if err := q.validate(); err != nil {
		return 0, err
	}
	docs, err := c.load(ctx, q.Collection)
	if err != nil {
		return 0, err
	}
	return len(selectDocs(docs, q)), nil
}

func (c *NATSClient) Put(_ context.Context, collection string, doc Document) error {
	if err := validateDoc(collection, doc); err != nil {
		return err
	}
	if _, err := c.kv.Put(docKey(collection, doc.ID), doc.Data); err != nil {
		return feed.ConnectionError("put "+collection+"/"+doc.ID, err)
	}
	return nil
}

// Create relies on the KeyValue create semantics: the write is rejected
// unless the key is absent or deleted.
func (c *NATSClient) Create(_ context.Context, collection string, doc Document) error {
	if err := validateDoc(collection, doc); err != nil {
		return err
	}
	op := "create " + collection + "/" + doc.ID
	if _, err := c.kv.Create(docKey(collection, doc.ID), doc.Data); err != nil {
		if isRevisionConflict(err) {
			return fmt.Errorf("%s: %w", op, ErrExists)
		}
		return feed.ConnectionError(op, err)
	}
	return nil
}

func (c *NATSClient) Get(_ context.Context, collection, id string) (Document, error) {
	if err := ValidateCollection(collection); err != nil {
		return Document{}, err
	}
	if err := ValidateID(id); err != nil {
		return Document{}, err
	}
	e, err := c.kv.Get(docKey(collection, id))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return Document{}, feed.NotFoundError("get "+collection+"/"+id, err)
	}
	if err != nil {
		return Document{}, feed.ConnectionError("get "+collection+"/"+id, err)
	}
	return Document{ID: id, Data: e.Value()}, nil
}

func (c *NATSClient) Delete(_ context.Context, collection, id string) error {
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := c.kv.Delete(docKey(collection, id)); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return feed.ConnectionError("delete "+collection+"/"+id, err)
	}
	return nil
}

// Increment reads the document, rewrites the field and stores it back only if
// the revision is unchanged, retrying when another writer got there first.
func (c *NATSClient) Increment(_ context.Context, collection, id, field string, delta int64) (int64, error) {
	if err := ValidateCollection(collection); err != nil {
		return 0, err
	}
	if !fieldPattern.MatchString(field) {
		return 0, feed.ValidationError("increment", "invalid field %q", field)
	}
	key := docKey(collection, id)
	op := "increment " + collection + "/" + id

	for attempt := 1; ; attempt++ {
		e, err := c.kv.Get(key)
		if errors.Is(err, nats.ErrKeyNotFound) {
			return 0, feed.NotFoundError(op, err)
		}
		if err != nil {
			return 0, feed.ConnectionError(op, err)
		}
		updated, n, err := increment(Document{ID: id, Data: e.Value()}, field, delta)
		if err != nil {
			return 0, err
		}
		_, err = c.kv.Update(key, updated.Data, e.Revision())
		if err == nil {
			return n, nil
		}
		if !isRevisionConflict(err) || attempt == maxCASAttempts {
			return 0, feed.ConnectionError(op, err)
		}
		c.logger.Debug("increment conflict, retrying",
			zap.String("key", key),
			zap.Int("attempt", attempt))
	}
}

func isRevisionConflict(err error) bool {
	if errors.Is(err, nats.ErrKeyExists) {
		return true
	}
	var apiErr *nats.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence
}

// load reads every live document of a collection.
func (c *NATSClient) load(ctx context.Context, collection string) ([]Document, error) {
	w, err := c.kv.Watch(subjectPrefix(collection)+".*", nats.IgnoreDeletes())
	if err != nil {
		return nil, feed.ConnectionError("load "+collection, err)
	}
	defer func() { _ = w.Stop() }()

	var docs []Document
	for {
		select {
		case <-ctx.Done():
			return nil, feed.ConnectionError("load "+collection, ctx.Err())
		case e, ok := <-w.Updates():
			if !ok {
				return nil, feed.ConnectionError("load "+collection, errWatcherClosed)
			}
			if e == nil {
				return docs, nil
			}
			docs = append(docs, Document{ID: idFromKey(e.Key()), Data: e.Value()})
		}
	}
}

type natsListener struct {
	w       nats.KeyWatcher
	done    chan struct{}
	stopped atomic.Bool
	once    sync.Once
	err     error
}

// run keeps the current document set of the watched collection and emits
// the selected snapshot once the initial values are in and after every update.
func (l *natsListener) run(q Query, fn SnapshotFunc, logger *zap.Logger) {
	defer close(l.done)

	current := make(map[string]Document)
	ready := false
	emit := func() {
		docs := make([]Document, 0, len(current))
		for _, d := range current {
			docs = append(docs, d)
		}
		fn(firstN(selectDocs(docs, q), q.Limit), nil)
	}

	for e := range l.w.Updates() {
		if l.stopped.Load() {
			continue // drain until the watcher closes the channel
		}
		if e == nil {
			ready = true
			emit()
			continue
		}
		id := idFromKey(e.Key())
		switch e.Operation() {
		case nats.KeyValueDelete, nats.KeyValuePurge:
			delete(current, id)
		default:
			current[id] = Document{ID: id, Data: e.Value()}
		}
		if ready {
			emit()
		}
	}

	if !l.stopped.Load() {
		logger.Warn("document watch ended unexpectedly", zap.String("collection", q.Collection))
		fn(nil, feed.ConnectionError("watch "+q.Collection, errWatcherClosed))
	}
}

func (l *natsListener) Close() error {
	l.once.Do(func() {
		l.stopped.Store(true)
		l.err = l.w.Stop()
		<-l.done
	})
	return l.err
}
