package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

var errNotFound = errors.New("document does not exist")

// MemoryClient is an in-process Client. Subscriptions are served by one
// goroutine each and coalesce bursts of changes into the latest snapshot.
type MemoryClient struct {
	logger *zap.Logger

	mu        sync.RWMutex
	docs      map[string]map[string]Document
	listeners map[*memoryListener]struct{}
}

// NewMemoryClient returns an empty store.
func NewMemoryClient(logger *zap.Logger) *MemoryClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryClient{
		logger:    logger,
		docs:      make(map[string]map[string]Document),
		listeners: make(map[*memoryListener]struct{}),
	}
}

func (m *MemoryClient) Subscribe(_ context.Context, q Query, fn SnapshotFunc) (Listener, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	l := &memoryListener{
		client: m,
		q:      q,
		fn:     fn,
		dirty:  make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	l.dirty <- struct{}{}

	m.mu.Lock()
	m.listeners[l] = struct{}{}
	m.mu.Unlock()

	go l.run()
	return l, nil
}

func (m *MemoryClient) Query(_ context.Context, q Query, after *Position, limit int) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, feed.ValidationError("query", "negative limit %d", limit)
	}
	return pageAfter(m.selected(q), after, limit), nil
}

func (m *MemoryClient) List(_ context.Context, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	return firstN(m.selected(q), q.Limit), nil
}

func (m *MemoryClient) Count(_ context.Context, q Query) (int, error) {
	if err := q.validate(); err != nil {
		return 0, err
	}
	return len(m.selected(q)), nil
}

func (m *MemoryClient) Put(_ context.Context, collection string, doc Document) error {
	if err := validateDoc(collection, doc); err != nil {
		return err
	}
	data := make([]byte, len(doc.Data))
	copy(data, doc.Data)

	m.mu.Lock()
	coll, ok := m.docs[collection]
	if !ok {
		coll = make(map[string]Document)
		m.docs[collection] = coll
	}
	coll[doc.ID] = Document{ID: doc.ID, Data: data}
	m.notifyLocked(collection)
	m.mu.Unlock()
	return nil
}

func (m *MemoryClient) Create(_ context.Context, collection string, doc Document) error {
	if err := validateDoc(collection, doc); err != nil {
		return err
	}
	data := make([]byte, len(doc.Data))
	copy(data, doc.Data)

	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.docs[collection]
	if !ok {
		coll = make(map[string]Document)
		m.docs[collection] = coll
	}
	if _, taken := coll[doc.ID]; taken {
		return fmt.Errorf("create %s/%s: %w", collection, doc.ID, ErrExists)
	}
	coll[doc.ID] = Document{ID: doc.ID, Data: data}
	m.notifyLocked(collection)
	return nil
}

func (m *MemoryClient) Get(_ context.Context, collection, id string) (Document, error) {
	if err := ValidateCollection(collection); err != nil {
		return Document{}, err
	}
	if err := ValidateID(id); err != nil {
		return Document{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return Document{}, feed.NotFoundError("get "+collection+"/"+id, errNotFound)
	}
	return doc, nil
}

func (m *MemoryClient) Delete(_ context.Context, collection, id string) error {
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[collection][id]; !ok {
		return nil
	}
	delete(m.docs[collection], id)
	m.notifyLocked(collection)
	return nil
}

func (m *MemoryClient) Increment(_ context.Context, collection, id, field string, delta int64) (int64, error) {
	if err := ValidateCollection(collection); err != nil {
		return 0, err
	}
	if !fieldPattern.MatchString(field) {
		return 0, feed.ValidationError("increment", "invalid field %q", field)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return 0, feed.NotFoundError("increment "+collection+"/"+id, errNotFound)
	}
	updated, n, err := increment(doc, field, delta)
	if err != nil {
		return 0, err
	}
	m.docs[collection][id] = updated
	m.notifyLocked(collection)
	return n, nil
}

func (m *MemoryClient) selected(q Query) []ranked {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll := m.docs[q.Collection]
	docs := make([]Document, 0, len(coll))
	for _, d := range coll {
		docs = append(docs, d)
	}
	return selectDocs(docs, q)
}

func (m *MemoryClient) notifyLocked(collection string) {
	for l := range m.listeners {
		if l.q.Collection == collection {
			l.markDirty()
		}
	}
}

func (m *MemoryClient) unregister(l *memoryListener) {
	m.mu.Lock()
	delete(m.listeners, l)
	m.mu.Unlock()
}

type memoryListener struct {
	client *MemoryClient
	q      Query
	fn     SnapshotFunc

	dirty chan struct{}
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (l *memoryListener) markDirty() {
	select {
	case l.dirty <- struct{}{}:
	default:
	}
}

func (l *memoryListener) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case <-l.dirty:
		}
		docs := firstN(l.client.selected(l.q), l.q.Limit)
		select {
		case <-l.stop:
			return
		default:
		}
		l.fn(docs, nil)
	}
}

func (l *memoryListener) Close() error {
	l.once.Do(func() {
		l.client.unregister(l)
		close(l.stop)
		<-l.done
	})
	return nil
}
