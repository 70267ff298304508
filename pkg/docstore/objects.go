package docstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

// DefaultObjectBucket is the ObjectStore bucket holding uploaded videos.
const DefaultObjectBucket = "skatepedia-media"

var errObjectNotFound = errors.New("object does not exist")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Path        string
	ContentType string
	Size        int64
}

// Objects is the blob side of the store. Objects are addressed by slash
// separated paths such as "community_posts/<post id>".
type Objects interface {
	// Upload stores data under path and returns its download URL.
	Upload(ctx context.Context, path string, data io.Reader, contentType string) (string, error)

	// Open returns a reader for the object. The caller closes it.
	Open(ctx context.Context, path string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// URL returns the download URL of path without checking it exists.
	URL(path string) string
}

// ValidateObjectPath rejects paths with empty, relative or unsafe segments.
func ValidateObjectPath(path string) error {
	if path == "" {
		return feed.ValidationError("object", "empty object path")
	}
	for _, seg := range strings.Split(path, "/") {
		name := strings.TrimSuffix(seg, ".mp4")
		if !segmentPattern.MatchString(name) {
			return feed.ValidationError("object", "invalid object path %q", path)
		}
	}
	return nil
}

func objectURL(base, path string) string {
	u := strings.TrimRight(base, "/")
	for _, seg := range strings.Split(path, "/") {
		u += "/" + url.PathEscape(seg)
	}
	return u
}

// MemoryObjects keeps objects in process memory.
type MemoryObjects struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryObjects returns an empty object store whose URLs start with baseURL.
func NewMemoryObjects(baseURL string) *MemoryObjects {
	return &MemoryObjects{baseURL: baseURL, objects: make(map[string]memoryObject)}
}

func (m *MemoryObjects) Upload(_ context.Context, path string, data io.Reader, contentType string) (string, error) {
	if err := ValidateObjectPath(path); err != nil {
		return "", err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", feed.ValidationError("upload", "read %s: %v", path, err)
	}
	m.mu.Lock()
	m.objects[path] = memoryObject{data: b, contentType: contentType}
	m.mu.Unlock()
	return m.URL(path), nil
}

func (m *MemoryObjects) Open(_ context.Context, path string) (io.ReadCloser, ObjectInfo, error) {
	if err := ValidateObjectPath(path); err != nil {
		return nil, ObjectInfo{}, err
	}
	m.mu.RLock()
	obj, ok := m.objects[path]
	m.mu.RUnlock()
	if !ok {
		return nil, ObjectInfo{}, feed.NotFoundError("open "+path, errObjectNotFound)
	}
	info := ObjectInfo{Path: path, ContentType: obj.contentType, Size: int64(len(obj.data))}
	return io.NopCloser(bytes.NewReader(obj.data)), info, nil
}

func (m *MemoryObjects) Delete(_ context.Context, path string) error {
	if err := ValidateObjectPath(path); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, path)
	m.mu.Unlock()
	return nil
}

func (m *MemoryObjects) URL(path string) string { return objectURL(m.baseURL, path) }

// NATSObjects stores objects in a JetStream ObjectStore bucket.
type NATSObjects struct {
	store   nats.ObjectStore
	baseURL string
	logger  *zap.Logger
}

// NewNATSObjects opens bucket, creating it when it does not exist yet.
func NewNATSObjects(js nats.JetStreamContext, bucket, baseURL string, logger *zap.Logger) (*NATSObjects, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bucket == "" {
		bucket = DefaultObjectBucket
	}
	store, err := js.ObjectStore(bucket)
	if errors.Is(err, nats.ErrStreamNotFound) || errors.Is(err, nats.ErrBucketNotFound) {
		store, err = js.CreateObjectStore(&nats.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "skatepedia videos",
		})
	}
	if err != nil {
		return nil, feed.ConnectionError("open object bucket "+bucket, err)
	}
	return &NATSObjects{store: store, baseURL: baseURL, logger: logger}, nil
}

func (o *NATSObjects) Upload(_ context.Context, path string, data io.Reader, contentType string) (string, error) {
	if err := ValidateObjectPath(path); err != nil {
		return "", err
	}
	meta := &nats.ObjectMeta{
		Name:    path,
		Headers: nats.Header{"Content-Type": []string{contentType}},
	}
	info, err := o.store.Put(meta, data)
	if err != nil {
		return "", feed.ConnectionError("upload "+path, err)
	}
	o.logger.Debug("object stored", zap.String("path", path), zap.Uint64("size", info.Size))
	return o.URL(path), nil
}

func (o *NATSObjects) Open(ctx context.Context, path string) (io.ReadCloser, ObjectInfo, error) {
	if err := ValidateObjectPath(path); err != nil {
		return nil, ObjectInfo{}, err
	}
	res, err := o.store.Get(path, nats.Context(ctx))
	if errors.Is(err, nats.ErrObjectNotFound) {
		return nil, ObjectInfo{}, feed.NotFoundError("open "+path, err)
	}
	if err != nil {
		return nil, ObjectInfo{}, feed.ConnectionError("open "+path, err)
	}
	info, err := res.Info()
	if err != nil {
		_ = res.Close()
		return nil, ObjectInfo{}, feed.ConnectionError("open "+path, err)
	}
	return res, ObjectInfo{
		Path:        path,
		ContentType: info.Headers.Get("Content-Type"),
		Size:        int64(info.Size),
	}, nil
}

func (o *NATSObjects) Delete(_ context.Context, path string) error {
	if err := ValidateObjectPath(path); err != nil {
		return err
	}
	if err := o.store.Delete(path); err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return feed.ConnectionError("delete "+path, err)
	}
	return nil
}

func (o *NATSObjects) URL(path string) string { return objectURL(o.baseURL, path) }
