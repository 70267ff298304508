// Package media maps skatepedia videos onto object storage paths and
// enforces upload limits.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/pkg/docstore"
	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

// Storage prefixes.
const (
	PostPrefix      = "community_posts"
	TrickItemPrefix = "user_videos"
	ProPrefix       = "pro_videos"
)

// DefaultContentType is used when an upload does not name one.
const DefaultContentType = "video/quicktime"

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = errors.New("video exceeds upload limit")

// PostVideoPath is the object path of a community post's video.
func PostVideoPath(postID string) string {
	return PostPrefix + "/" + postID
}

// TrickItemVideoPath is the object path of a trick item's video.
func TrickItemVideoPath(itemID string) string {
	return TrickItemPrefix + "/" + itemID
}

// ProVideoPath is the object path of a pro's clip for one trick.
func ProVideoPath(proID, trickID string) string {
	return ProPrefix + "/" + proID + "/" + trickID + ".mp4"
}

// Config controls uploads.
type Config struct {
	// MaxBytes caps one upload. Zero disables the cap.
	MaxBytes int64

	// ContentType is recorded when the caller gives none.
	ContentType string
}

// Store uploads and removes videos.
type Store struct {
	objects docstore.Objects
	cfg     Config
	logger  *zap.Logger
}

// NewStore wraps objects with upload limits.
func NewStore(objects docstore.Objects, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = DefaultContentType
	}
	return &Store{objects: objects, cfg: cfg, logger: logger}
}

// Upload stores a video under path and returns its URL. The data is read in
// full before anything is written so an oversized upload leaves no object.
func (s *Store) Upload(ctx context.Context, path string, data io.Reader, contentType string) (string, error) {
	if err := docstore.ValidateObjectPath(path); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = s.cfg.ContentType
	}

	r := data
	if s.cfg.MaxBytes > 0 {
		r = io.LimitReader(data, s.cfg.MaxBytes+1)
	}
	buf, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading upload for %s: %w", path, err)
	}
	if s.cfg.MaxBytes > 0 && int64(len(buf)) > s.cfg.MaxBytes {
		return "", feed.ValidationError("upload", "%w: %d byte limit", ErrTooLarge, s.cfg.MaxBytes)
	}
	if len(buf) == 0 {
		return "", feed.ValidationError("upload", "empty video for %s", path)
	}

	url, err := s.objects.Upload(ctx, path, bytes.NewReader(buf), contentType)
	if err != nil {
		return "", err
	}
	s.logger.Debug("video uploaded",
		zap.String("path", path),
		zap.Int("bytes", len(buf)),
		zap.String("content_type", contentType))
	return url, nil
}

// Delete removes a video. Failures are logged and returned.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := s.objects.Delete(ctx, path); err != nil {
		s.logger.Warn("video delete failed", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}

// URL returns the download URL of path.
func (s *Store) URL(path string) string {
	return s.objects.URL(path)
}

// Open returns a reader for a stored video.
func (s *Store) Open(ctx context.Context, path string) (io.ReadCloser, docstore.ObjectInfo, error) {
	if err := docstore.ValidateObjectPath(path); err != nil {
		return nil, docstore.ObjectInfo{}, err
	}
	return s.objects.Open(ctx, path)
}
