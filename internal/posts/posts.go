// Package posts implements the community feed: video posts, likes and
// comment threads.
//
// Writes go straight to the document store. Screens observe the results
// through live collections built from Feed and Comments, never through
// return values of the mutations.
package posts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/skatepedia/internal/media"
	"github.com/fyrsmithlabs/skatepedia/internal/models"
	"github.com/fyrsmithlabs/skatepedia/internal/telemetry"
	"github.com/fyrsmithlabs/skatepedia/pkg/docstore"
	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

const (
	maxTrickName  = 100
	maxNotes      = 2000
	maxComment    = 1000
	deleteWorkers = 8
)

var (
	// ErrForbidden is returned when a user changes a post they do not own.
	ErrForbidden = errors.New("not the owner of this post")

	// ErrRateLimited is returned when a user likes too quickly.
	ErrRateLimited = errors.New("too many likes")
)

// Config tunes the service.
type Config struct {
	LikesPerMinute int
	LikeBurst      int
}

// Service owns post and comment mutations.
type Service struct {
	docs    docstore.Client
	media   *media.Store
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *metrics
	likes   *userLimiter

	now   func() time.Time
	newID func() string
}

// NewService wires the post service. tel may be nil.
func NewService(docs docstore.Client, store *media.Store, cfg Config, tel *telemetry.Telemetry, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := newMetrics(tel.Meter(InstrumentationName))
	if err != nil {
		return nil, fmt.Errorf("creating post metrics: %w", err)
	}
	return &Service{
		docs:    docs,
		media:   store,
		logger:  logger.Named("posts"),
		tracer:  tel.Tracer(InstrumentationName),
		metrics: m,
		likes:   newUserLimiter(cfg.LikesPerMinute, cfg.LikeBurst),
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

// FeedFilter returns the post feed filter: every post, or only userID's
// posts when mine is set.
func FeedFilter(userID string, mine bool) feed.Filter {
	if mine {
		return feed.Where(models.FieldUserID, userID)
	}
	return feed.All
}

// Feed returns the live source of the post feed.
func (s *Service) Feed() feed.Source[models.Post] {
	return docstore.NewSource[models.Post](s.docs, models.PostsCollection, s.logger)
}

// Comments returns the live source of one post's comment thread.
func (s *Service) Comments(postID string) (feed.Source[models.Comment], error) {
	if err := docstore.ValidateID(postID); err != nil {
		return nil, err
	}
	return docstore.NewSource[models.Comment](s.docs, commentsPath(postID), s.logger), nil
}

func commentsPath(postID string) string {
	return docstore.Sub(models.PostsCollection, postID, models.CommentsSub)
}

// NewPost is the user supplied part of a post.
type NewPost struct {
	TrickName string `json:"trick_name"`
	Notes     string `json:"notes"`
}

func (p NewPost) validate() error {
	name := strings.TrimSpace(p.TrickName)
	if name == "" {
		return feed.ValidationError("create post", "trick name is required")
	}
	if utf8.RuneCountInString(name) > maxTrickName {
		return feed.ValidationError("create post", "trick name longer than %d characters", maxTrickName)
	}
	if utf8.RuneCountInString(p.Notes) > maxNotes {
		return feed.ValidationError("create post", "notes longer than %d characters", maxNotes)
	}
	return nil
}

// Create uploads the video and then writes the post document. The video is
// removed again when the document write fails.
func (s *Service) Create(ctx context.Context, userID string, in NewPost, video io.Reader, contentType string) (_ models.Post, err error) {
	ctx, span := s.tracer.Start(ctx, "posts.Create", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := docstore.ValidateID(userID); err != nil {
		return models.Post{}, err
	}
	if err := in.validate(); err != nil {
		return models.Post{}, err
	}

	id := s.newID()
	span.SetAttributes(attribute.String("post.id", id))
	path := media.PostVideoPath(id)

	url, err := s.media.Upload(ctx, path, video, contentType)
	if err != nil {
		return models.Post{}, err
	}

	post := models.Post{
		PostID:      id,
		UserID:      userID,
		TrickName:   strings.TrimSpace(in.TrickName),
		Notes:       in.Notes,
		DateCreated: s.now().UTC(),
		VideoURL:    url,
	}
	doc, err := docstore.Encode(id, post)
	if err != nil {
		_ = s.media.Delete(ctx, path)
		return models.Post{}, err
	}
	if err := s.docs.Put(ctx, models.PostsCollection, doc); err != nil {
		_ = s.media.Delete(ctx, path)
		return models.Post{}, err
	}

	count(ctx, s.metrics.created)
	s.logger.Info("post created", zap.String("post_id", id), zap.String("user_id", userID))
	return post, nil
}

// Get returns one post.
func (s *Service) Get(ctx context.Context, postID string) (models.Post, error) {
	doc, err := s.docs.Get(ctx, models.PostsCollection, postID)
	if err != nil {
		return models.Post{}, err
	}
	var p models.Post
	if err := docstore.Decode(doc, &p); err != nil {
		return models.Post{}, err
	}
	return p, nil
}

// ListByUser returns every post by userID, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.Post, error) {
	if err := docstore.ValidateID(userID); err != nil {
		return nil, err
	}
	docs, err := s.docs.List(ctx, docstore.Query{
		Collection: models.PostsCollection,
		Filter:     feed.Where(models.FieldUserID, userID),
		OrderBy:    models.OrderByDateCreated,
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Post, 0, len(docs))
	for _, d := range docs {
		var p models.Post
		if err := docstore.Decode(d, &p); err != nil {
			s.logger.Warn("skipping undecodable post", zap.String("post_id", d.ID), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Like adds one like to a post and returns the new total.
func (s *Service) Like(ctx context.Context, userID, postID string) (_ int64, err error) {
	ctx, span := s.tracer.Start(ctx, "posts.Like", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("post.id", postID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := docstore.ValidateID(postID); err != nil {
		return 0, err
	}
	if !s.likes.Allow(userID) {
		count(ctx, s.metrics.throttled)
		return 0, ErrRateLimited
	}
	n, err := s.docs.Increment(ctx, models.PostsCollection, postID, "likes", 1)
	if err != nil {
		return 0, err
	}
	count(ctx, s.metrics.likes)
	return n, nil
}

// LikeCount returns the current like total of a post.
func (s *Service) LikeCount(ctx context.Context, postID string) (int64, error) {
	p, err := s.Get(ctx, postID)
	if err != nil {
		return 0, err
	}
	return p.Likes, nil
}

// Delete removes a post owned by userID together with its video and
// comments. The post document goes last so a failed cascade can be retried.
func (s *Service) Delete(ctx context.Context, userID, postID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "posts.Delete", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("post.id", postID)))
	defer func() { telemetry.EndSpan(span, err) }()

	p, err := s.Get(ctx, postID)
	if err != nil {
		return err
	}
	if p.UserID != userID {
		return ErrForbidden
	}
	return s.remove(ctx, postID)
}

// DeleteAllByUser removes every post of userID. It is used when a user
// deletes their account.
func (s *Service) DeleteAllByUser(ctx context.Context, userID string) (int, error) {
	posts, err := s.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	for i, p := range posts {
		if err := s.remove(ctx, p.PostID); err != nil {
			return i, err
		}
	}
	return len(posts), nil
}

func (s *Service) remove(ctx context.Context, postID string) error {
	if err := s.media.Delete(ctx, media.PostVideoPath(postID)); err != nil {
		return err
	}

	comments, err := s.docs.List(ctx, docstore.Query{Collection: commentsPath(postID)})
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteWorkers)
	for _, c := range comments {
		id := c.ID
		g.Go(func() error {
			return s.docs.Delete(gctx, commentsPath(postID), id)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("deleting comments of post %s: %w", postID, err)
	}

	if err := s.docs.Delete(ctx, models.PostsCollection, postID); err != nil {
		return err
	}
	count(ctx, s.metrics.deleted)
	s.logger.Info("post deleted", zap.String("post_id", postID), zap.Int("comments", len(comments)))
	return nil
}

// AddComment appends a comment to a post.
func (s *Service) AddComment(ctx context.Context, userID, postID, content string) (_ models.Comment, err error) {
	ctx, span := s.tracer.Start(ctx, "posts.AddComment", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("post.id", postID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := docstore.ValidateID(userID); err != nil {
		return models.Comment{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, feed.ValidationError("add comment", "comment is empty")
	}
	if utf8.RuneCountInString(content) > maxComment {
		return models.Comment{}, feed.ValidationError("add comment", "comment longer than %d characters", maxComment)
	}
	if _, err := s.Get(ctx, postID); err != nil {
		return models.Comment{}, err
	}

	c := models.Comment{
		CommentID:   s.newID(),
		PostID:      postID,
		FromUserID:  userID,
		Content:     content,
		DateCreated: s.now().UTC(),
	}
	doc, err := docstore.Encode(c.CommentID, c)
	if err != nil {
		return models.Comment{}, err
	}
	if err := s.docs.Put(ctx, commentsPath(postID), doc); err != nil {
		return models.Comment{}, err
	}
	count(ctx, s.metrics.comments)
	return c, nil
}

// CommentCount returns the number of comments on a post.
func (s *Service) CommentCount(ctx context.Context, postID string) (int, error) {
	if err := docstore.ValidateID(postID); err != nil {
		return 0, err
	}
	return s.docs.Count(ctx, docstore.Query{Collection: commentsPath(postID)})
}
