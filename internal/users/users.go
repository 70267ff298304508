// Package users manages skater profiles and account deletion.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/skatepedia/internal/logging"
	"github.com/fyrsmithlabs/skatepedia/internal/models"
	"github.com/fyrsmithlabs/skatepedia/internal/telemetry"
	"github.com/fyrsmithlabs/skatepedia/pkg/docstore"
	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

// InstrumentationName is the otel scope of this package.
const InstrumentationName = "github.com/fyrsmithlabs/skatepedia/internal/users"

// ErrExists is returned when creating a profile that already exists.
var ErrExists = errors.New("user already exists")

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{3,30}$`)

// PostRemover deletes every post of a user.
type PostRemover interface {
	DeleteAllByUser(ctx context.Context, userID string) (int, error)
}

// TrickRemover deletes every trick item of a user.
type TrickRemover interface {
	DeleteAll(ctx context.Context, userID string) (int, error)
}

// Service owns user profiles.
type Service struct {
	docs   docstore.Client
	posts  PostRemover
	tricks TrickRemover
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewService wires the user service. tel may be nil.
func NewService(docs docstore.Client, posts PostRemover, tricks TrickRemover, tel *telemetry.Telemetry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		docs:   docs,
		posts:  posts,
		tricks: tricks,
		logger: logger.Named("users"),
		tracer: tel.Tracer(InstrumentationName),
		now:    time.Now,
	}
}

// NewUser is the user supplied part of a profile.
type NewUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (u NewUser) validate() error {
	if !usernamePattern.MatchString(u.Username) {
		return feed.ValidationError("create user", "username must be 3 to 30 letters, digits, '_' or '.'")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return feed.ValidationError("create user", "invalid email %q", u.Email)
	}
	return nil
}

// Create stores the profile of userID.
func (s *Service) Create(ctx context.Context, userID string, in NewUser) (_ models.User, err error) {
	ctx, span := s.tracer.Start(ctx, "users.Create", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := docstore.ValidateID(userID); err != nil {
		return models.User{}, err
	}
	if err := in.validate(); err != nil {
		return models.User{}, err
	}
	u := models.User{
		UserID:      userID,
		Username:    in.Username,
		Email:       in.Email,
		DateCreated: s.now().UTC(),
	}
	doc, err := docstore.Encode(userID, u)
	if err != nil {
		return models.User{}, err
	}
	if err := s.docs.Create(ctx, models.UsersCollection, doc); err != nil {
		if errors.Is(err, docstore.ErrExists) {
			return models.User{}, ErrExists
		}
		return models.User{}, err
	}
	s.logger.Info("user created", zap.String("user_id", userID), logging.RedactedString("email", u.Email))
	return u, nil
}

// Get returns the profile of userID.
func (s *Service) Get(ctx context.Context, userID string) (models.User, error) {
	doc, err := s.docs.Get(ctx, models.UsersCollection, userID)
	if err != nil {
		return models.User{}, err
	}
	var u models.User
	if err := docstore.Decode(doc, &u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// Username returns the display name of userID.
func (s *Service) Username(ctx context.Context, userID string) (string, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// DeletionReport counts what DeleteData removed.
type DeletionReport struct {
	TrickItems int `json:"trick_items"`
	Posts      int `json:"posts"`
}

// DeleteData removes a user's trick items and posts concurrently, then the
// profile itself. The profile stays when either cascade fails so the
// deletion can be retried.
func (s *Service) DeleteData(ctx context.Context, userID string) (_ DeletionReport, err error) {
	ctx, span := s.tracer.Start(ctx, "users.DeleteData", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := docstore.ValidateID(userID); err != nil {
		return DeletionReport{}, err
	}

	var report DeletionReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.tricks.DeleteAll(gctx, userID)
		report.TrickItems = n
		if err != nil {
			return fmt.Errorf("deleting trick items: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		n, err := s.posts.DeleteAllByUser(gctx, userID)
		report.Posts = n
		if err != nil {
			return fmt.Errorf("deleting posts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("user data deletion incomplete",
			zap.String("user_id", userID),
			zap.Int("trick_items", report.TrickItems),
			zap.Int("posts", report.Posts),
			zap.Error(err))
		return report, err
	}

	if err := s.docs.Delete(ctx, models.UsersCollection, userID); err != nil {
		return report, err
	}
	s.logger.Info("user data deleted",
		zap.String("user_id", userID),
		zap.Int("trick_items", report.TrickItems),
		zap.Int("posts", report.Posts))
	return report, nil
}
