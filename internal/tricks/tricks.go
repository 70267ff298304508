// Package tricks manages a user's trick log: video clips of attempts at a
// catalog trick with notes and a self-rated progress.
package tricks

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/internal/catalog"
	"github.com/fyrsmithlabs/skatepedia/internal/media"
	"github.com/fyrsmithlabs/skatepedia/internal/models"
	"github.com/fyrsmithlabs/skatepedia/internal/telemetry"
	"github.com/fyrsmithlabs/skatepedia/pkg/docstore"
	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

// InstrumentationName is the otel scope of this package.
const InstrumentationName = "github.com/fyrsmithlabs/skatepedia/internal/tricks"

const maxNotes = 2000

// Service owns trick item mutations.
type Service struct {
	docs    docstore.Client
	media   *media.Store
	catalog *catalog.Catalog
	logger  *zap.Logger
	tracer  trace.Tracer

	now   func() time.Time
	newID func() string
}

// NewService wires the trick log service. tel may be nil.
func NewService(docs docstore.Client, store *media.Store, cat *catalog.Catalog, tel *telemetry.Telemetry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		docs:    docs,
		media:   store,
		catalog: cat,
		logger:  logger.Named("tricks"),
		tracer:  tel.Tracer(InstrumentationName),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// ItemsPath is the collection holding userID's trick items.
func ItemsPath(userID string) string {
	return docstore.Sub(models.UsersCollection, userID, models.TrickItemsSub)
}

// TrickFilter narrows a trick log to one catalog trick.
func TrickFilter(trickID string) feed.Filter {
	return feed.Where(models.FieldTrickID, trickID)
}

// Log returns the live source of userID's trick items. Open it with
// TrickFilter to follow one trick.
func (s *Service) Log(userID string) (feed.Source[models.TrickItem], error) {
	if err := docstore.ValidateID(userID); err != nil {
		return nil, err
	}
	return docstore.NewSource[models.TrickItem](s.docs, ItemsPath(userID), s.logger), nil
}

// NewItem is the user supplied part of a trick item.
type NewItem struct {
	TrickID  string `json:"trick_id"`
	Notes    string `json:"notes"`
	Progress int    `json:"progress"`
}

// Add uploads the clip and records a trick item for userID.
func (s *Service) Add(ctx context.Context, userID string, in NewItem, video io.Reader, contentType string) (_ models.TrickItem, err error) {
	ctx, span := s.tracer.Start(ctx, "tricks.Add", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("trick.id", in.TrickID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := docstore.ValidateID(userID); err != nil {
		return models.TrickItem{}, err
	}
	trick, err := s.catalog.Trick(in.TrickID)
	if err != nil {
		return models.TrickItem{}, feed.ValidationError("add trick item", "%w", err)
	}
	if in.Progress < 0 || in.Progress > models.MaxProgress {
		return models.TrickItem{}, feed.ValidationError("add trick item", "progress %d outside 0..%d", in.Progress, models.MaxProgress)
	}
	if utf8.RuneCountInString(in.Notes) > maxNotes {
		return models.TrickItem{}, feed.ValidationError("add trick item", "notes longer than %d characters", maxNotes)
	}

	id := s.newID()
	path := media.TrickItemVideoPath(id)
	url, err := s.media.Upload(ctx, path, video, contentType)
	if err != nil {
		return models.TrickItem{}, err
	}

	item := models.TrickItem{
		DocumentID:  id,
		TrickID:     trick.ID,
		TrickName:   trick.Name,
		DateCreated: s.now().UTC(),
		Notes:       in.Notes,
		Progress:    in.Progress,
		VideoURL:    url,
	}
	doc, err := docstore.Encode(id, item)
	if err == nil {
		err = s.docs.Put(ctx, ItemsPath(userID), doc)
	}
	if err != nil {
		_ = s.media.Delete(ctx, path)
		return models.TrickItem{}, err
	}

	s.logger.Info("trick item added",
		zap.String("user_id", userID),
		zap.String("trick_id", trick.ID),
		zap.String("item_id", id))
	return item, nil
}

// Get returns one trick item.
func (s *Service) Get(ctx context.Context, userID, itemID string) (models.TrickItem, error) {
	if err := docstore.ValidateID(userID); err != nil {
		return models.TrickItem{}, err
	}
	doc, err := s.docs.Get(ctx, ItemsPath(userID), itemID)
	if err != nil {
		return models.TrickItem{}, err
	}
	var item models.TrickItem
	if err := docstore.Decode(doc, &item); err != nil {
		return models.TrickItem{}, err
	}
	return item, nil
}

// List returns every trick item of userID, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]models.TrickItem, error) {
	if err := docstore.ValidateID(userID); err != nil {
		return nil, err
	}
	docs, err := s.docs.List(ctx, docstore.Query{
		Collection: ItemsPath(userID),
		OrderBy:    models.OrderByDateCreated,
	})
	if err != nil {
		return nil, err
	}
	items := make([]models.TrickItem, 0, len(docs))
	for _, d := range docs {
		var item models.TrickItem
		if err := docstore.Decode(d, &item); err != nil {
			s.logger.Warn("skipping undecodable trick item", zap.String("item_id", d.ID), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// UpdateNotes replaces the notes of a trick item. Blank notes and notes
// equal to the stored ones are ignored; the result reports whether a write
// happened.
func (s *Service) UpdateNotes(ctx context.Context, userID, itemID, notes string) (_ bool, err error) {
	ctx, span := s.tracer.Start(ctx, "tricks.UpdateNotes", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("item.id", itemID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if strings.TrimSpace(notes) == "" {
		return false, nil
	}
	if utf8.RuneCountInString(notes) > maxNotes {
		return false, feed.ValidationError("update notes", "notes longer than %d characters", maxNotes)
	}
	item, err := s.Get(ctx, userID, itemID)
	if err != nil {
		return false, err
	}
	if item.Notes == notes {
		return false, nil
	}
	item.Notes = notes
	doc, err := docstore.Encode(item.DocumentID, item)
	if err != nil {
		return false, err
	}
	if err := s.docs.Put(ctx, ItemsPath(userID), doc); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a trick item and its clip.
func (s *Service) Delete(ctx context.Context, userID, itemID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "tricks.Delete", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("item.id", itemID)))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := docstore.ValidateID(userID); err != nil {
		return err
	}
	if err := docstore.ValidateID(itemID); err != nil {
		return err
	}
	if err := s.media.Delete(ctx, media.TrickItemVideoPath(itemID)); err != nil {
		return err
	}
	return s.docs.Delete(ctx, ItemsPath(userID), itemID)
}

// DeleteAll removes every trick item of userID and returns how many were
// deleted.
func (s *Service) DeleteAll(ctx context.Context, userID string) (int, error) {
	items, err := s.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	for i, item := range items {
		if err := s.Delete(ctx, userID, item.DocumentID); err != nil {
			return i, fmt.Errorf("deleting trick item %s: %w", item.DocumentID, err)
		}
	}
	return len(items), nil
}
