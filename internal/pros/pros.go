// Package pros serves professional skaters' reference clips and compares
// them with a user's own trick items.
package pros

import (
	"context"
	"io"
	"strconv"
	"strings"
	"unicode"

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
const InstrumentationName = "github.com/fyrsmithlabs/skatepedia/internal/pros"

// Stances a pro can ride.
const (
	StanceRegular = "regular"
	StanceGoofy   = "goofy"
)

// ItemGetter loads a user's trick item.
type ItemGetter interface {
	Get(ctx context.Context, userID, itemID string) (models.TrickItem, error)
}

// Service owns pro profiles and clips.
type Service struct {
	docs    docstore.Client
	media   *media.Store
	catalog *catalog.Catalog
	items   ItemGetter
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewService wires the pro service. tel may be nil.
func NewService(docs docstore.Client, store *media.Store, cat *catalog.Catalog, items ItemGetter, tel *telemetry.Telemetry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		docs:    docs,
		media:   store,
		catalog: cat,
		items:   items,
		logger:  logger.Named("pros"),
		tracer:  tel.Tracer(InstrumentationName),
	}
}

// Slug derives a pro's document id from their name: "Shane O'Neill"
// becomes "shane_o_neill".
func Slug(name string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			sep = false
			continue
		}
		sep = true
	}
	return b.String()
}

func videosPath(proID string) string {
	return docstore.Sub(models.ProsCollection, proID, models.ProVideosSub)
}

// Add registers a pro.
func (s *Service) Add(ctx context.Context, name, stance string) (models.Pro, error) {
	name = strings.TrimSpace(name)
	id := Slug(name)
	if id == "" {
		return models.Pro{}, feed.ValidationError("add pro", "name %q has no letters or digits", name)
	}
	if stance != StanceRegular && stance != StanceGoofy {
		return models.Pro{}, feed.ValidationError("add pro", "stance must be %q or %q", StanceRegular, StanceGoofy)
	}
	pro := models.Pro{DocumentID: id, ProName: name, Stance: stance}
	doc, err := docstore.Encode(id, pro)
	if err != nil {
		return models.Pro{}, err
	}
	if err := s.docs.Put(ctx, models.ProsCollection, doc); err != nil {
		return models.Pro{}, err
	}
	return pro, nil
}

// List returns every pro.
func (s *Service) List(ctx context.Context) ([]models.Pro, error) {
	docs, err := s.docs.List(ctx, docstore.Query{Collection: models.ProsCollection})
	if err != nil {
		return nil, err
	}
	pros := make([]models.Pro, 0, len(docs))
	for _, d := range docs {
		var p models.Pro
		if err := docstore.Decode(d, &p); err != nil {
			s.logger.Warn("skipping undecodable pro", zap.String("pro_id", d.ID), zap.Error(err))
			continue
		}
		pros = append(pros, p)
	}
	return pros, nil
}

// ByName finds a pro by display name.
func (s *Service) ByName(ctx context.Context, name string) (models.Pro, error) {
	docs, err := s.docs.List(ctx, docstore.Query{
		Collection: models.ProsCollection,
		Filter:     feed.Where(models.FieldProName, name),
		Limit:      1,
	})
	if err != nil {
		return models.Pro{}, err
	}
	if len(docs) == 0 {
		return models.Pro{}, feed.NotFoundError("pro "+strconv.Quote(name), nil)
	}
	var p models.Pro
	if err := docstore.Decode(docs[0], &p); err != nil {
		return models.Pro{}, err
	}
	return p, nil
}

// Get returns a pro by id.
func (s *Service) Get(ctx context.Context, proID string) (models.Pro, error) {
	doc, err := s.docs.Get(ctx, models.ProsCollection, proID)
	if err != nil {
		return models.Pro{}, err
	}
	var p models.Pro
	if err := docstore.Decode(doc, &p); err != nil {
		return models.Pro{}, err
	}
	return p, nil
}

// Video returns a pro's clip of one trick.
func (s *Service) Video(ctx context.Context, proID, trickID string) (models.ProVideo, error) {
	if err := docstore.ValidateID(proID); err != nil {
		return models.ProVideo{}, err
	}
	doc, err := s.docs.Get(ctx, videosPath(proID), trickID)
	if err != nil {
		return models.ProVideo{}, err
	}
	var v models.ProVideo
	if err := docstore.Decode(doc, &v); err != nil {
		return models.ProVideo{}, err
	}
	return v, nil
}

// UploadVideo stores a pro's clip of a trick and registers it.
func (s *Service) UploadVideo(ctx context.Context, proID, trickID string, video io.Reader, contentType string) (_ models.ProVideo, err error) {
	ctx, span := s.tracer.Start(ctx, "pros.UploadVideo", trace.WithAttributes(
		attribute.String("pro.id", proID),
		attribute.String("trick.id", trickID)))
	defer func() { telemetry.EndSpan(span, err) }()

	pro, trick, err := s.lookup(ctx, proID, trickID)
	if err != nil {
		return models.ProVideo{}, err
	}
	url, err := s.media.Upload(ctx, media.ProVideoPath(proID, trickID), video, contentType)
	if err != nil {
		return models.ProVideo{}, err
	}
	return s.register(ctx, pro, trick, url)
}

// RegisterVideo records a clip already present in object storage at
// pro_videos/{pro id}/{trick id}.mp4.
func (s *Service) RegisterVideo(ctx context.Context, proID, trickID string) (_ models.ProVideo, err error) {
	ctx, span := s.tracer.Start(ctx, "pros.RegisterVideo", trace.WithAttributes(
		attribute.String("pro.id", proID),
		attribute.String("trick.id", trickID)))
	defer func() { telemetry.EndSpan(span, err) }()

	pro, trick, err := s.lookup(ctx, proID, trickID)
	if err != nil {
		return models.ProVideo{}, err
	}
	path := media.ProVideoPath(proID, trickID)
	rc, _, err := s.media.Open(ctx, path)
	if err != nil {
		return models.ProVideo{}, err
	}
	_ = rc.Close()
	return s.register(ctx, pro, trick, s.media.URL(path))
}

func (s *Service) lookup(ctx context.Context, proID, trickID string) (models.Pro, catalog.Trick, error) {
	pro, err := s.Get(ctx, proID)
	if err != nil {
		return models.Pro{}, catalog.Trick{}, err
	}
	trick, err := s.catalog.Trick(trickID)
	if err != nil {
		return models.Pro{}, catalog.Trick{}, feed.ValidationError("pro video", "%w", err)
	}
	return pro, trick, nil
}

func (s *Service) register(ctx context.Context, pro models.Pro, trick catalog.Trick, url string) (models.ProVideo, error) {
	v := models.ProVideo{
		DocumentID: trick.ID,
		ProName:    pro.ProName,
		ProID:      pro.DocumentID,
		TrickName:  trick.Name,
		TrickID:    trick.ID,
		VideoURL:   url,
	}
	doc, err := docstore.Encode(v.DocumentID, v)
	if err != nil {
		return models.ProVideo{}, err
	}
	if err := s.docs.Put(ctx, videosPath(pro.DocumentID), doc); err != nil {
		return models.ProVideo{}, err
	}
	s.logger.Info("pro video registered", zap.String("pro_id", pro.DocumentID), zap.String("trick_id", trick.ID))
	return v, nil
}

// Comparison pairs a user's trick item with a pro's clip of the same trick.
type Comparison struct {
	Item  models.TrickItem `json:"trick_item"`
	Pro   models.Pro       `json:"pro"`
	Video models.ProVideo  `json:"pro_video"`
}

// Compare loads a user's trick item and the named pro's clip of that trick.
func (s *Service) Compare(ctx context.Context, userID, itemID, proName string) (_ Comparison, err error) {
	ctx, span := s.tracer.Start(ctx, "pros.Compare", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("item.id", itemID)))
	defer func() { telemetry.EndSpan(span, err) }()

	item, err := s.items.Get(ctx, userID, itemID)
	if err != nil {
		return Comparison{}, err
	}
	pro, err := s.ByName(ctx, proName)
	if err != nil {
		return Comparison{}, err
	}
	video, err := s.Video(ctx, pro.DocumentID, item.TrickID)
	if err != nil {
		return Comparison{}, err
	}
	return Comparison{Item: item, Pro: pro, Video: video}, nil
}
