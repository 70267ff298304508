package posts

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the otel scope of this package.
const InstrumentationName = "github.com/fyrsmithlabs/skatepedia/internal/posts"

type metrics struct {
	created   metric.Int64Counter
	deleted   metric.Int64Counter
	likes     metric.Int64Counter
	throttled metric.Int64Counter
	comments  metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	m.created, err = meter.Int64Counter("posts.created.total",
		metric.WithDescription("Posts created"),
		metric.WithUnit("{post}"))
	if err != nil {
		return nil, err
	}
	m.deleted, err = meter.Int64Counter("posts.deleted.total",
		metric.WithDescription("Posts deleted"),
		metric.WithUnit("{post}"))
	if err != nil {
		return nil, err
	}
	m.likes, err = meter.Int64Counter("posts.likes.total",
		metric.WithDescription("Likes applied to posts"),
		metric.WithUnit("{like}"))
	if err != nil {
		return nil, err
	}
	m.throttled, err = meter.Int64Counter("posts.likes.throttled.total",
		metric.WithDescription("Likes rejected by the per-user rate limit"),
		metric.WithUnit("{like}"))
	if err != nil {
		return nil, err
	}
	m.comments, err = meter.Int64Counter("posts.comments.total",
		metric.WithDescription("Comments added to posts"),
		metric.WithUnit("{comment}"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

func count(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}
