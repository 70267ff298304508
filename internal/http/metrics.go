package http

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/internal/screens"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/skatepedia/internal/http"

// screenKindKey is the echo context key handlers use to label a request
// with the kind of screen it touched.
const screenKindKey = "skatepedia.screen_kind"

// HTTPMetrics records request counts and latency per API area, upload
// sizes, and open event streams. Event streams are long-lived and are kept
// out of the latency histogram.
type HTTPMetrics struct {
	meter   metric.Meter
	logger  *zap.Logger
	reqs    metric.Int64Counter
	latency metric.Float64Histogram
	uploads metric.Int64Histogram
	streams metric.Int64UpDownCounter
}

// NewHTTPMetrics creates instruments on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{
		meter:  otel.Meter(httpInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	var err error
	if m.reqs, err = m.meter.Int64Counter(
		"skatepedia.http.requests_total",
		metric.WithDescription("API requests by area (posts, screens, trick-items...), route, method and status."),
		metric.WithUnit("{request}"),
	); err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}
	if m.latency, err = m.meter.Float64Histogram(
		"skatepedia.http.request_duration_seconds",
		metric.WithDescription("Latency of non-streaming API requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 10, 30),
	); err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}
	// Video uploads dominate request sizes; buckets run up to the default
	// 200MB cap.
	if m.uploads, err = m.meter.Int64Histogram(
		"skatepedia.http.upload_size_bytes",
		metric.WithDescription("Size of multipart video uploads."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1<<20, 5<<20, 20<<20, 50<<20, 100<<20, 200<<20),
	); err != nil {
		m.logger.Warn("failed to create upload size histogram", zap.Error(err))
	}
	if m.streams, err = m.meter.Int64UpDownCounter(
		"skatepedia.http.open_event_streams",
		metric.WithDescription("Screen event streams currently connected."),
		metric.WithUnit("{stream}"),
	); err != nil {
		m.logger.Warn("failed to create event stream gauge", zap.Error(err))
	}
}

// MetricsMiddleware returns an Echo middleware that records the metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()
			route := normalizePath(c.Path())
			stream := isEventStream(route)

			if stream && m.streams != nil {
				m.streams.Add(ctx, 1)
				defer m.streams.Add(ctx, -1)
			}

			err := next(c)

			attrs := []attribute.KeyValue{
				attribute.String("area", routeArea(route)),
				attribute.String("route", route),
				attribute.String("method", req.Method),
				attribute.Int("status", c.Response().Status),
			}
			if kind, ok := c.Get(screenKindKey).(string); ok {
				attrs = append(attrs, attribute.String("screen.kind", kind))
			}
			set := metric.WithAttributes(attrs...)

			if m.reqs != nil {
				m.reqs.Add(ctx, 1, set)
			}
			if !stream && m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), set)
			}
			if m.uploads != nil && req.ContentLength > 0 &&
				strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
				m.uploads.Record(ctx, req.ContentLength, metric.WithAttributes(attribute.String("route", route)))
			}
			return err
		}
	}
}

// tagScreen labels the request's metrics with the screen's kind.
func tagScreen(c echo.Context, scr *screens.Screen) {
	c.Set(screenKindKey, string(scr.Kind))
}

// normalizePath maps a request onto its route template. Echo already
// reports templates such as /v1/posts/:id, so only unmatched requests need
// a placeholder.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}

// routeArea is the resource a route belongs to: "posts" for
// /v1/posts/:id/likes, "media" for /media/*.
func routeArea(route string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(route, "/v1"), "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "unmatched"
	}
	return rest
}

func isEventStream(route string) bool {
	return strings.HasSuffix(route, "/events")
}
