package screens

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for screens and their live collections.
//
//   - screens_open{kind} - screens currently open
//   - screens_opened_total{kind} - screens opened
//   - screens_expired_total{kind} - screens closed for inactivity
//   - feed_pushes_total{kind,message} - messages applied from subscriptions
//   - feed_page_items_total{kind,stage} - items fetched and appended by LoadMore
//   - feed_pages_discarded_total{kind} - pages dropped after their subscription ended
type Metrics struct {
	Open      *prometheus.GaugeVec
	Opened    *prometheus.CounterVec
	Expired   *prometheus.CounterVec
	Pushes    *prometheus.CounterVec
	PageItems *prometheus.CounterVec
	Discarded *prometheus.CounterVec
}

// NewMetrics registers the screen metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Open: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "screens_open",
			Help: "Number of open screens",
		}, []string{"kind"}),
		Opened: f.NewCounterVec(prometheus.CounterOpts{
			Name: "screens_opened_total",
			Help: "Total number of screens opened",
		}, []string{"kind"}),
		Expired: f.NewCounterVec(prometheus.CounterOpts{
			Name: "screens_expired_total",
			Help: "Total number of screens closed for inactivity",
		}, []string{"kind"}),
		Pushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_pushes_total",
			Help: "Total number of subscription messages applied",
		}, []string{"kind", "message"}), // "snapshot", "delta" or "failure"
		PageItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_page_items_total",
			Help: "Total number of items fetched and appended by load more",
		}, []string{"kind", "stage"}), // "fetched" or "appended"
		Discarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_pages_discarded_total",
			Help: "Total number of pages discarded because their subscription ended",
		}, []string{"kind"}),
	}
}

// observer adapts Metrics to feed.Observer for one screen kind.
type observer struct {
	m    *Metrics
	kind Kind
}

func (o observer) Pushed(message string, _ int) {
	o.m.Pushes.WithLabelValues(string(o.kind), message).Inc()
}

func (o observer) Paged(fetched, appended int) {
	o.m.PageItems.WithLabelValues(string(o.kind), "fetched").Add(float64(fetched))
	o.m.PageItems.WithLabelValues(string(o.kind), "appended").Add(float64(appended))
}

func (o observer) Discarded() {
	o.m.Discarded.WithLabelValues(string(o.kind)).Inc()
}
