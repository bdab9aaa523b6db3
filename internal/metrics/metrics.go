// Package metrics exposes prometheus counters for syncs, Lichess calls and
// dashboard requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	syncs          *prometheus.CounterVec
	gamesInserted  prometheus.Counter
	gamesSkipped   prometheus.Counter
	lichessLatency *prometheus.HistogramVec
	lichessStatus  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpLatency    prometheus.Histogram
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chessinsight_syncs_total",
			Help: "Profile and games syncs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		gamesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chessinsight_games_inserted_total",
			Help: "Games copied from staging into the games table.",
		}),
		gamesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chessinsight_games_skipped_total",
			Help: "Fetched games that were already stored or could not be mapped.",
		}),
		lichessLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chessinsight_lichess_request_seconds",
			Help:    "Lichess API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		lichessStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chessinsight_lichess_responses_total",
			Help: "Lichess API responses by endpoint and status code (0 = transport error).",
		}, []string{"endpoint", "status_code"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chessinsight_http_requests_total",
			Help: "Dashboard requests by method and status code.",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chessinsight_http_request_seconds",
			Help:    "Dashboard request latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.syncs,
		c.gamesInserted,
		c.gamesSkipped,
		c.lichessLatency,
		c.lichessStatus,
		c.httpRequests,
		c.httpLatency,
	)
	return c
}

func (c *Collector) SyncFinished(kind, outcome string) {
	c.syncs.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) GamesImported(inserted, skipped int) {
	c.gamesInserted.Add(float64(inserted))
	c.gamesSkipped.Add(float64(skipped))
}

func (c *Collector) ObserveLichessRequest(endpoint string, status int, elapsed time.Duration) {
	c.lichessLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	c.lichessStatus.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func (c *Collector) ObserveHTTPRequest(method string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(elapsed.Seconds())
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
