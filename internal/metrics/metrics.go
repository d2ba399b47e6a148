package metrics

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rail-connection-check/internal/ingest"
)

type Collector struct {
	reg *prometheus.Registry

	IngestPasses       *prometheus.CounterVec // result label: ok|failed
	IngestDuration     prometheus.Histogram
	IngestRows         *prometheus.CounterVec // table, op labels
	IngestSkipped      *prometheus.CounterVec // kind label: run|stop
	IngestLastSuccess  prometheus.Gauge
	IngestInterval     prometheus.Gauge // seconds
	FetchDuration      prometheus.Histogram
	FetchErrors        prometheus.Counter
	CompareRequests    *prometheus.CounterVec // result label
	HTTPDuration       *prometheus.HistogramVec
	NATSPublished      prometheus.Counter
	NATSPublishErrs    prometheus.Counter
	NATSConnected      prometheus.Gauge
	NATSPublishLatency prometheus.Histogram
}

func NewCollector(ingestInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		IngestPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "railcheck_ingest_passes_total",
			Help: "Ingestion passes by outcome.",
		}, []string{"result"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "railcheck_ingest_pass_duration_seconds",
			Help:    "Duration of successful ingestion passes.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		IngestRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "railcheck_ingest_rows_total",
			Help: "Rows written by ingestion, by table and operation.",
		}, []string{"table", "op"}),
		IngestSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "railcheck_ingest_skipped_total",
			Help: "Malformed feed records skipped during ingestion.",
		}, []string{"kind"}),
		IngestLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "railcheck_ingest_last_success_timestamp_seconds",
			Help: "Unix time of the last committed ingestion pass.",
		}),
		IngestInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "railcheck_ingest_interval_seconds",
			Help: "Configured ingestion interval in seconds.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "railcheck_feed_fetch_duration_seconds",
			Help:    "Duration of feed fetches including retries.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "railcheck_feed_fetch_errors_total",
			Help: "Feed fetches that failed after retries.",
		}),
		CompareRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "railcheck_compare_requests_total",
			Help: "Route comparisons by outcome.",
		}, []string{"result"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "railcheck_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status code.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"route", "code"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "railcheck_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "railcheck_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "railcheck_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		NATSPublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "railcheck_nats_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.IngestPasses, c.IngestDuration, c.IngestRows, c.IngestSkipped,
		c.IngestLastSuccess, c.IngestInterval,
		c.FetchDuration, c.FetchErrors,
		c.CompareRequests, c.HTTPDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.NATSPublishLatency,
	)

	c.IngestInterval.Set(ingestInterval.Seconds())

	return c
}

// ObservePass records the outcome of one ingestion pass.
func (c *Collector) ObservePass(sum ingest.Summary, err error) {
	if err != nil {
		c.IngestPasses.WithLabelValues("failed").Inc()
		return
	}
	c.IngestPasses.WithLabelValues("ok").Inc()
	c.IngestDuration.Observe(sum.Duration().Seconds())
	c.IngestLastSuccess.Set(float64(sum.FinishedAt.Unix()))

	rows := []struct {
		table, op string
		n         int
	}{
		{"route", "insert", sum.RoutesCreated},
		{"station", "insert", sum.StationsCreated},
		{"route_stop", "insert", sum.RouteStopsCreated},
		{"train", "insert", sum.TrainsInserted},
		{"train", "update", sum.TrainsUpdated},
		{"stop", "insert", sum.StopsInserted},
		{"stop", "update", sum.StopsUpdated},
	}
	for _, r := range rows {
		c.IngestRows.WithLabelValues(r.table, r.op).Add(float64(r.n))
	}
	c.IngestSkipped.WithLabelValues("run").Add(float64(sum.RunsSkipped))
	c.IngestSkipped.WithLabelValues("stop").Add(float64(sum.StopsSkipped))
}

func (c *Collector) ObserveFetch(d time.Duration, err error) {
	c.FetchDuration.Observe(d.Seconds())
	if err != nil {
		c.FetchErrors.Inc()
	}
}

func (c *Collector) ObserveCompare(result string) {
	c.CompareRequests.WithLabelValues(result).Inc()
}

func (c *Collector) ObserveRequest(route string, status int, d time.Duration) {
	c.HTTPDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
