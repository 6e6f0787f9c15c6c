package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// knownRoutes bounds the "path" label's cardinality to the fixed route set
// this service actually serves, so a scan of random paths can't blow up
// Prometheus series count.
var knownRoutes = map[string]bool{
	"/healthz":                       true,
	"/readyz":                        true,
	"/metrics":                       true,
	"/":                              true,
	"/api/v1/test":                   true,
	"/api/v1/tle/metadata":           true,
	"/api/v1/tle/fetch":              true,
	"/api/v1/passes":                 true,
	"/api/v1/cache/keyframes/latest": true,
	"/api/v1/cache/keyframes/at":     true,
	"/api/v1/cache/stats":            true,
	"/api/v1/stream/keyframes":       true,
}

// normalizeRoute collapses a request path to a metrics label: known static
// routes pass through unchanged, "/api/v1/propagate/<norad_id>" collapses
// to a single templated label regardless of which satellite was requested,
// and anything else (scans, typos, bots) collapses to "other".
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/propagate/"); ok && rest != "" {
		if isDigits(rest) {
			return "/api/v1/propagate/{norad_id}"
		}
		return path
	}
	return "other"
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stargo_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stargo_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	tleDatasetCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stargo_tle_dataset_satellites",
		Help: "Number of satellites in the currently loaded TLE dataset.",
	})

	tleDatasetAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stargo_tle_dataset_age_seconds",
		Help: "Age of the currently loaded TLE dataset in seconds.",
	})

	propagationWorkersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stargo_propagation_workers_active",
		Help: "Configured size of the propagation worker pool.",
	})

	propagationBatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stargo_propagation_batch_duration_seconds",
		Help:    "Time to propagate a full TLE dataset to one instant.",
		Buckets: prometheus.DefBuckets,
	})

	propagationBatchSuccesses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stargo_propagation_batch_successes_total",
		Help: "Total number of satellites successfully propagated across all batches.",
	})

	propagationBatchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stargo_propagation_batch_errors_total",
		Help: "Total number of satellites that failed propagation across all batches.",
	})

	cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stargo_cache_entries",
		Help: "Number of keyframes currently held in the rolling cache window.",
	})

	cacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stargo_cache_size_bytes",
		Help: "Estimated in-memory size of the keyframe cache.",
	})

	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stargo_cache_hits_total",
		Help: "Total number of keyframe cache reads served from an existing entry.",
	})

	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stargo_cache_misses_total",
		Help: "Total number of keyframe cache reads that found no entry.",
	})

	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stargo_cache_evictions_total",
		Help: "Total number of keyframes evicted for falling outside the rolling window.",
	})

	cacheRegenerationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stargo_cache_regeneration_errors_total",
		Help: "Total number of failures generating or regenerating a keyframe.",
	})

	cacheRegenerationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stargo_cache_regeneration_duration_seconds",
		Help:    "Time to generate one keyframe or perform a full cutover regeneration.",
		Buckets: prometheus.DefBuckets,
	})

	cacheGracePeriodActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stargo_cache_grace_period_active",
		Help: "1 while a TLE cutover regeneration is in its grace period, 0 otherwise.",
	})

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stargo_stream_connections_active",
		Help: "Number of currently open SSE keyframe stream connections.",
	})

	streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stargo_stream_connections_total",
			Help: "Total number of SSE stream connect/disconnect events.",
		},
		[]string{"event"},
	)

	streamMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stargo_stream_messages_total",
		Help: "Total number of messages sent to SSE stream clients.",
	})

	streamBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stargo_stream_bytes_total",
		Help: "Total number of bytes written to SSE stream clients.",
	})

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stargo_stream_errors_total",
			Help: "Total number of SSE stream errors by reason.",
		},
		[]string{"reason"},
	)

	discoverySourcesFound = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stargo_discovery_sources_found",
		Help: "Number of supplemental TLE source URLs found by the last discovery crawl.",
	})

	catalogEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stargo_catalog_entries",
		Help: "Number of distinct satellites recorded in the durable catalog.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		tleDatasetCount,
		tleDatasetAgeSeconds,
		propagationWorkersActive,
		propagationBatchDuration,
		propagationBatchSuccesses,
		propagationBatchErrors,
		cacheEntries,
		cacheSizeBytes,
		cacheHits,
		cacheMisses,
		cacheEvictions,
		cacheRegenerationErrors,
		cacheRegenerationDuration,
		cacheGracePeriodActive,
		streamsActive,
		streamConnections,
		streamMessages,
		streamBytes,
		streamErrors,
		discoverySourcesFound,
		catalogEntries,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}

// SetTLEDatasetCount records the number of satellites in the loaded dataset.
func SetTLEDatasetCount(n int) { tleDatasetCount.Set(float64(n)) }

// SetTLEDatasetAge records how old the loaded TLE dataset is, in seconds.
func SetTLEDatasetAge(seconds float64) { tleDatasetAgeSeconds.Set(seconds) }

// SetPropagationWorkersActive records the configured worker pool size.
func SetPropagationWorkersActive(n int) { propagationWorkersActive.Set(float64(n)) }

// RecordPropagation records one batch propagation's duration and outcome counts.
func RecordPropagation(duration time.Duration, successCount, errorCount int) {
	propagationBatchDuration.Observe(duration.Seconds())
	propagationBatchSuccesses.Add(float64(successCount))
	propagationBatchErrors.Add(float64(errorCount))
}

// SetCacheEntries records the current keyframe cache entry count.
func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }

// SetCacheSizeBytes records the estimated keyframe cache size in bytes.
func SetCacheSizeBytes(n int64) { cacheSizeBytes.Set(float64(n)) }

// IncCacheHits records a keyframe cache read that found an entry.
func IncCacheHits() { cacheHits.Inc() }

// IncCacheMisses records a keyframe cache read that found no entry.
func IncCacheMisses() { cacheMisses.Inc() }

// AddCacheEvictions records n keyframes evicted from the cache.
func AddCacheEvictions(n int) { cacheEvictions.Add(float64(n)) }

// IncCacheRegenerationErrors records a failed keyframe generation.
func IncCacheRegenerationErrors() { cacheRegenerationErrors.Inc() }

// ObserveCacheRegenerationDuration records how long a generation or cutover took.
func ObserveCacheRegenerationDuration(d time.Duration) { cacheRegenerationDuration.Observe(d.Seconds()) }

// SetCacheGracePeriodActive records whether a TLE cutover grace period is in progress.
func SetCacheGracePeriodActive(active bool) {
	if active {
		cacheGracePeriodActive.Set(1)
		return
	}
	cacheGracePeriodActive.Set(0)
}

// IncStreamsActive records a new open SSE connection.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive records a closed SSE connection.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamConnections records a connect or disconnect lifecycle event.
func IncStreamConnections(event string) { streamConnections.WithLabelValues(event).Inc() }

// IncStreamMessages records one message sent to an SSE client.
func IncStreamMessages() { streamMessages.Inc() }

// AddStreamBytes records n bytes written to SSE clients.
func AddStreamBytes(n int64) { streamBytes.Add(float64(n)) }

// IncStreamErrors records an SSE stream error by reason.
func IncStreamErrors(reason string) { streamErrors.WithLabelValues(reason).Inc() }

// SetDiscoverySourcesFound records how many supplemental source URLs the
// last discovery crawl found.
func SetDiscoverySourcesFound(n int) { discoverySourcesFound.Set(float64(n)) }

// SetCatalogEntries records the current number of distinct satellites in
// the durable catalog.
func SetCatalogEntries(n int) { catalogEntries.Set(float64(n)) }
