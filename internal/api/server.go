package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/stargo/internal/auth"
	"github.com/star/stargo/internal/cache"
	"github.com/star/stargo/internal/catalog"
	"github.com/star/stargo/internal/config"
	"github.com/star/stargo/internal/health"
	"github.com/star/stargo/internal/metrics"
	"github.com/star/stargo/internal/passes"
	"github.com/star/stargo/internal/propagation"
	"github.com/star/stargo/internal/stream"
	"github.com/star/stargo/internal/tle"
	"github.com/star/stargo/internal/transform"
)

// Deps bundles everything the HTTP layer reads from or acts on. It owns no
// lifecycle of its own: main wires it up and shuts it down.
type Deps struct {
	Store    *tle.Store
	TLECfg   config.TLEConfig
	Fetcher  *tle.Fetcher
	TLECache *tle.Cache
	Catalog  *catalog.Store // nil when the catalog is disabled
	Prop     *propagation.Propagator
	KFCache  *cache.KeyframeCache
	Stream   *stream.Handler
	Web      fs.FS
	Logger   *slog.Logger
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/test", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	mux.HandleFunc("GET /api/v1/tle/metadata", deps.handleTLEMetadata)
	mux.HandleFunc("POST /api/v1/tle/fetch", deps.handleTLEFetch)
	mux.HandleFunc("GET /api/v1/propagate/{norad_id}", propagateSingleHandler(logger, deps.Store))
	mux.HandleFunc("GET /api/v1/passes", deps.handlePasses)
	mux.HandleFunc("GET /api/v1/cache/keyframes/latest", deps.handleKeyframeLatest)
	mux.HandleFunc("GET /api/v1/cache/keyframes/at", deps.handleKeyframeAt)
	mux.HandleFunc("GET /api/v1/cache/stats", deps.handleCacheStats)
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/keyframes", deps.Stream.HandleKeyframes)
	}
	if deps.Web != nil {
		mux.Handle("GET /", http.FileServer(http.FS(deps.Web)))
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// propagationStatus maps a propagation.Error's kind to an HTTP status:
// caller-supplied bad input is a 422, physical/numerical breakdown of the
// model is a 502 (upstream computation failed, not the request itself).
func propagationStatus(err error) int {
	var perr *propagation.Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case propagation.OutOfRange, propagation.EccentricityOutOfRange:
			return http.StatusUnprocessableEntity
		case propagation.Decayed:
			return http.StatusUnprocessableEntity
		default:
			return http.StatusBadGateway
		}
	}
	return http.StatusBadGateway
}

type tleMetadataResponse struct {
	Source         string    `json:"source"`
	FetchedAt      time.Time `json:"fetched_at"`
	AgeSeconds     float64   `json:"age_seconds"`
	SatelliteCount int       `json:"satellite_count"`
	EpochMin       time.Time `json:"epoch_min"`
	EpochMax       time.Time `json:"epoch_max"`
}

func (d Deps) handleTLEMetadata(w http.ResponseWriter, r *http.Request) {
	ds := d.Store.Get()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, "no TLE dataset loaded")
		return
	}
	writeJSON(w, http.StatusOK, tleMetadataResponse{
		Source:         ds.Source,
		FetchedAt:      ds.FetchedAt,
		AgeSeconds:     d.Store.AgeSeconds(),
		SatelliteCount: len(ds.Satellites),
		EpochMin:       ds.EpochRange.Min,
		EpochMax:       ds.EpochRange.Max,
	})
}

// handleTLEFetch triggers an immediate refetch of the primary and extra TLE
// sources, reparses them, publishes the new dataset, snapshots it to disk,
// and updates the durable catalog. Serialized by tle.Store's fetch mutex so
// concurrent triggers don't race each other.
func (d Deps) handleTLEFetch(w http.ResponseWriter, r *http.Request) {
	if d.Fetcher == nil {
		writeError(w, http.StatusServiceUnavailable, "TLE fetching is disabled")
		return
	}

	d.Store.Lock()
	defer d.Store.Unlock()

	body, err := d.Fetcher.Fetch(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "fetching TLE data: "+err.Error())
		return
	}

	entries, err := tle.Parse(bytes.NewReader(body), d.Logger)
	if err != nil {
		writeError(w, http.StatusBadGateway, "parsing TLE data: "+err.Error())
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusBadGateway, "fetched TLE data contained no entries")
		return
	}

	now := time.Now()
	minEpoch, maxEpoch := entries[0].Epoch, entries[0].Epoch
	for _, e := range entries[1:] {
		if e.Epoch.Before(minEpoch) {
			minEpoch = e.Epoch
		}
		if e.Epoch.After(maxEpoch) {
			maxEpoch = e.Epoch
		}
	}

	d.Store.Set(&tle.TLEDataset{
		Source:     d.Fetcher.SourceURL(),
		FetchedAt:  now,
		EpochRange: tle.EpochRange{Min: minEpoch, Max: maxEpoch},
		Satellites: entries,
	})
	metrics.SetTLEDatasetCount(len(entries))

	if d.TLECache != nil {
		if err := d.TLECache.Write(body, now); err != nil {
			d.Logger.Warn("failed to snapshot fetched TLE data", "error", err)
		}
	}
	if d.Catalog != nil {
		if err := d.Catalog.Upsert(entries, now); err != nil {
			d.Logger.Warn("failed to update catalog", "error", err)
		} else if n, err := d.Catalog.Count(); err == nil {
			metrics.SetCatalogEntries(n)
		}
	}

	writeJSON(w, http.StatusOK, tleMetadataResponse{
		Source:         d.Fetcher.SourceURL(),
		FetchedAt:      now,
		SatelliteCount: len(entries),
		EpochMin:       minEpoch,
		EpochMax:       maxEpoch,
	})
}

// maxPropagatePositions bounds how many points a single ad-hoc propagate
// request can compute, so a client can't ask for a horizon/step combination
// that burns unbounded CPU on one HTTP request.
const maxPropagatePositions = 10000

type propagatedPoint struct {
	Time            time.Time  `json:"time"`
	PositionECEFM   [3]float64 `json:"position_ecef_m"`
	VelocityECEFMps [3]float64 `json:"velocity_ecef_mps"`
}

// propagateSingleHandler propagates one satellite directly, bypassing the
// keyframe cache, over [now, now+horizon] at the given step -- for ad-hoc
// queries the cache's fixed window doesn't cover.
func propagateSingleHandler(logger *slog.Logger, store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noradID, err := strconv.Atoi(r.PathValue("norad_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "norad_id must be an integer")
			return
		}

		horizonSeconds := 3600.0
		if h := r.URL.Query().Get("horizon"); h != "" {
			parsed, err := strconv.ParseFloat(h, 64)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "horizon must be a positive number of seconds")
				return
			}
			horizonSeconds = parsed
		}
		stepSeconds := 60.0
		if s := r.URL.Query().Get("step"); s != "" {
			parsed, err := strconv.ParseFloat(s, 64)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "step must be a positive number of seconds")
				return
			}
			stepSeconds = parsed
		}

		numPositions := int(horizonSeconds/stepSeconds) + 1
		if numPositions > maxPropagatePositions {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":         "horizon/step would compute too many positions for one request",
				"max_positions": maxPropagatePositions,
				"requested":     numPositions,
			})
			return
		}

		ds := store.Get()
		if ds == nil {
			writeError(w, http.StatusServiceUnavailable, "no TLE dataset loaded")
			return
		}
		var entry *tle.TLEEntry
		for i := range ds.Satellites {
			if ds.Satellites[i].NORADID == noradID {
				entry = &ds.Satellites[i]
				break
			}
		}
		if entry == nil {
			writeError(w, http.StatusNotFound, "unknown NORAD ID")
			return
		}

		prop, err := propagation.NewSGP4Propagator(entry.Line1, entry.Line2, entry.NORADID)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		start := time.Now()
		step := time.Duration(stepSeconds * float64(time.Second))
		points := make([]propagatedPoint, 0, numPositions)
		for i := 0; i < numPositions; i++ {
			t := start.Add(time.Duration(i) * step)
			teme, err := prop.Propagate(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
			if err != nil {
				if i == 0 {
					writeError(w, propagationStatus(err), err.Error())
					return
				}
				logger.Warn("propagate request stopped early", "norad_id", noradID, "error", err)
				break
			}
			ecef := transform.TEMEToECEF(teme, t)
			points = append(points, propagatedPoint{
				Time:            t,
				PositionECEFM:   [3]float64{ecef.X, ecef.Y, ecef.Z},
				VelocityECEFMps: [3]float64{ecef.VX, ecef.VY, ecef.VZ},
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"norad_id": noradID,
			"points":   points,
		})
	}
}

func (d Deps) handlePasses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	noradID, err := strconv.Atoi(q.Get("norad_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "norad_id must be an integer")
		return
	}
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required floats")
		return
	}
	alt, _ := strconv.ParseFloat(q.Get("alt"), 64)

	horizonHours := 24.0
	if h := q.Get("horizon_hours"); h != "" {
		if parsed, err := strconv.ParseFloat(h, 64); err == nil {
			horizonHours = parsed
		}
	}
	minElev := 10.0
	if m := q.Get("min_elevation"); m != "" {
		if parsed, err := strconv.ParseFloat(m, 64); err == nil {
			minElev = parsed
		}
	}

	ds := d.Store.Get()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, "no TLE dataset loaded")
		return
	}
	var entries []tle.TLEEntry
	for _, e := range ds.Satellites {
		if e.NORADID == noradID {
			entries = append(entries, e)
			break
		}
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "unknown NORAD ID")
		return
	}

	req := passes.Request{
		Observer:     transform.NewObserverPosition(lat, lon, alt),
		Entries:      entries,
		Start:        time.Now(),
		HorizonHours: horizonHours,
		MinElevation: minElev,
		MaxPasses:    10,
	}
	result := passes.Predict(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}

func (d Deps) handleKeyframeLatest(w http.ResponseWriter, r *http.Request) {
	kf := d.KFCache.GetLatest()
	if kf == nil {
		writeError(w, http.StatusNotFound, "no keyframes cached yet")
		return
	}
	writeJSON(w, http.StatusOK, kf)
}

func (d Deps) handleKeyframeAt(w http.ResponseWriter, r *http.Request) {
	tStr := r.URL.Query().Get("t")
	if tStr == "" {
		writeError(w, http.StatusBadRequest, "t is required (RFC3339)")
		return
	}
	t, err := time.Parse(time.RFC3339, tStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "t must be RFC3339")
		return
	}
	kf := d.KFCache.Get(t)
	if kf == nil {
		writeError(w, http.StatusNotFound, "no keyframe cached at that time")
		return
	}
	writeJSON(w, http.StatusOK, kf)
}

func (d Deps) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.KFCache.Stats())
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
