// Package server exposes a loaded cluster hierarchy over HTTP.
//
//	GET /clusters?bbox=minX,minY,maxX,maxY&zoom=z
//	GET /clusters/{id}/children
//	GET /clusters/{id}/leaves?limit=&offset=
//	GET /clusters/{id}/expansion-zoom
//	GET /healthz
//	GET /metrics
//
// Features are returned as GeoJSON FeatureCollections.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	cluster "github.com/Martini024/point-cluster"
	"github.com/Martini024/point-cluster/geojson"
	"github.com/Martini024/point-cluster/internal/dataset"
	"github.com/Martini024/point-cluster/internal/logger"
	"github.com/Martini024/point-cluster/internal/metrics"
)

const requestIDHeader = "X-Request-Id"

// Options configure a Server. The zero value serves without cache and rate limit.
type Options struct {
	Cache        Cache   // nil disables the response cache
	RateLimitQPS float64 // 0 disables rate limiting
	Logger       *slog.Logger
}

// Server answers cluster queries for one Dataset.
type Server struct {
	ds      *dataset.Dataset
	cache   Cache
	limiter *rate.Limiter
	log     *slog.Logger
	handler http.Handler
}

// New creates a Server for ds.
func New(ds *dataset.Dataset, opts Options) *Server {
	s := &Server{ds: ds, cache: opts.Cache, log: opts.Logger}
	if s.log == nil {
		s.log = logger.L()
	}
	if opts.RateLimitQPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitQPS), max(1, int(math.Ceil(opts.RateLimitQPS))))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /clusters", s.api("clusters", s.handleClusters))
	mux.Handle("GET /clusters/{id}/children", s.api("children", s.handleChildren))
	mux.Handle("GET /clusters/{id}/leaves", s.api("leaves", s.handleLeaves))
	mux.Handle("GET /clusters/{id}/expansion-zoom", s.api("expansion_zoom", s.handleExpansionZoom))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	s.handler = requestID(accessLog(s.log, mux))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// api wraps a query handler with rate limiting and request metrics.
func (s *Server) api(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		defer func() {
			metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
			metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(start).Microseconds()) / 1000)
		}()

		if s.limiter != nil && !s.limiter.Allow() {
			metrics.RateLimitedTotal.Inc()
			writeError(sw, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		h(sw, r)
	})
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bbox, err := geojson.ParseBBox(q.Get("bbox"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	zoom, err := strconv.ParseFloat(q.Get("zoom"), 64)
	if err != nil || math.IsNaN(zoom) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("zoom: %q is not a number", q.Get("zoom")))
		return
	}

	key := fmt.Sprintf("%s:clusters:%g,%g,%g,%g:%d", s.ds.ID, bbox.MinX, bbox.MinY, bbox.MaxX, bbox.MaxY, int(math.Floor(max(min(zoom, 64), -1))))
	if s.cache != nil {
		b, ok, err := s.cache.Get(r.Context(), key)
		if err != nil {
			s.log.WarnContext(r.Context(), "cache_get_error", "err", err)
		}
		if ok {
			metrics.CacheHitsTotal.Inc()
			w.Header().Set("X-Cache", "HIT")
			writeRaw(w, http.StatusOK, b)
			return
		}
		metrics.CacheMissesTotal.Inc()
	}

	features, err := s.ds.Index.GetClusters(bbox, zoom)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	metrics.FeaturesReturned.Observe(float64(len(features)))

	b, err := json.Marshal(geojson.FromFeatures(features, nil, nil))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s.cache != nil {
		if err := s.cache.Set(r.Context(), key, b); err != nil {
			s.log.WarnContext(r.Context(), "cache_set_error", "err", err)
		}
		w.Header().Set("X-Cache", "MISS")
	}
	writeRaw(w, http.StatusOK, b)
}

func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	id, err := clusterID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	children, err := s.ds.Index.GetChildren(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, geojson.FromFeatures(children, nil, nil))
}

func (s *Server) handleLeaves(w http.ResponseWriter, r *http.Request) {
	id, err := clusterID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), cluster.DefaultLeavesLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("limit: %w", err))
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("offset: %q is not a non-negative integer", q.Get("offset")))
		return
	}

	leaves, err := s.ds.Index.GetLeaves(id, limit, offset)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, geojson.FromPoints(leaves, nil))
}

func (s *Server) handleExpansionZoom(w http.ResponseWriter, r *http.Request) {
	id, err := clusterID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	zoom, err := s.ds.Index.GetClusterExpansionZoom(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cluster_id": id, "zoom": zoom})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	minZoom, maxZoom := s.ds.Index.Zooms()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"dataset":  s.ds.ID,
		"points":   s.ds.Index.Len(),
		"min_zoom": minZoom,
		"max_zoom": maxZoom,
	})
}

func clusterID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return 0, fmt.Errorf("cluster id: %q is not an integer", r.PathValue("id"))
	}
	return id, nil
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cluster.ErrUnknownCluster):
		return http.StatusNotFound
	case errors.Is(err, cluster.ErrInvalidZoom):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeRaw(w, status, b)
}

func writeRaw(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, status int, err error) {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	writeRaw(w, status, b)
}

// requestID tags every response with X-Request-Id, reusing the one sent by the client.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// accessLog logs every request at debug level.
func accessLog(l *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		l.DebugContext(r.Context(), "http_access",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", w.Header().Get(requestIDHeader),
			"ip", r.RemoteAddr,
		)
	})
}

// statusRecorder captures the status code and the number of bytes written.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
