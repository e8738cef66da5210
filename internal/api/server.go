// Package api exposes the read-side HTTP query surface plus the admin
// endpoints for scoring parameters and token classifications.
package api

import (
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tipscore/internal/observability"
	"tipscore/internal/storage"
)

// StateReporter exposes the indexer lifecycle state for health checks.
type StateReporter interface {
	State() string
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	scores    storage.ScoreStore
	axes      storage.TokenAxisStore
	params    storage.ParamsStore
	snapshots storage.SnapshotArchive // optional
	indexer   StateReporter           // optional
	adminKey  string
	logger    *log.Logger
	router    chi.Router
}

// Options contains configuration for creating a Server.
type Options struct {
	Scores    storage.ScoreStore
	Axes      storage.TokenAxisStore
	Params    storage.ParamsStore
	Snapshots storage.SnapshotArchive // optional, snapshot history
	Indexer   StateReporter           // optional, reported by /health
	AdminKey  string                  // required for admin writes
	Logger    *log.Logger
}

// NewServer creates an HTTP server over the score stores.
func NewServer(opts Options) (*Server, error) {
	if opts.Scores == nil || opts.Axes == nil || opts.Params == nil {
		return nil, fmt.Errorf("score, axis and params stores are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		scores:    opts.Scores,
		axes:      opts.Axes,
		params:    opts.Params,
		snapshots: opts.Snapshots,
		indexer:   opts.Indexer,
		adminKey:  opts.AdminKey,
		logger:    logger,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metricsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	r.Get("/profile/{userId}", s.handleProfile)
	r.Get("/profile/{userId}/rank", s.handleProfileRank)
	r.Get("/rankings/all", s.handleRankingsAll)
	r.Get("/rankings/{axis}", s.handleRankings)
	r.Get("/snapshot/latest", s.handleSnapshotLatest)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/params", s.handleGetParams)
		r.With(s.requireAdmin).Post("/params", s.handleUpdateParams)
		r.With(s.requireAdmin).Post("/token-axis", s.handleUpsertTokenAxis)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errKindNotFound, "unknown route")
	})

	return r
}

// requireAdmin gates mutating endpoints behind the X-Admin-Key header.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey == "" {
			writeError(w, http.StatusUnauthorized, errKindAuth, "admin endpoints disabled")
			return
		}
		key := r.Header.Get("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.adminKey)) != 1 {
			writeError(w, http.StatusUnauthorized, errKindAuth, "invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records per-route request durations.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		observability.RecordHTTPRequest(route, r.Method, strconv.Itoa(ww.Status()), time.Since(start).Seconds())
	})
}
