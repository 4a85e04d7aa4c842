// Package api serves the system store and route planner over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"

	"galos/internal/config"
	"galos/internal/galaxy"
	"galos/internal/graph"
	"galos/internal/logger"
)

const (
	maxSearchLimit = 100
	maxJumpRange   = 500.0
	maxNearRadius  = 200.0
)

// Store is the part of the system store the API reads.
type Store interface {
	graph.Locator
	System(ctx context.Context, address uint64) (galaxy.System, error)
	Lookup(ctx context.Context, ref string) (galaxy.System, error)
	SearchSystems(ctx context.Context, prefix string, limit int) ([]galaxy.System, error)
	CountSystems(ctx context.Context) (int64, error)
	RecentJumps(ctx context.Context, limit int) ([]galaxy.Jump, error)
}

// Server is the HTTP API server.
type Server struct {
	cfg     *config.Config
	store   Store
	version string
	started time.Time

	// routes collapses identical route requests that arrive while one is running.
	routes singleflight.Group
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, store Store, version string) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		version: version,
		started: time.Now(),
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.cfg != nil && s.cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
		}
		r.Get("/status", s.handleStatus)
		r.Get("/systems", s.handleSystems)
		r.Get("/systems/{address}", s.handleSystem)
		r.Get("/systems/{address}/near", s.handleNear)
		r.Get("/route", s.handleRoute)
		r.Get("/jumps", s.handleJumps)
	})
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeStoreError maps store errors to status codes. Storage faults are
// logged and reported without detail.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, galaxy.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, galaxy.ErrAmbiguous):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		logger.Error("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
		writeError(w, http.StatusInternalServerError, "storage error")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountSystems(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"version": s.version,
		"systems": n,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

// handleSystems answers ?name= with the exact match and ?q= with a prefix search.
func (s *Server) handleSystems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if name := strings.TrimSpace(q.Get("name")); name != "" {
		sys, err := s.store.Lookup(r.Context(), name)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, sys)
		return
	}

	prefix := strings.TrimSpace(q.Get("q"))
	if prefix == "" {
		writeError(w, http.StatusBadRequest, "name or q is required")
		return
	}
	limit := 20
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxSearchLimit)
	}
	found, err := s.store.SearchSystems(r.Context(), prefix, limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if found == nil {
		found = []galaxy.System{}
	}
	writeJSON(w, found)
}

func (s *Server) pathSystem(w http.ResponseWriter, r *http.Request) (galaxy.System, bool) {
	address, err := strconv.ParseUint(chi.URLParam(r, "address"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return galaxy.System{}, false
	}
	sys, err := s.store.System(r.Context(), address)
	if err != nil {
		writeStoreError(w, r, err)
		return galaxy.System{}, false
	}
	return sys, true
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	if sys, ok := s.pathSystem(w, r); ok {
		writeJSON(w, sys)
	}
}

type nearby struct {
	galaxy.System
	Distance float64 `json:"distance"`
}

func (s *Server) handleNear(w http.ResponseWriter, r *http.Request) {
	radius, ok := parsePositive(w, r.URL.Query().Get("radius"), "radius", maxNearRadius)
	if !ok {
		return
	}
	center, ok := s.pathSystem(w, r)
	if !ok {
		return
	}
	found, err := s.store.SystemsWithin(r.Context(), center.Position, radius)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	out := make([]nearby, 0, len(found))
	for _, sys := range found {
		if sys.Address == center.Address {
			continue
		}
		out = append(out, nearby{System: sys, Distance: center.Distance(sys)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Address < out[j].Address
	})
	writeJSON(w, out)
}

type routeResponse struct {
	Found    bool          `json:"found"`
	From     galaxy.System `json:"from"`
	To       galaxy.System `json:"to"`
	Range    float64       `json:"range"`
	Jumps    int           `json:"jumps"`
	Cost     float64       `json:"cost"`
	Expanded int           `json:"expanded"`
	Hops     []graph.Hop   `json:"hops"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	jumpRange, ok := parsePositive(w, q.Get("range"), "range", maxJumpRange)
	if !ok {
		return
	}

	key := fmt.Sprintf("%s\x00%s\x00%g", galaxy.NormalizeName(from), galaxy.NormalizeName(to), jumpRange)
	v, err, _ := s.routes.Do(key, func() (interface{}, error) {
		return s.planRoute(r.Context(), from, to, jumpRange)
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, v)
}

func (s *Server) planRoute(ctx context.Context, from, to string, jumpRange float64) (*routeResponse, error) {
	start, err := s.store.Lookup(ctx, from)
	if err != nil {
		return nil, err
	}
	end, err := s.store.Lookup(ctx, to)
	if err != nil {
		return nil, err
	}

	var opts []graph.PlannerOption
	if s.cfg != nil {
		opts = append(opts, graph.WithMaxExpanded(s.cfg.MaxExpanded))
	}
	planner := graph.NewPlanner(graph.NewRangeExpander(s.store, jumpRange), opts...)
	route, err := planner.Route(ctx, start, end)
	if err != nil {
		return nil, err
	}

	resp := &routeResponse{From: start, To: end, Range: jumpRange, Hops: []graph.Hop{}}
	if route != nil {
		resp.Found = true
		resp.Jumps = route.Jumps()
		resp.Cost = route.Cost
		resp.Expanded = route.Expanded
		if hops := route.Hops(); hops != nil {
			resp.Hops = hops
		}
	}
	return resp, nil
}

func (s *Server) handleJumps(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 1000)
	}
	jumps, err := s.store.RecentJumps(r.Context(), limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if jumps == nil {
		jumps = []galaxy.Jump{}
	}
	writeJSON(w, jumps)
}

func parsePositive(w http.ResponseWriter, raw, name string, upper float64) (float64, bool) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	if v > upper {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be at most %g", name, upper))
		return 0, false
	}
	return v, true
}
