// Package server exposes beam propagation and asynchronous fit jobs over
// HTTP and JSON-RPC 2.0.
package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/copyleftdev/optix/internal/config"
	"github.com/copyleftdev/optix/internal/errors"
	"github.com/copyleftdev/optix/internal/logging"
)

const component = "server"

// Fallbacks for limits left unset in the configuration.
const (
	defaultMaxBodyBytes = 1 << 20
	defaultMaxHops      = 10000
	defaultMaxChains    = 16
	defaultMaxSamples   = 1000
	defaultRetention    = time.Hour
	defaultMaxRetained  = 1000
)

// limits bounds what a single request may ask for.
type limits struct {
	maxBodyBytes int64
	maxHops      int
	maxChains    int
	maxSamples   int
	retention    time.Duration
	maxRetained  int
}

func newLimits(cfg *config.Config) limits {
	or := func(v, fallback int) int {
		if v > 0 {
			return v
		}
		return fallback
	}
	l := limits{
		maxBodyBytes: cfg.HTTP.MaxBodyBytes,
		maxHops:      or(cfg.Fit.MaxHops, defaultMaxHops),
		maxChains:    or(cfg.Fit.MaxChains, defaultMaxChains),
		maxSamples:   or(cfg.Trace.MaxSamples, defaultMaxSamples),
		retention:    cfg.Fit.Retention,
		maxRetained:  or(cfg.Fit.MaxRetained, defaultMaxRetained),
	}
	if l.maxBodyBytes <= 0 {
		l.maxBodyBytes = defaultMaxBodyBytes
	}
	if l.retention <= 0 {
		l.retention = defaultRetention
	}
	return l
}

// Server implements the HTTP and JSON-RPC server for the optics service.
// It propagates beams synchronously and manages fit jobs, which run in the
// background and are polled by ID.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	limits limits

	// workers caps the number of fits running at once.
	workers *semaphore.Weighted
	wg      sync.WaitGroup

	fits   map[string]*FitState
	fitsMu sync.RWMutex
}

// NewServer creates a new server instance with the given config and logger.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Fit.WorkerCount
	if workers < 1 {
		workers = 1
	}
	return &Server{
		cfg:     cfg,
		logger:  logger.Named(component),
		limits:  newLimits(cfg),
		workers: semaphore.NewWeighted(int64(workers)),
		fits:    make(map[string]*FitState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/propagate", s.handlePropagate)
		r.Post("/fit", s.handleFit)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/fit/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Close cancels all fits and waits for their goroutines to return.
func (s *Server) Close() error {
	s.fitsMu.Lock()
	for _, f := range s.fits {
		if f.CancelFunc != nil {
			f.CancelFunc()
		}
	}
	s.fitsMu.Unlock()

	s.wg.Wait()
	return nil
}

// handlePropagate handles POST /api/v1/propagate.
func (s *Server) handlePropagate(w http.ResponseWriter, r *http.Request) {
	var req propagateRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, bodyStatusCode(err), "Invalid request body: "+err.Error())
		return
	}

	res, err := s.propagate(req)
	if err != nil {
		s.writeError(w, r, errors.StatusCode(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleFit handles POST /api/v1/fit.
func (s *Server) handleFit(w http.ResponseWriter, r *http.Request) {
	var req fitRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, bodyStatusCode(err), "Invalid request body: "+err.Error())
		return
	}

	started, err := s.startFit(req)
	if err != nil {
		s.writeError(w, r, errors.StatusCode(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, started)
}

// handleStatus handles GET /api/v1/status/{id}. Pass ?history=true to
// include the per-hop history.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.fitStatus(id, r.URL.Query().Get("history") == "true")
	if err != nil {
		s.writeError(w, r, jobStatusCode(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

// handleCancel handles DELETE /api/v1/fit/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cancelFit(id); err != nil {
		s.writeError(w, r, jobStatusCode(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"fit_id": id,
		"status": statusCancelled,
	})
}

// decodeBody decodes a JSON body of at most maxBodyBytes into v.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, s.limits.maxBodyBytes)).Decode(v)
}

func bodyStatusCode(err error) int {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func jobStatusCode(err error) int {
	switch {
	case stderrors.Is(err, errFitNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, errFitFinished):
		return http.StatusConflict
	default:
		return errors.StatusCode(err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	logging.FromContext(r.Context()).Debug("Request rejected", zap.Int("status", status), zap.String("error", msg))
	s.writeJSON(w, status, map[string]string{"error": msg})
}
