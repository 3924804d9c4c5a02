package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/optix/internal/errors"
	"github.com/copyleftdev/optix/internal/fit"
	"github.com/copyleftdev/optix/internal/optics"
)

// Fit job states.
const (
	statusPending   = "pending"
	statusRunning   = "running"
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusCancelled = "cancelled"
)

var (
	errFitNotFound = stderrors.New("fit not found")
	errFitFinished = stderrors.New("fit already finished")
)

var fitSeq atomic.Uint64

// FitState tracks one fit job. Fields are guarded by Server.fitsMu.
type FitState struct {
	ID          string
	Status      string
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Layout      []fit.Range
	Result      *fit.Result
	Err         error
	CancelFunc  context.CancelFunc
}

func (s *FitState) finished() bool {
	switch s.Status {
	case statusCompleted, statusFailed, statusCancelled:
		return true
	}
	return false
}

type fitStarted struct {
	FitID  string `json:"fit_id"`
	Status string `json:"status"`
}

type layoutEntry struct {
	Position int      `json:"position"`
	Slot     string   `json:"slot"`
	Params   []string `json:"params"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
}

type historyEntry struct {
	Iteration  int       `json:"iteration"`
	Parameters []float64 `json:"parameters"`
	Value      *float64  `json:"value"`
	Accepted   bool      `json:"accepted"`
}

type fitStatus struct {
	FitID      string         `json:"fit_id"`
	Status     string         `json:"status"`
	StartTime  string         `json:"start_time"`
	EndTime    string         `json:"end_time,omitempty"`
	LastUpdate string         `json:"last_update"`
	Layout     []layoutEntry  `json:"layout"`
	Params     []float64      `json:"params,omitempty"`
	Distance   *float64       `json:"distance,omitempty"`
	Hops       int            `json:"hops,omitempty"`
	Chain      int            `json:"chain,omitempty"`
	Output     *beamResponse  `json:"output,omitempty"`
	History    []historyEntry `json:"history,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// startFit validates req synchronously and runs the fit in the background.
func (s *Server) startFit(req fitRequest) (*fitStarted, error) {
	in, err := req.Beam.build()
	if err != nil {
		return nil, err
	}
	opt, err := buildTemplate(req.Template)
	if err != nil {
		return nil, err
	}
	n := opt.ParameterCount()
	if n == 0 {
		return nil, errors.New(errors.KindNoFreeParameters, "template has no free parameters").
			WithComponent(component).WithOperation("startFit")
	}
	if len(req.X0) != n {
		return nil, errors.Errorf(errors.KindParameterCountMismatch,
			"x0 has %d values, template has %d free parameters", len(req.X0), n).
			WithComponent(component).WithOperation("startFit")
	}
	if req.Bounds != nil && len(req.Bounds) != n {
		return nil, errors.Errorf(errors.KindParameterCountMismatch,
			"got %d bounds for %d parameters", len(req.Bounds), n).
			WithComponent(component).WithOperation("startFit")
	}
	overrides, err := req.options(s.limits)
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("fit_%d_%d", time.Now().UnixNano(), fitSeq.Add(1))
	logger := s.logger.With(zap.String("fit_id", id))

	opts := append(s.cfg.FitOptions(), fit.WithBounds(s.cfg.DefaultBounds(n)), fit.WithLogger(logger))
	opts = append(opts, overrides...)

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	state := &FitState{
		ID:          id,
		Status:      statusPending,
		StartTime:   now,
		LastUpdated: now,
		Layout:      opt.Layout(),
		CancelFunc:  cancel,
	}

	s.fitsMu.Lock()
	s.pruneFits(now)
	s.fits[id] = state
	s.fitsMu.Unlock()

	s.wg.Add(1)
	go s.runFit(ctx, state, opt, in, req.Target, req.X0, opts, logger)

	logger.Info("Fit started", zap.Int("parameters", n))
	return &fitStarted{FitID: id, Status: statusPending}, nil
}

// runFit waits for a worker slot and runs the optimizer.
func (s *Server) runFit(ctx context.Context, state *FitState, opt *fit.Optimizer, in optics.GaussianBeam, target targetRequest, x0 []float64, opts []fit.RunOption, logger *zap.Logger) {
	defer s.wg.Done()
	defer state.CancelFunc()

	if err := s.workers.Acquire(ctx, 1); err != nil {
		s.finishFit(state, nil, err, logger)
		return
	}
	defer s.workers.Release(1)

	s.fitsMu.Lock()
	if state.Status == statusPending {
		state.Status = statusRunning
		state.LastUpdated = time.Now()
	}
	s.fitsMu.Unlock()

	activeFits.Inc()
	start := time.Now()
	res, err := opt.Fit(ctx, in, target.WaistRadius, target.WaistLocation, x0, opts...)
	fitDuration.Observe(time.Since(start).Seconds())
	activeFits.Dec()

	s.finishFit(state, res, err, logger)
}

func (s *Server) finishFit(state *FitState, res *fit.Result, err error, logger *zap.Logger) {
	s.fitsMu.Lock()
	defer s.fitsMu.Unlock()

	if res != nil {
		state.Result = res
	}
	switch {
	case state.Status == statusCancelled:
		// cancelled through the API; keep the partial result
	case err != nil && (stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)):
		state.Status = statusCancelled
	case err != nil:
		state.Status = statusFailed
		state.Err = err
		logger.Error("Fit failed", zap.Error(err))
	case res == nil:
		state.Status = statusFailed
		state.Err = errors.New(errors.KindUnknown, "optimizer returned no result")
	default:
		state.Status = statusCompleted
		fitDistance.Observe(res.Distance)
		logger.Info("Fit completed", zap.Float64("distance", res.Distance), zap.Float64s("params", res.Params))
	}

	now := time.Now()
	if state.EndTime == nil {
		state.EndTime = &now
	}
	state.LastUpdated = now
	fitsTotal.WithLabelValues(state.Status).Inc()
}

// fitStatus reports the state of a fit. History is included on request.
func (s *Server) fitStatus(id string, withHistory bool) (*fitStatus, error) {
	s.fitsMu.RLock()
	defer s.fitsMu.RUnlock()

	state, ok := s.fits[id]
	if !ok {
		return nil, errFitNotFound
	}

	resp := &fitStatus{
		FitID:      state.ID,
		Status:     state.Status,
		StartTime:  state.StartTime.Format(time.RFC3339),
		LastUpdate: state.LastUpdated.Format(time.RFC3339),
		Layout:     make([]layoutEntry, len(state.Layout)),
	}
	for i, r := range state.Layout {
		resp.Layout[i] = layoutEntry{Position: r.Position, Slot: r.Slot, Params: r.Params, Start: r.Start, End: r.End}
	}
	if state.EndTime != nil {
		resp.EndTime = state.EndTime.Format(time.RFC3339)
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}

	if res := state.Result; res != nil {
		resp.Params = res.Params
		resp.Distance = finite(res.Distance)
		resp.Hops = res.Hops
		resp.Chain = res.Chain
		if out, err := summarize(res.Output); err == nil {
			resp.Output = &out
		}
		if withHistory {
			resp.History = make([]historyEntry, 0, len(res.History))
			for _, h := range res.History {
				if h.Solution == nil {
					continue
				}
				resp.History = append(resp.History, historyEntry{
					Iteration:  h.Iteration,
					Parameters: h.Solution.Parameters,
					Value:      finite(h.Solution.Value),
					Accepted:   h.Accepted,
				})
			}
		}
	}
	return resp, nil
}

// cancelFit stops a pending or running fit.
func (s *Server) cancelFit(id string) error {
	s.fitsMu.Lock()
	defer s.fitsMu.Unlock()

	state, ok := s.fits[id]
	if !ok {
		return errFitNotFound
	}
	if state.finished() {
		return fmt.Errorf("%w: status %s", errFitFinished, state.Status)
	}

	state.CancelFunc()
	state.Status = statusCancelled
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Fit cancelled", zap.String("fit_id", id))
	return nil
}

// pruneFits forgets finished fits older than the retention window and then
// the oldest finished fits beyond the retention cap. Callers hold fitsMu.
func (s *Server) pruneFits(now time.Time) {
	var finished []*FitState
	for id, state := range s.fits {
		if !state.finished() || state.EndTime == nil {
			continue
		}
		if now.Sub(*state.EndTime) > s.limits.retention {
			delete(s.fits, id)
			continue
		}
		finished = append(finished, state)
	}

	excess := len(finished) - s.limits.maxRetained
	if excess <= 0 {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].EndTime.Before(*finished[j].EndTime)
	})
	for _, state := range finished[:excess] {
		delete(s.fits, state.ID)
	}
	s.logger.Debug("Pruned finished fits", zap.Int("count", excess))
}
