package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/dispatch"
	"github.com/gkobilansky/ga4-goat/internal/judge"
	"github.com/gkobilansky/ga4-goat/internal/runner"
	"github.com/gkobilansky/ga4-goat/internal/schedule"
	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/rs/zerolog/log"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type ExperimentResponse struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	PropertyID     string           `json:"propertyId"`
	State          store.TestState  `json:"state"`
	AutoExecute    bool             `json:"autoExecute"`
	StartDate      time.Time        `json:"startDate"`
	EndDate        *time.Time       `json:"endDate"`
	LastExecutedAt *time.Time       `json:"lastExecutedAt"`
	NextExecution  *time.Time       `json:"nextExecution"`
	Schedule       *schedule.Config `json:"schedule"`
	Variants       []judge.Label    `json:"variants"`
}

type ResultResponse struct {
	ID           int64           `json:"id"`
	ExperimentID int64           `json:"experimentId"`
	ExecutionID  string          `json:"executionId"`
	Verdict      judge.Verdict   `json:"verdict"`
	Variants     []judge.Variant `json:"variants"`
	AIEvaluation *string         `json:"aiEvaluation"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type NextResponse struct {
	ID            int64                  `json:"id"`
	ExecutionType schedule.ExecutionType `json:"executionType,omitempty"`
	NextExecution *time.Time             `json:"nextExecution"`
}

type DueResponse struct {
	ID   int64     `json:"id"`
	Slot time.Time `json:"slot"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	exps, err := s.store.ListExperiments(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error", "")
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	if err := row.Scan(&dbSize); err != nil {
		log.Debug().Err(err).Msg("Failed to read database size")
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(exps),
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	exps, err := s.store.ListExperiments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list experiments", err.Error())
		return
	}

	now := s.deps.Clock.Now()
	response := make([]ExperimentResponse, 0, len(exps))
	for _, exp := range exps {
		labels := make([]judge.Label, len(exp.Variants))
		for i, v := range exp.Variants {
			labels[i] = v.Label
		}
		response = append(response, ExperimentResponse{
			ID:             exp.ID,
			Name:           exp.Name,
			PropertyID:     exp.PropertyID,
			State:          exp.State,
			AutoExecute:    exp.AutoExecute,
			StartDate:      exp.StartDate,
			EndDate:        exp.EndDate,
			LastExecutedAt: exp.LastExecutedAt,
			NextExecution:  nextExecution(exp, now),
			Schedule:       exp.Schedule,
			Variants:       labels,
		})
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleLatestResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	res, err := s.store.LatestResult(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no result yet", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load result", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toResultResponse(res))
}

func (s *Server) handleNextExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	exp, err := s.store.GetExperiment(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "experiment not found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "schedule check failed", err.Error())
		return
	}

	resp := NextResponse{ID: id, NextExecution: nextExecution(exp, s.deps.Clock.Now())}
	if exp.Schedule != nil {
		resp.ExecutionType = exp.Schedule.ExecutionType
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if s.deps.Executor == nil {
		writeError(w, http.StatusServiceUnavailable, "execution is not configured", "")
		return
	}

	res, err := s.deps.Executor.Execute(r.Context(), id, store.TriggerManual)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toResultResponse(res))
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "experiment not found", "")
	case errors.Is(err, dispatch.ErrBusy):
		writeError(w, http.StatusConflict, "execution already in progress", "")
	case errors.Is(err, runner.ErrNotStarted), errors.Is(err, runner.ErrTooFewVariants):
		writeError(w, http.StatusUnprocessableEntity, "evaluation failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "evaluation failed", err.Error())
	}
}

func (s *Server) handleDue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Due == nil {
		writeError(w, http.StatusServiceUnavailable, "schedule is not configured", "")
		return
	}

	due, err := s.deps.Due.FindDueSlots(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "schedule check failed", err.Error())
		return
	}

	response := make([]DueResponse, 0, len(due))
	for _, d := range due {
		response = append(response, DueResponse{ID: d.ID, Slot: d.Slot})
	}
	writeJSON(w, http.StatusOK, response)
}

func nextExecution(exp *store.Experiment, now time.Time) *time.Time {
	if exp.Schedule == nil {
		return nil
	}
	next, ok := schedule.Next(*exp.Schedule, exp.StartDate, exp.EndDate, exp.LastExecutedAt, now)
	if !ok {
		return nil
	}
	return &next
}

func toResultResponse(res *store.Result) ResultResponse {
	return ResultResponse{
		ID:           res.ID,
		ExperimentID: res.ExperimentID,
		ExecutionID:  res.ExecutionID,
		Verdict:      res.Verdict,
		Variants:     res.Variants,
		AIEvaluation: res.AIEvaluation,
		CreatedAt:    res.CreatedAt,
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid experiment id", "")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}
