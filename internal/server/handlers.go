package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/caevv/testrecorder/internal/query"
	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/store"
)

const (
	version      = "v0.1.0"
	defaultLimit = 100
	maxLimit     = 1000
	statsLimit   = 1000
)

// handleHealth returns the health status of the server
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		Version: version,
		Uptime:  s.Uptime(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleListInvocations returns summaries of recent invocations.
// ?status=running|passed|failed filters them.
func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	invs, err := s.store.ListInvocations(r.Context(), s.parseLimitParam(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve invocations", err)
		return
	}

	status := r.URL.Query().Get("status")
	summaries := make([]InvocationSummary, 0, len(invs))
	for _, inv := range invs {
		summary := Summarize(inv)
		if status != "" && summary.Status != status {
			continue
		}
		summaries = append(summaries, summary)
	}

	s.writeJSON(w, http.StatusOK, summaries)
}

// handleGetInvocation returns the full record tree of an invocation
func (s *Server) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.lookupInvocation(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, inv)
}

// handleDeleteInvocation removes an invocation
func (s *Server) handleDeleteInvocation(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	id := r.PathValue("id")
	if err := s.store.DeleteInvocation(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "invocation not found", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to delete invocation", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetTests returns the flattened test cases of an invocation.
// ?status=FAIL,IGNORED keeps only those statuses.
func (s *Server) handleGetTests(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.lookupInvocation(w, r)
	if !ok {
		return
	}

	var statuses []record.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			st, err := record.ParseStatus(strings.ToUpper(strings.TrimSpace(name)))
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error(), nil)
				return
			}
			statuses = append(statuses, st)
		}
	}

	cases := query.FilterStatus(query.TestCases(inv), statuses...)
	if cases == nil {
		cases = []query.TestCase{}
	}
	s.writeJSON(w, http.StatusOK, cases)
}

// handleQuery runs the jq expression ?q= against an invocation
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("q")
	if expr == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter q is required", nil)
		return
	}

	q, err := query.Compile(expr)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	inv, ok := s.lookupInvocation(w, r)
	if !ok {
		return
	}

	results, err := q.Run(r.Context(), inv)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}

	s.writeJSON(w, http.StatusOK, QueryResponse{Query: expr, Results: results})
}

// handleGetStats returns overall statistics
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats(r)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) stats(r *http.Request) (*StatsResponse, error) {
	var summaries []InvocationSummary
	if s.store != nil {
		invs, err := s.store.ListInvocations(r.Context(), statsLimit)
		if err != nil {
			return nil, err
		}
		for _, inv := range invs {
			summaries = append(summaries, Summarize(inv))
		}
	}

	stats := computeStats(summaries)
	if s.retention != nil {
		rs := s.retention.Stats()
		stats.Retention = &rs
	}
	return stats, nil
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "store not available", nil)
		return false
	}
	return true
}

// lookupInvocation loads the invocation named by the {id} path value and
// writes the error response when that fails.
func (s *Server) lookupInvocation(w http.ResponseWriter, r *http.Request) (*record.Record, bool) {
	if !s.requireStore(w) {
		return nil, false
	}

	id := r.PathValue("id")
	inv, err := s.store.GetInvocation(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "invocation not found", nil)
			return nil, false
		}
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve invocation", err)
		return nil, false
	}
	return inv, true
}

// parseLimitParam parses the limit query parameter
func (s *Server) parseLimitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}

	if err != nil {
		s.logger.Error("API error", "status", status, "message", message, "error", err)
	}

	s.writeJSON(w, status, response)
}
