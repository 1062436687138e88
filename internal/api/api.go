// Package api exposes the revision workflow over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/abhisek/redpen/internal/extract"
	"github.com/abhisek/redpen/internal/ledger"
	"github.com/abhisek/redpen/internal/llm"
	"github.com/abhisek/redpen/internal/revision"
	"github.com/abhisek/redpen/internal/session"
	"github.com/abhisek/redpen/internal/store"
)

const (
	maxUploadSize      = 20 << 20 // 20MB
	maxRequestBodySize = 1 << 20  // 1MB
)

// AppDeps are the handler's collaborators.
type AppDeps struct {
	Sessions *session.Service
}

// NewAppHandler returns the HTTP API.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", handleCreateSession(deps))
		r.Get("/", handleListSessions(deps))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleGetSession(deps))
			r.Post("/analyze", handleAnalyze(deps))
			r.Get("/export.zip", handleExportZip(deps))

			r.Route("/findings/{index}", func(r chi.Router) {
				r.Post("/start", handleStart(deps))
				r.Post("/draft", handleDraft(deps))
				r.Post("/abandon", handleAbandon(deps))
				r.Post("/submit", handleSubmit(deps))
			})
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

// writeServiceError maps workflow errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var ee *extract.Error
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ledger.ErrNoFinding):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, revision.ErrNotEditing):
		httpError(w, http.StatusConflict, "invalid_state_error", "%v", err)
	case errors.As(err, &ee):
		httpError(w, http.StatusUnprocessableEntity, "extraction_error", "%v", err)
	case llm.IsGatewayError(err):
		httpError(w, http.StatusBadGateway, "gateway_error", "%v", err)
	default:
		slog.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

// FindingView is a finding with its revision state.
type FindingView struct {
	Index int `json:"index"`
	ledger.Finding
	Phase     string     `json:"phase"`
	StartTime *time.Time `json:"start_time,omitempty"`
	Draft     string     `json:"draft"`
	Attempts  int        `json:"attempts"`
}

// SessionView is the JSON form of a session.
type SessionView struct {
	ID            string                `json:"id"`
	Student       ledger.Student        `json:"student"`
	CreatedAt     time.Time             `json:"created_at"`
	OriginalText  string                `json:"original_text"`
	StepOutput    string                `json:"step_output"`
	ErrorOutput   string                `json:"error_output"`
	Findings      []FindingView         `json:"findings"`
	Logs          []ledger.EditLogEntry `json:"logs"`
	AnalysisError string                `json:"analysis_error,omitempty"`
}

func newSessionView(rec ledger.Record) SessionView {
	attempts := make(map[int]int)
	for _, e := range rec.Logs {
		attempts[e.ErrorIndex]++
	}
	findings := make([]FindingView, len(rec.Findings))
	for i, f := range rec.Findings {
		st := rec.States[i]
		findings[i] = FindingView{
			Index:     i,
			Finding:   f,
			Phase:     st.Phase.String(),
			StartTime: st.StartTime,
			Draft:     st.Draft,
			Attempts:  attempts[i],
		}
	}
	logs := rec.Logs
	if logs == nil {
		logs = []ledger.EditLogEntry{}
	}
	return SessionView{
		ID:           rec.ID,
		Student:      rec.Student,
		CreatedAt:    rec.CreatedAt,
		OriginalText: rec.OriginalText,
		StepOutput:   rec.StepOutput,
		ErrorOutput:  rec.ErrorOutput,
		Findings:     findings,
		Logs:         logs,
	}
}
