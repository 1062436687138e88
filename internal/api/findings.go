package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/abhisek/redpen/internal/ledger"
)

type textRequest struct {
	Text *string `json:"text"`
}

type stateResponse struct {
	Index     int        `json:"index"`
	Phase     string     `json:"phase"`
	StartTime *time.Time `json:"start_time,omitempty"`
	Draft     string     `json:"draft"`
}

func stateView(index int, st ledger.ItemState) stateResponse {
	return stateResponse{Index: index, Phase: st.Phase.String(), StartTime: st.StartTime, Draft: st.Draft}
}

// findingParams reads the session ID and finding index from the path.
func findingParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid finding index %q", chi.URLParam(r, "index"))
		return "", 0, false
	}
	return chi.URLParam(r, "id"), index, true
}

// decodeText reads {"text": ...}. The field is required.
func decodeText(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return "", false
	}
	if req.Text == nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
		return "", false
	}
	return *req.Text, true
}

func handleStart(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, index, ok := findingParams(w, r)
		if !ok {
			return
		}
		st, err := deps.Sessions.Start(r.Context(), id, index)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stateView(index, st))
	}
}

func handleDraft(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, index, ok := findingParams(w, r)
		if !ok {
			return
		}
		text, ok := decodeText(w, r)
		if !ok {
			return
		}
		st, err := deps.Sessions.SetDraft(r.Context(), id, index, text)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stateView(index, st))
	}
}

func handleAbandon(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, index, ok := findingParams(w, r)
		if !ok {
			return
		}
		text, ok := decodeText(w, r)
		if !ok {
			return
		}
		entry, err := deps.Sessions.Abandon(r.Context(), id, index, text)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func handleSubmit(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, index, ok := findingParams(w, r)
		if !ok {
			return
		}
		text, ok := decodeText(w, r)
		if !ok {
			return
		}
		entry, err := deps.Sessions.Submit(r.Context(), id, index, text)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}
