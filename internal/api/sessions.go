package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/abhisek/redpen/internal/export"
	"github.com/abhisek/redpen/internal/ledger"
	"github.com/abhisek/redpen/internal/session"
	"github.com/abhisek/redpen/internal/store"
)

// handleCreateSession accepts a multipart upload (file, name, id), creates
// the session and analyses it. An analysis failure still returns the
// session, with the failure in analysis_error.
func handleCreateSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}

		rec, err := deps.Sessions.Create(r.Context(), session.Upload{
			Filename: header.Filename,
			Content:  content,
			Student: ledger.Student{
				Name: r.FormValue("name"),
				ID:   r.FormValue("id"),
			},
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		analyzed, _, err := deps.Sessions.Analyze(r.Context(), rec.ID)
		if analyzed.ID == "" {
			writeServiceError(w, err)
			return
		}
		view := newSessionView(analyzed)
		if err != nil {
			view.AnalysisError = err.Error()
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

func handleAnalyze(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, _, err := deps.Sessions.Analyze(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionView(rec))
	}
}

type sessionSummary struct {
	ID           string         `json:"id"`
	Student      ledger.Student `json:"student"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
	FindingCount int            `json:"finding_count"`
}

func handleListSessions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit")
				return
			}
			limit = n
		}

		list, err := deps.Sessions.List(r.Context(), store.QueryOpts{Limit: limit})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		out := make([]sessionSummary, len(list))
		for i, s := range list {
			out[i] = sessionSummary{
				ID:           s.ID,
				Student:      s.Student,
				CreatedAt:    s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
				UpdatedAt:    s.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
				FindingCount: s.FindingCount,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := deps.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionView(rec))
	}
}

func handleExportZip(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := deps.Sessions.Export(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ArchiveName(b.Student)))
		if err := export.WriteZip(w, b); err != nil {
			// Headers are gone; the client sees a truncated archive.
			writeServiceError(w, err)
		}
	}
}
