package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abhisek/redpen/internal/analysis"
	"github.com/abhisek/redpen/internal/llm"
	"github.com/abhisek/redpen/internal/session"
	"github.com/abhisek/redpen/internal/store"
)

const essay = "This is a test this is bad."

const findingsJSON = `[{"name":"run-on sentence","status":"yes","location":"S1","excerpt":"This is a test this is bad.","explanation":"x","suggestion":"split"}]`

func setupHandler(t *testing.T, responses ...llm.MockResponse) (http.Handler, *llm.MockProvider) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "redpen.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	mock := llm.NewMockProvider(responses...)
	svc := session.NewService(session.Deps{
		Sessions: s.SessionRepo(),
		Journal:  s.EventRepo(),
		Analyzer: analysis.New(llm.NewGateway(mock), analysis.Config{}),
	})
	return NewAppHandler(AppDeps{Sessions: svc}), mock
}

func uploadReq(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.WriteField("name", "ana")
	mw.WriteField("id", "s1")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/sessions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func jsonReq(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func createSession(t *testing.T, h http.Handler) SessionView {
	t.Helper()
	rr := do(h, uploadReq(t, "essay.txt", essay))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rr.Code, rr.Body.String())
	}
	var view SessionView
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return view
}

func TestHealth(t *testing.T) {
	h, _ := setupHandler(t)
	rr := do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rr.Code, rr.Body.String())
	}
}

func TestCreateAndRevise(t *testing.T) {
	h, mock := setupHandler(t,
		llm.TextResponse("steps"),
		llm.TextResponse(findingsJSON),
		llm.TextResponse(`{"fixed":"yes","comment":"ok"}`),
	)

	view := createSession(t, h)
	if view.ID == "" || view.Student.Name != "ana" || view.OriginalText != essay {
		t.Fatalf("view = %+v", view)
	}
	if len(view.Findings) != 1 || view.Findings[0].Phase != "idle" || view.Findings[0].Draft != essay {
		t.Fatalf("findings = %+v", view.Findings)
	}
	if view.AnalysisError != "" {
		t.Errorf("analysis_error = %q", view.AnalysisError)
	}

	base := "/sessions/" + view.ID + "/findings/0"

	rr := do(h, jsonReq(http.MethodPost, base+"/start", ""))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"phase":"editing"`) {
		t.Fatalf("start = %d %s", rr.Code, rr.Body.String())
	}

	rr = do(h, jsonReq(http.MethodPost, base+"/draft", `{"text":"This is a test."}`))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"draft":"This is a test."`) {
		t.Fatalf("draft = %d %s", rr.Code, rr.Body.String())
	}

	rr = do(h, jsonReq(http.MethodPost, base+"/submit", `{"text":"This is a test. This is bad."}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("submit = %d %s", rr.Code, rr.Body.String())
	}
	var entry map[string]any
	json.NewDecoder(rr.Body).Decode(&entry)
	if entry["action"] != "submit" {
		t.Errorf("action = %v", entry["action"])
	}
	check, _ := entry["ai_check"].(map[string]any)
	if check["fixed"] != "yes" {
		t.Errorf("ai_check = %v", entry["ai_check"])
	}
	if mock.CallCount() != 3 {
		t.Errorf("model calls = %d, want 3", mock.CallCount())
	}

	rr = do(h, httptest.NewRequest(http.MethodGet, "/sessions/"+view.ID, nil))
	var got SessionView
	json.NewDecoder(rr.Body).Decode(&got)
	if len(got.Logs) != 1 || got.Findings[0].Attempts != 1 || got.Findings[0].Phase != "idle" {
		t.Errorf("session after submit = %+v", got)
	}
}

func TestFindingErrors(t *testing.T) {
	h, _ := setupHandler(t, llm.TextResponse("steps"), llm.TextResponse(findingsJSON))
	view := createSession(t, h)
	base := "/sessions/" + view.ID + "/findings/"

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"abandon without start", jsonReq(http.MethodPost, base+"0/abandon", `{"text":"x"}`), http.StatusConflict},
		{"submit without start", jsonReq(http.MethodPost, base+"0/submit", `{"text":"x"}`), http.StatusConflict},
		{"missing text", jsonReq(http.MethodPost, base+"0/submit", `{}`), http.StatusBadRequest},
		{"bad body", jsonReq(http.MethodPost, base+"0/abandon", `{`), http.StatusBadRequest},
		{"index out of range", jsonReq(http.MethodPost, base+"3/start", ""), http.StatusNotFound},
		{"bad index", jsonReq(http.MethodPost, base+"x/start", ""), http.StatusBadRequest},
		{"unknown session", jsonReq(http.MethodPost, "/sessions/nope/findings/0/start", ""), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(h, tt.req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d; body = %s", rr.Code, tt.want, rr.Body.String())
			}
			var env map[string]map[string]any
			if err := json.NewDecoder(rr.Body).Decode(&env); err != nil || env["error"]["message"] == "" {
				t.Errorf("missing error envelope: %s", rr.Body.String())
			}
		})
	}
}

func TestCreateUnsupportedFile(t *testing.T) {
	h, mock := setupHandler(t)
	rr := do(h, uploadReq(t, "essay.odt", "x"))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if mock.CallCount() != 0 {
		t.Error("no model call expected for a rejected upload")
	}
}

func TestCreateAnalysisFailure(t *testing.T) {
	h, _ := setupHandler(t, llm.ErrorResponse(&llm.ErrNotConfigured{Provider: "openai", Err: errors.New("OPENAI_API_KEY is not set")}))
	view := createSession(t, h)
	if !strings.Contains(view.AnalysisError, "not configured") {
		t.Errorf("analysis_error = %q", view.AnalysisError)
	}
	if view.OriginalText != essay || len(view.Findings) != 0 {
		t.Errorf("view = %+v", view)
	}

	// Retrying analysis surfaces the gateway error.
	rr := do(h, jsonReq(http.MethodPost, "/sessions/"+view.ID+"/analyze", ""))
	if rr.Code != http.StatusBadGateway {
		t.Errorf("analyze = %d %s", rr.Code, rr.Body.String())
	}
}

func TestListSessions(t *testing.T) {
	h, _ := setupHandler(t, llm.TextResponse("s"), llm.TextResponse("[]"))
	view := createSession(t, h)

	rr := do(h, httptest.NewRequest(http.MethodGet, "/sessions?limit=10", nil))
	var list []map[string]any
	json.NewDecoder(rr.Body).Decode(&list)
	if len(list) != 1 || list[0]["id"] != view.ID {
		t.Fatalf("list = %v", list)
	}

	rr = do(h, httptest.NewRequest(http.MethodGet, "/sessions?limit=0", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d", rr.Code)
	}
}

func TestExportZip(t *testing.T) {
	h, _ := setupHandler(t, llm.TextResponse("steps"), llm.TextResponse(findingsJSON))
	view := createSession(t, h)

	rr := do(h, httptest.NewRequest(http.MethodGet, "/sessions/"+view.ID+"/export.zip", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "ana_s1_session_results.zip") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	zr, err := zip.NewReader(bytes.NewReader(rr.Body.Bytes()), int64(rr.Body.Len()))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	if len(zr.File) != 5 || zr.File[0].Name != "ana_s1/original.txt" {
		t.Errorf("entries = %d, first = %q", len(zr.File), zr.File[0].Name)
	}
}

func TestSubmitUsesRequestContextButAlwaysLogs(t *testing.T) {
	h, _ := setupHandler(t,
		llm.TextResponse("steps"),
		llm.TextResponse(findingsJSON),
		llm.ErrorResponse(&llm.ErrProviderUnavailable{Err: errors.New("transport closed")}),
	)
	view := createSession(t, h)
	base := "/sessions/" + view.ID + "/findings/0"
	do(h, jsonReq(http.MethodPost, base+"/start", ""))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	rr := do(h, jsonReq(http.MethodPost, base+"/submit", `{"text":"fixed"}`).WithContext(ctx))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"fixed":"error"`) {
		t.Fatalf("submit = %d %s", rr.Code, rr.Body.String())
	}
}
