package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/omegapoint/pipeline/internal/genmock"
	"github.com/omegapoint/pipeline/internal/logging"
	"github.com/omegapoint/pipeline/internal/pipeline/engine"
	"github.com/omegapoint/pipeline/internal/pipeline/state"
)

func newTestServer(t *testing.T, opts ...genmock.Option) *Server {
	t.Helper()
	logging.Init(slog.LevelError, "text", io.Discard)
	opts = append(opts, genmock.WithLogger(slog.Default()))
	eng := engine.New(genmock.New(opts...), engine.Config{}, slog.Default())
	return New(Config{Addr: "127.0.0.1:0"}, eng)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: body did not decode: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", rec.Code, body)
	}
}

func TestRunStage_ThenStatusAndSession(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec, body := doJSON(t, h, http.MethodPost, "/api/stages/1/run", `{"input":"cheap desalination"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("run stage 1: %d %v", rec.Code, body)
	}
	inv := body["invocation"].(map[string]any)
	if inv["successful"].(float64) != 1 {
		t.Fatalf("invocation: %v", inv)
	}

	rec, status := doJSON(t, h, http.MethodGet, "/api/stages/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d %v", rec.Code, status)
	}
	digest, _ := status["digest"].(string)
	if status["committed"] != true || digest == "" {
		t.Fatalf("stage 1 status: %v", status)
	}

	rec, session := doJSON(t, h, http.MethodGet, "/api/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("session: %d", rec.Code)
	}
	values := session["values"].(map[string]any)
	if _, ok := values["stage1"]; !ok {
		t.Fatalf("session must include the committed slot: %v", values)
	}
	if _, ok := values["stage2"]; ok {
		t.Fatalf("session must omit empty slots: %v", values)
	}
}

func TestRunStage_MissingUpstreamIsConflict(t *testing.T) {
	s := newTestServer(t)
	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/stages/3/run", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d %v", rec.Code, body)
	}
	if !strings.Contains(body["error"].(string), "stage 2") {
		t.Fatalf("error must name the missing upstream stage: %v", body)
	}
}

func TestRunStage_UnknownSelectionIsNotFound(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	doJSON(t, h, http.MethodPost, "/api/stages/1/run", `{"input":"x"}`)
	doJSON(t, h, http.MethodPost, "/api/stages/2/run", "")

	rec, body := doJSON(t, h, http.MethodPost, "/api/stages/3/run", `{"selection_id":"G99"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d %v", rec.Code, body)
	}
}

func TestStageIDValidation(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/stages/0/run", "/api/stages/11/run", "/api/stages/abc/run"} {
		rec, _ := doJSON(t, s.Handler(), http.MethodPost, path, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: want 404, got %d", path, rec.Code)
		}
	}
}

func TestCancelWithNothingInFlight(t *testing.T) {
	s := newTestServer(t)
	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/stages/3/cancel", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d", rec.Code)
	}
}

func TestHierarchyEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec, _ := doJSON(t, h, http.MethodGet, "/api/hierarchy", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("hierarchy before stage 6: want 409, got %d", rec.Code)
	}

	doJSON(t, h, http.MethodPost, "/api/stages/1/run", `{"input":"x"}`)
	for stage := 2; stage <= 9; stage++ {
		rec, body := doJSON(t, h, http.MethodPost, "/api/stages/"+string(rune('0'+stage))+"/run", "")
		_ = body
		if rec.Code != http.StatusOK {
			t.Fatalf("stage %d: %d %v", stage, rec.Code, body)
		}
	}

	rec, tree := doJSON(t, h, http.MethodGet, "/api/hierarchy", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("hierarchy: %d", rec.Code)
	}
	branches := tree["branches"].([]any)
	if len(branches) != 6 {
		t.Fatalf("branches: %d", len(branches))
	}
}

func TestCSRF_CrossOriginPostBlocked(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/stages/1/run", strings.NewReader(`{"input":"x"}`))
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cross-origin POST: want 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/stages/1/run", strings.NewReader(`{"input":"x"}`))
	req.Header.Set("Origin", "http://localhost:3000")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code == http.StatusForbidden {
		t.Fatal("localhost origin must be allowed")
	}
}

func TestCumulativeCountersAcrossRuns(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	doJSON(t, h, http.MethodPost, "/api/stages/1/run", `{"input":"x"}`)
	doJSON(t, h, http.MethodPost, "/api/stages/2/run", "")
	doJSON(t, h, http.MethodPost, "/api/stages/3/run", "")
	doJSON(t, h, http.MethodPost, "/api/stages/3/run", `{"selection_id":"G1"}`)

	meta, err := s.engine.Table().Meta(3)
	if err != nil {
		t.Fatal(err)
	}
	want := state.Counters{Successful: 4, Failed: 0}
	if meta.Counters != want {
		t.Fatalf("cumulative counters: got %+v want %+v", meta.Counters, want)
	}
}
