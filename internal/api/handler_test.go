package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-learn/internal/auth"
	"github.com/p-n-ai/pai-learn/internal/content"
	"github.com/p-n-ai/pai-learn/internal/progress"
	"github.com/p-n-ai/pai-learn/internal/report"
)

type staticVerifier map[string]auth.Identity

func (v staticVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	id, ok := v[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return id, nil
}

var testVerifier = staticVerifier{
	"learner-u1": {LearnerID: "u1", Role: auth.RoleLearner},
	"learner-u2": {LearnerID: "u2", Role: auth.RoleLearner},
	"admin":      {LearnerID: "a1", Role: auth.RoleAdmin},
}

type brokenStore struct {
	progress.Store
}

func (brokenStore) PutCourse(context.Context, string, progress.CourseAggregate) error {
	return errors.New("disk on fire")
}

func testCatalog() *content.Catalog {
	return content.NewCatalog(content.Course{
		ID: "ai-101",
		Chapters: []content.Chapter{
			{ID: "ch1", Difficulty: progress.Beginner},
			{ID: "ch5", Difficulty: progress.Intermediate},
			{ID: "ch9", Difficulty: progress.Advanced},
			{ID: "ch10", Difficulty: progress.Advanced},
		},
	})
}

type testServer struct {
	mux   *http.ServeMux
	store progress.Store
	hub   *Hub
}

func newTestServer(t *testing.T, store progress.Store) *testServer {
	t.Helper()
	if store == nil {
		store = progress.NewMemoryStore()
	}

	hub := NewHub()
	dc := content.NewMemoryDifficultyCache()
	selector := content.NewSelector(testCatalog(), store, dc)
	orch := progress.NewOrchestrator(progress.OrchestratorConfig{
		Store:     store,
		Listeners: []progress.Listener{selector, hub},
	})

	h, err := NewHandler(Config{
		Orchestrator: orch,
		Selector:     selector,
		Reporter:     report.NewReporter(store),
		Verifier:     testVerifier,
		Hub:          hub,
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	return &testServer{mux: mux, store: store, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	return w
}

func decodeMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Message
}

func TestNewHandler_RequiresDependencies(t *testing.T) {
	if _, err := NewHandler(Config{Verifier: testVerifier}); err == nil {
		t.Error("NewHandler() without orchestrator should fail")
	}
	orch := progress.NewOrchestrator(progress.OrchestratorConfig{Store: progress.NewMemoryStore()})
	if _, err := NewHandler(Config{Orchestrator: orch}); err == nil {
		t.Error("NewHandler() without verifier should fail")
	}
}

func TestUpdateProgress(t *testing.T) {
	s := newTestServer(t, progress.NewMemoryStore())

	w := s.do(t, http.MethodPost, "/api/update-progress", "learner-u1", `{"courseId":"ai-101","chapterId":"ch1","score":90}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var res progress.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := progress.Result{Difficulty: progress.Advanced, ChapterAverage: 90, CourseAverage: 90, GlobalAverage: 90}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}

	w = s.do(t, http.MethodPost, "/api/update-progress", "learner-u1", `{"courseId":"ai-101","chapterId":"ch1","score":30}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want = progress.Result{Difficulty: progress.Intermediate, ChapterAverage: 60, CourseAverage: 60, GlobalAverage: 60}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
}

func TestUpdateProgress_ResponseFieldNames(t *testing.T) {
	s := newTestServer(t, progress.NewMemoryStore())

	w := s.do(t, http.MethodPost, "/api/update-progress", "learner-u1", `{"courseId":"ai-101","chapterId":"ch1","score":70}`)
	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"difficulty", "chapterAvgScore", "courseAvgScore", "globalAvgScore"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("response missing %q: %v", key, raw)
		}
	}
}

func TestUpdateProgress_BadRequests(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantMessage string
	}{
		{"score too high", `{"courseId":"c","chapterId":"ch","score":150}`, "invalid score 150"},
		{"score negative", `{"courseId":"c","chapterId":"ch","score":-1}`, "invalid score -1"},
		{"fractional score", `{"courseId":"c","chapterId":"ch","score":85.5}`, "invalid score 85.5"},
		{"missing score", `{"courseId":"c","chapterId":"ch"}`, "invalid score"},
		{"string score", `{"courseId":"c","chapterId":"ch","score":"90"}`, "invalid score"},
		{"missing course", `{"chapterId":"ch","score":90}`, "courseId"},
		{"empty chapter", `{"courseId":"c","chapterId":"","score":90}`, "chapterId"},
		{"not json", `score=90`, "JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := progress.NewMemoryStore()
			s := newTestServer(t, store)

			w := s.do(t, http.MethodPost, "/api/update-progress", "learner-u1", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
			if msg := decodeMessage(t, w); !strings.Contains(msg, tt.wantMessage) {
				t.Errorf("message = %q, want it to contain %q", msg, tt.wantMessage)
			}

			learners, _ := store.ListLearners(t.Context())
			if len(learners) != 0 {
				t.Errorf("rejected request wrote progress for %v", learners)
			}
		})
	}
}

func TestUpdateProgress_PersistenceFailure(t *testing.T) {
	s := newTestServer(t, brokenStore{Store: progress.NewMemoryStore()})

	w := s.do(t, http.MethodPost, "/api/update-progress", "learner-u1", `{"courseId":"c","chapterId":"ch","score":90}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	msg := decodeMessage(t, w)
	if msg != "failed to update progress" {
		t.Errorf("message = %q", msg)
	}
	if strings.Contains(msg, "disk on fire") {
		t.Error("store error leaked to client")
	}
}

func TestRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t, progress.NewMemoryStore())

	tests := []struct {
		method, path, token, wantBody string
	}{
		{http.MethodPost, "/api/update-progress", "", "Unauthorized"},
		{http.MethodGet, "/api/courses/ai-101", "", "Unauthorized"},
		{http.MethodGet, "/api/progress", "bogus", "Invalid token"},
		{http.MethodGet, "/api/admin/learners", "", "Unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.token, "")
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if got := strings.TrimSpace(w.Body.String()); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestCourseContent_FollowsDifficulty(t *testing.T) {
	s := newTestServer(t, progress.NewMemoryStore())

	chapters := func() []string {
		w := s.do(t, http.MethodGet, "/api/courses/ai-101", "learner-u1", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var got []content.Chapter
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		ids := make([]string, len(got))
		for i, ch := range got {
			ids[i] = ch.ID
		}
		return ids
	}

	if got := chapters(); len(got) != 1 || got[0] != "ch1" {
		t.Errorf("new learner chapters = %v, want [ch1]", got)
	}

	s.do(t, http.MethodPost, "/api/update-progress", "learner-u1", `{"courseId":"ai-101","chapterId":"ch1","score":95}`)
	if got := chapters(); len(got) != 2 || got[0] != "ch9" || got[1] != "ch10" {
		t.Errorf("advanced chapters = %v, want [ch9 ch10]", got)
	}

	s.do(t, http.MethodPost, "/api/update-progress", "learner-u1", `{"courseId":"ai-101","chapterId":"ch9","score":5}`)
	if got := chapters(); len(got) != 1 || got[0] != "ch5" {
		t.Errorf("intermediate chapters = %v, want [ch5]", got)
	}
}

func TestCourseContent_UnknownCourse(t *testing.T) {
	s := newTestServer(t, progress.NewMemoryStore())

	w := s.do(t, http.MethodGet, "/api/courses/nope", "learner-u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestMyProgress(t *testing.T) {
	s := newTestServer(t, progress.NewMemoryStore())
	s.do(t, http.MethodPost, "/api/update-progress", "learner-u1", `{"courseId":"ai-101","chapterId":"ch1","score":80}`)
	s.do(t, http.MethodPost, "/api/update-progress", "learner-u2", `{"courseId":"ai-101","chapterId":"ch1","score":10}`)

	w := s.do(t, http.MethodGet, "/api/progress", "learner-u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var sum report.LearnerSummary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.LearnerID != "u1" || sum.GlobalAvgScore != 80 || len(sum.Courses) != 1 {
		t.Errorf("summary = %+v", sum)
	}
}
