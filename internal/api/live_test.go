package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/p-n-ai/pai-learn/internal/progress"
)

func TestLive_StreamsCommittedUpdates(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/admin/live"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer admin"}},
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.CloseNow()

	w := s.do(t, http.MethodPost, "/api/update-progress", "learner-u1", `{"courseId":"ai-101","chapterId":"ch1","score":55}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	typ, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if typ != websocket.MessageText {
		t.Errorf("message type = %v, want text", typ)
	}

	var u progress.Update
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Event.LearnerID != "u1" || u.Event.Score != 55 {
		t.Errorf("event = %+v", u.Event)
	}
	if u.Result.Difficulty != progress.Intermediate {
		t.Errorf("difficulty = %q, want intermediate", u.Result.Difficulty)
	}

	c.Close(websocket.StatusNormalClosure, "")
}

func TestLive_RejectsMissingToken(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/admin/live"
	_, resp, err := websocket.Dial(t.Context(), url, nil)
	if err == nil {
		t.Fatal("Dial() without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestHub_DropsForSlowSubscribers(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		h.ProgressRecorded(t.Context(), progress.Update{})
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}

	unsubscribe()
	if n := h.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d after unsubscribe", n)
	}
}
