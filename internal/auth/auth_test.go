package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestJWTManager_IssueAndVerify(t *testing.T) {
	m := NewJWTManager("secret", "pai-learn", time.Hour)

	token, err := m.Issue("u1", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	id, err := m.Verify(t.Context(), token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.LearnerID != "u1" {
		t.Errorf("LearnerID = %q, want u1", id.LearnerID)
	}
	if id.Role != RoleLearner || id.IsAdmin() {
		t.Errorf("Role = %q, want learner", id.Role)
	}

	admin, _ := m.Issue("a1", RoleAdmin)
	id, err = m.Verify(t.Context(), admin)
	if err != nil || !id.IsAdmin() {
		t.Errorf("admin Verify() = %+v, %v", id, err)
	}
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("secret", "pai-learn", time.Hour)
	good, _ := m.Issue("u1", "")

	other, _ := NewJWTManager("other-secret", "pai-learn", time.Hour).Issue("u1", "")
	wrongIssuer, _ := NewJWTManager("secret", "someone-else", time.Hour).Issue("u1", "")

	expiredMgr := NewJWTManager("secret", "pai-learn", time.Minute)
	expiredMgr.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := expiredMgr.Issue("u1", "")

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not.a.token", ErrInvalidToken},
		{"wrong secret", other, ErrInvalidToken},
		{"wrong issuer", wrongIssuer, ErrInvalidToken},
		{"expired", expired, ErrInvalidToken},
		{"tampered", good[:len(good)-2] + "xx", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Verify(t.Context(), tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIssue_RequiresLearner(t *testing.T) {
	m := NewJWTManager("secret", "pai-learn", time.Hour)
	if _, err := m.Issue("", ""); err == nil {
		t.Error("Issue() should reject an empty learner id")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{"Bearer abc", "abc", nil},
		{"bearer abc", "abc", nil},
		{"", "", ErrMissingToken},
		{"Basic abc", "", ErrInvalidToken},
		{"Bearer", "", ErrMissingToken},
		{"Bearer   ", "", ErrMissingToken},
		{"Basic", "", ErrMissingToken},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := BearerToken(r)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("BearerToken() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	m := NewJWTManager("secret", "pai-learn", time.Hour)
	token, _ := m.Issue("u1", "")

	var seen Identity
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"missing", "", http.StatusUnauthorized, "Unauthorized"},
		{"invalid", "Bearer nope", http.StatusUnauthorized, "Invalid token"},
		{"bare scheme", "Bearer", http.StatusUnauthorized, "Unauthorized"},
		{"other scheme", "Basic dTE6cHc=", http.StatusUnauthorized, "Invalid token"},
		{"valid", "Bearer " + token, http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if body := strings.TrimSpace(rec.Body.String()); body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}

	if seen.LearnerID != "u1" {
		t.Errorf("identity in context = %+v, want u1", seen)
	}
}
