package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/taskman/internal/model"
)

func csrfHandler(t *testing.T) (http.Handler, *bool) {
	t.Helper()
	called := false
	h := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	return h, &called
}

func TestCSRFMiddleware_SafeMethodIssuesCookie(t *testing.T) {
	handler, called := csrfHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !*called {
		t.Fatal("GET should pass through")
	}
	var found *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == csrfCookieName {
			found = c
		}
	}
	if found == nil || len(found.Value) != 64 {
		t.Fatalf("csrf cookie not issued: %+v", found)
	}
	if found.HttpOnly {
		t.Error("csrf cookie must be readable from JavaScript")
	}
	if found.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", found.SameSite)
	}
}

func TestCSRFMiddleware_StateChangingRequests(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   int
	}{
		{"一致", "abc", "abc", http.StatusOK},
		{"Cookieなし", "", "abc", http.StatusForbidden},
		{"ヘッダーなし", "abc", "", http.StatusForbidden},
		{"不一致", "abc", "abd", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, called := csrfHandler(t)

			req := httptest.NewRequest(http.MethodPost, "/api/tasks", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusForbidden {
				if *called {
					t.Error("handler must not be called")
				}
				if body := decodeErrorBody(t, w); body.Code != model.ErrCodeCSRF {
					t.Errorf("code = %q", body.Code)
				}
			}
		})
	}
}

func TestCSRFTokenHandler_ReusesExistingCookie(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Token != "existing" {
		t.Errorf("token = %q, want existing", body.Token)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("no new cookie should be set")
	}
}

func TestCSRFTokenHandler_IssuesNewToken(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{CookieSecure: true, CookieSameSite: http.SameSiteStrictMode})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	if !cookies[0].Secure || cookies[0].SameSite != http.SameSiteStrictMode {
		t.Errorf("cookie attributes = %+v", cookies[0])
	}

	var body struct {
		Token string `json:"token"`
	}
	json.NewDecoder(w.Body).Decode(&body)
	if body.Token != cookies[0].Value {
		t.Errorf("body token %q != cookie %q", body.Token, cookies[0].Value)
	}
}
