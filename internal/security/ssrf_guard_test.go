package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewSafeClient_Timeout(t *testing.T) {
	client := NewSSRFGuard().NewSafeClient(5 * time.Second)
	if client.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Fatal("expected a custom Transport")
	}
}

// TestNewSafeClient_BlocksLoopback はhttptestサーバー（127.0.0.1）への接続が拒否されることを検証する。
func TestNewSafeClient_BlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSSRFGuard().NewSafeClient(5 * time.Second)
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

func TestValidateURL(t *testing.T) {
	guard := NewSSRFGuard()

	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://lh3.googleusercontent.com/a/photo.png", false},
		{"https://auth.example.com/session-data", false},
		{"http://cdn.example.org/avatar.jpg", false},
		{"", true},
		{"not-a-url", true},
		{"ftp://example.com/a.png", true},
		{"javascript:alert(1)", true},
		{"data:image/png;base64,AAAA", true},
		{"http://10.0.0.1/a.png", true},
		{"http://172.31.255.255/a.png", true},
		{"http://192.168.1.100/a.png", true},
		{"http://127.0.0.2/a.png", true},
		{"http://localhost/a.png", true},
		{"http://api.localhost/a.png", true},
		{"http://169.254.169.254/latest/meta-data/", true},
		{"http://[::1]/a.png", true},
		{"http://[::ffff:127.0.0.1]/a.png", true},
		{"http://[fd00::1]/a.png", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
