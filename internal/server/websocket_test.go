package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"empty origin always allowed", "", []string{"http://localhost:3000"}, true},
		{"exact match", "http://localhost:3000", []string{"http://localhost:3000"}, true},
		{"wildcard", "http://anywhere.example", []string{"*"}, true},
		{"no match", "http://evil.example", []string{"http://localhost:3000"}, false},
		{"empty allow list", "http://localhost:3000", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := originAllowed(tt.origin, tt.allowed); got != tt.want {
				t.Errorf("originAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}

func TestStreamUnknownSessionRejectedBeforeUpgrade(t *testing.T) {
	h := newTestServer(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess_missing/stream", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("stream for unknown session = %d, want 404", w.Code)
	}
}
