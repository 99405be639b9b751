package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"ok is debug", http.StatusOK, "DEBUG"},
		{"not found is debug", http.StatusNotFound, "DEBUG"},
		{"server error is warn", http.StatusServiceUnavailable, "WARN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("abc"))
			}))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
			if rr.Code != tt.status {
				t.Fatalf("expected status %d to pass through, got %d", tt.status, rr.Code)
			}

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("expected one JSON log line, got %q: %v", buf.String(), err)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("expected level %s, got %v", tt.wantLevel, entry["level"])
			}
			if entry["component"] != "admin_http" || entry["path"] != "/status" {
				t.Errorf("unexpected log fields: %v", entry)
			}
			if entry["status"] != float64(tt.status) || entry["bytes"] != float64(3) {
				t.Errorf("expected status %d and 3 bytes, got %v and %v", tt.status, entry["status"], entry["bytes"])
			}
		})
	}
}
