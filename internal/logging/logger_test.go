package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("warn", &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if bytes.Contains([]byte(out), []byte("hidden")) {
		t.Errorf("info line should be filtered at warn level: %s", out)
	}
	if !bytes.Contains([]byte(out), []byte("shown")) {
		t.Errorf("warn line missing: %s", out)
	}
}

func TestLoggerWithContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("info", &buf)

	ctx := WithRequestID(context.Background(), "abcd1234")
	logger.WithContext(ctx).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["request_id"] != "abcd1234" {
		t.Errorf("request_id = %v, want abcd1234", line["request_id"])
	}
}

func TestHTTPMiddlewareChain(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("debug", &buf)

	var seen string
	h := RequestIDMiddleware(HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "client-id" {
		t.Errorf("handler saw request id %q, want client-id", seen)
	}
	if rec.Header().Get(RequestIDHeader) != "client-id" {
		t.Errorf("response header = %q, want client-id", rec.Header().Get(RequestIDHeader))
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"status":418`)) {
		t.Errorf("expected status in log line, got %s", buf.String())
	}
}
