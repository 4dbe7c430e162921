package auth

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func signedRequest(secret []byte, at time.Time, body []byte) *http.Request {
	ts := strconv.FormatInt(at.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewReader(body))
	req.Header.Set(HeaderSignatureTimestamp, ts)
	req.Header.Set(HeaderSignature, Sign(secret, ts, body))
	return req
}

func TestSignatureMiddleware(t *testing.T) {
	secret := []byte("ingest-secret")
	now := time.Date(2023, time.January, 25, 18, 0, 0, 0, time.UTC)
	mw := NewSignatureMiddleware(secret, 5*time.Minute, 1<<20)
	mw.now = func() time.Time { return now }

	var received []byte
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	body := []byte("PK archive bytes")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, signedRequest(secret, now, body))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !bytes.Equal(received, body) {
		t.Fatalf("body not replayed to handler")
	}

	tampered := signedRequest(secret, now, body)
	tampered.Body = io.NopCloser(bytes.NewReader([]byte("other bytes")))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, tampered)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("tampered: expected 401, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, signedRequest(secret, now.Add(-time.Hour), body))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("stale: expected 401, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewReader(body)))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned: expected 401, got %d", resp.Code)
	}
}

func TestSignatureMiddleware_BodyLimit(t *testing.T) {
	secret := []byte("ingest-secret")
	mw := NewSignatureMiddleware(secret, 0, 4)
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, signedRequest(secret, time.Now(), []byte("too large")))
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.Code)
	}
}
