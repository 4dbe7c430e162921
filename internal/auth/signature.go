package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Signature headers of uploaded data archives.
const (
	HeaderSignatureTimestamp = "X-Ingest-Timestamp"
	HeaderSignature          = "X-Ingest-Signature"
)

// SignatureMiddleware verifies an HMAC-SHA256 of "<unix timestamp>\n<body>"
// on uploads.
type SignatureMiddleware struct {
	Secret  []byte
	MaxSkew time.Duration
	MaxBody int64
	now     func() time.Time
}

// NewSignatureMiddleware constructs the middleware.
func NewSignatureMiddleware(secret []byte, maxSkew time.Duration, maxBody int64) *SignatureMiddleware {
	return &SignatureMiddleware{Secret: secret, MaxSkew: maxSkew, MaxBody: maxBody, now: time.Now}
}

// Wrap rejects requests whose signature does not match the body.
func (m *SignatureMiddleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.Secret) == 0 {
			http.Error(w, "upload signing not configured", http.StatusUnauthorized)
			return
		}
		timestamp := strings.TrimSpace(r.Header.Get(HeaderSignatureTimestamp))
		signature := strings.TrimSpace(r.Header.Get(HeaderSignature))
		if timestamp == "" || signature == "" {
			http.Error(w, "missing signature", http.StatusUnauthorized)
			return
		}
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			http.Error(w, "invalid signature timestamp", http.StatusUnauthorized)
			return
		}
		skew := m.now().Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if m.MaxSkew > 0 && skew > m.MaxSkew {
			http.Error(w, "signature expired", http.StatusUnauthorized)
			return
		}

		body := io.Reader(r.Body)
		if m.MaxBody > 0 {
			body = http.MaxBytesReader(w, r.Body, m.MaxBody)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			http.Error(w, "read body error", http.StatusRequestEntityTooLarge)
			return
		}
		_ = r.Body.Close()

		if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(Sign(m.Secret, timestamp, data))) {
			http.Error(w, ErrBadSignature.Error(), http.StatusUnauthorized)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(data))
		next.ServeHTTP(w, r)
	})
}

// Sign returns the hex signature of body at timestamp.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("\n"))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
