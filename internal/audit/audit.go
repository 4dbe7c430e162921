package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"store-monitoring/internal/auth"
)

// Actions recorded by the API.
const (
	ActionReportTrigger = "report.trigger"
	ActionDataIngest    = "data.ingest"
)

// Entry is one audited API action.
type Entry struct {
	ID            string
	TenantID      string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewEntry fills the caller fields of an entry from the request and its identity.
func NewEntry(r *http.Request, action, resourceType, resourceID string, metadata any) Entry {
	entry := Entry{
		ID:           NewID(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		CreatedAt:    time.Now().UTC(),
	}
	if r != nil {
		entry.IP = clientIP(r)
		entry.UserAgent = r.UserAgent()
		if identity, ok := auth.IdentityFromContext(r.Context()); ok {
			entry.TenantID = identity.TenantID
			entry.Actor = identity.Subject
			entry.Role = string(identity.Role)
		}
	}
	if metadata != nil {
		if data, err := json.Marshal(metadata); err == nil {
			entry.Metadata = data
		}
	}
	return entry
}

// NewID generates an audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LogWriter writes entries as log lines. It stands in when no database is configured.
type LogWriter struct {
	logger *log.Logger
}

// NewLogWriter constructs a LogWriter.
func NewLogWriter(logger *log.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

// Log implements Logger.
func (w *LogWriter) Log(ctx context.Context, entry Entry) error {
	_ = ctx
	if w == nil || w.logger == nil {
		return nil
	}
	w.logger.Printf("event=audit action=%s resource_type=%s resource_id=%s actor=%s role=%s tenant_id=%s ip=%s metadata=%s",
		entry.Action, entry.ResourceType, entry.ResourceID, entry.Actor, entry.Role, entry.TenantID, entry.IP, string(entry.Metadata))
	return nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
