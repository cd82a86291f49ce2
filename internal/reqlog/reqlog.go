// Package reqlog records every handled request to a JSON log file.
//
// The file holds a single JSON array; each write reads the array back,
// appends one record, and rewrites the whole file. A corrupt or missing
// file is replaced with a fresh array. Write failures are reported through
// the diagnostic logger and otherwise swallowed: logging must never turn
// into a client-visible error or block the proxy path.
package reqlog

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spyglass-proxy/spyglass/internal/httpwire"
)

// Record is one entry in the request log.
type Record struct {
	Timestamp         string            `json:"timestamp"`
	ClientAddress     string            `json:"client_address"`
	Method            string            `json:"method"`
	URL               string            `json:"url"`
	TargetHost        string            `json:"target_host"`
	Path              string            `json:"path"`
	Query             string            `json:"query"`
	HTTPVersion       string            `json:"http_version"`
	Headers           map[string]string `json:"headers"`
	Body              string            `json:"body"`
	BodyLength        int               `json:"body_length"`
	TunnelEstablished *bool             `json:"tunnel_established,omitempty"`
}

// FromRequest builds the log record for a parsed request.
func FromRequest(req *httpwire.Request, clientAddr string) Record {
	return Record{
		ClientAddress: clientAddr,
		Method:        req.Method,
		URL:           req.Target,
		TargetHost:    req.Host,
		Path:          req.Path,
		Query:         req.Query,
		HTTPVersion:   req.Proto,
		Headers:       req.Headers.Map(),
		Body:          string(req.Body),
		BodyLength:    len(req.Body),
	}
}

// Logger appends records to the log file, one writer at a time.
type Logger struct {
	path string
	diag *slog.Logger

	mu sync.Mutex
}

func New(path string, diag *slog.Logger) *Logger {
	return &Logger{path: path, diag: diag}
}

// Log appends rec to the log file, stamping it if unstamped. Failures are
// diagnostics only.
func (l *Logger) Log(rec Record) {
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().Format(time.RFC3339Nano)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []json.RawMessage
	if data, err := os.ReadFile(l.path); err == nil {
		if err := json.Unmarshal(data, &entries); err != nil {
			l.diag.Warn("request log corrupt, starting fresh", "path", l.path, "err", err)
			entries = nil
		}
	}

	entry, err := json.Marshal(rec)
	if err != nil {
		l.diag.Warn("request log marshal failed", "err", err)
		return
	}
	entries = append(entries, entry)

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		l.diag.Warn("request log marshal failed", "err", err)
		return
	}

	if err := os.WriteFile(l.path, out, 0o644); err != nil {
		l.diag.Warn("request log write failed", "path", l.path, "err", err)
	}
}
