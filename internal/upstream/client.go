// Package upstream executes the proxy's outbound HTTP requests.
//
// The contract with the rest of the proxy is that Reply.Body is always the
// fully decoded payload: chunked framing is undone by the transport, and
// gzip/deflate content is decompressed here even when the transport did not
// negotiate the encoding itself. Response building relies on this to
// recompute Content-Length unconditionally.
package upstream

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spyglass-proxy/spyglass/internal/dialer"
	"github.com/spyglass-proxy/spyglass/internal/httpwire"
)

// hopHeaders are connection-scoped request headers that must not be
// forwarded to the origin.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Proxy-Authorization",
}

type Config struct {
	// Timeout bounds the whole outbound exchange, connect through body.
	Timeout time.Duration

	Dialer dialer.Dialer
}

// Client executes forwarded requests against origin servers.
type Client struct {
	hc     *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	t := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	if cfg.Dialer != nil {
		t.DialContext = cfg.Dialer.DialContext
	}

	return &Client{
		hc: &http.Client{
			Transport: t,
			Timeout:   cfg.Timeout,
			// Redirects belong to the client behind the proxy.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Do executes the forwarded request and returns a Reply whose Body is the
// fully decoded payload. Failures come back as *Error.
func (c *Client) Do(ctx context.Context, req *httpwire.Request) (*httpwire.Reply, error) {
	fullURL := req.Target
	if !strings.HasPrefix(fullURL, "http://") && !strings.HasPrefix(fullURL, "https://") {
		// Origin-form target: address it via the resolved host.
		fullURL = "http://" + req.Host + req.Target
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	hr, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Host: req.Host, Err: err}
	}

	for _, h := range req.Headers.All() {
		if isHopHeader(h.Key) {
			continue
		}
		if strings.EqualFold(h.Key, "Host") {
			hr.Host = h.Value
			continue
		}
		hr.Header.Add(h.Key, h.Value)
	}

	c.logger.Debug("forwarding request", "method", req.Method, "url", fullURL)

	resp, err := c.hc.Do(hr)
	if err != nil {
		return nil, classify(req.Host, err)
	}
	defer resp.Body.Close()

	decoded, err := decodeBody(resp)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Host: req.Host, Err: fmt.Errorf("read body: %w", err)}
	}

	return &httpwire.Reply{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
		Headers:    flattenHeader(resp.Header),
		Body:       decoded,
	}, nil
}

func isHopHeader(key string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}

// decodeBody reads the response body and undoes gzip/deflate compression
// the transport left in place (it only auto-decodes encodings it asked for
// itself; a client-supplied Accept-Encoding suppresses that).
func decodeBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.Uncompressed || len(raw) == 0 {
		return raw, nil
	}

	enc := strings.ToLower(resp.Header.Get("Content-Encoding"))
	switch {
	case strings.Contains(enc, "gzip"):
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case strings.Contains(enc, "deflate"):
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		return io.ReadAll(fr)
	default:
		return raw, nil
	}
}

// reasonPhrase extracts the reason text from resp.Status ("200 OK" -> "OK").
func reasonPhrase(resp *http.Response) string {
	_, reason, ok := strings.Cut(resp.Status, " ")
	if !ok {
		return http.StatusText(resp.StatusCode)
	}
	return reason
}

// flattenHeader turns http.Header's map form back into ordered lines.
// Go's client does not retain wire arrival order, so keys are emitted in
// sorted order for a deterministic response; values within a key keep their
// order.
func flattenHeader(h http.Header) []httpwire.Header {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]httpwire.Header, 0, len(h))
	for _, k := range keys {
		for _, v := range h[k] {
			out = append(out, httpwire.Header{Key: k, Value: v})
		}
	}
	return out
}
