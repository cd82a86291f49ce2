package httpwire

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Parse failures. Only these two conditions are fatal; anything else in the
// input (odd headers, truncated bodies) still yields a Request.
var (
	ErrEmptyInput           = errors.New("empty request")
	ErrMalformedRequestLine = errors.New("malformed request line")
)

// Request is a structured view of one raw HTTP request.
type Request struct {
	Method string
	Target string // raw request-target: origin-form, absolute-URI, or CONNECT authority
	Proto  string // e.g. "HTTP/1.1"

	Headers Headers
	Body    []byte

	// Host is the resolved target host[:port]: the Host header when
	// present, else the target URL's authority, else "".
	Host  string
	Path  string
	Query string
}

// ParseRequest parses raw request bytes.
//
// Lines are split on CRLF. The first line must contain at least three
// space-separated tokens (method, target, version). Header lines run up to
// the first blank line, split on the first colon with both sides trimmed;
// lines without a colon are skipped. Everything after the blank line is the
// body, rejoined with CRLF. Body framing against Content-Length is the
// caller's job; this layer takes the bytes it is given.
func ParseRequest(data []byte) (*Request, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	lines := strings.Split(string(data), "\r\n")

	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedRequestLine, lines[0])
	}

	req := &Request{
		Method: parts[0],
		Target: parts[1],
		Proto:  parts[2],
	}

	bodyStart := len(lines)
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			bodyStart = i + 1
			break
		}
		key, value, ok := strings.Cut(lines[i], ":")
		if !ok {
			continue
		}
		req.Headers.Add(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	if bodyStart < len(lines) {
		req.Body = []byte(strings.Join(lines[bodyStart:], "\r\n"))
	}

	req.Path = "/"
	req.Host = req.Headers.Get("Host")
	if u, err := url.Parse(req.Target); err == nil {
		if u.Path != "" {
			req.Path = u.Path
		}
		req.Query = u.RawQuery
		if req.Host == "" {
			req.Host = u.Host
		}
	}

	return req, nil
}
