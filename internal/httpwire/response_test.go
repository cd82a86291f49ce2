package httpwire

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestBuildError(t *testing.T) {
	t.Parallel()

	got := BuildError(502, "Bad Gateway: x")

	if !bytes.HasPrefix(got, []byte("HTTP/1.1 502 Bad Gateway: x\r\n")) {
		t.Errorf("status line wrong: %q", got)
	}
	if !bytes.HasSuffix(got, []byte("Bad Gateway: x")) {
		t.Errorf("body wrong: %q", got)
	}
	want := fmt.Sprintf("Content-Length: %d\r\n", len("Bad Gateway: x"))
	if !bytes.Contains(got, []byte(want)) {
		t.Errorf("missing %q in %q", want, got)
	}
	for _, h := range []string{"Content-Type: text/plain; charset=utf-8\r\n", "Connection: close\r\n"} {
		if !bytes.Contains(got, []byte(h)) {
			t.Errorf("missing %q", h)
		}
	}
}

// splitResponse cuts at the first \r\n\r\n, returning header text and body.
func splitResponse(t *testing.T, raw []byte) (string, []byte) {
	t.Helper()
	i := bytes.Index(raw, []byte("\r\n\r\n"))
	if i < 0 {
		t.Fatalf("no header/body separator in %q", raw)
	}
	return string(raw[:i+4]), raw[i+4:]
}

func TestBuildResponseContentLength(t *testing.T) {
	t.Parallel()

	body := bytes.Repeat([]byte("a"), 50)
	raw := BuildResponse(&Reply{
		StatusCode: 200,
		Reason:     "OK",
		Headers: []Header{
			{"Content-Length", "999"},
			{"Content-Encoding", "gzip"},
			{"Content-Type", "text/html"},
		},
		Body: body,
	})

	header, gotBody := splitResponse(t, raw)

	if !strings.Contains(header, "Content-Length: 50\r\n") {
		t.Errorf("Content-Length not recomputed: %q", header)
	}
	if strings.Count(strings.ToLower(header), "content-length:") != 1 {
		t.Errorf("Content-Length must be singular: %q", header)
	}
	if strings.Contains(strings.ToLower(header), "content-encoding") {
		t.Errorf("gzip Content-Encoding must be dropped: %q", header)
	}
	if !bytes.Equal(gotBody, body) {
		t.Errorf("body not byte-identical")
	}
}

func TestBuildResponseTransferEncodingDropped(t *testing.T) {
	t.Parallel()

	raw := BuildResponse(&Reply{
		StatusCode: 200,
		Headers: []Header{
			{"Transfer-Encoding", "chunked"},
			{"transfer-encoding", "chunked"},
		},
		Body: []byte("x"),
	})

	if bytes.Contains(bytes.ToLower(raw), []byte("transfer-encoding")) {
		t.Errorf("Transfer-Encoding survived: %q", raw)
	}
}

func TestBuildResponseHeaderNormalization(t *testing.T) {
	t.Parallel()

	raw := BuildResponse(&Reply{
		StatusCode: 301,
		Reason:     "Moved\r\nPermanently",
		Headers: []Header{
			{"LoCaTiOn", "http://example.com/"},
			{"", "dropped"},
			{"X-Multi", "a\r\nb"},
			{"Content-Encoding", "identity"},
		},
		Body: []byte("moved"),
	})

	header, _ := splitResponse(t, raw)

	if !strings.HasPrefix(header, "HTTP/1.1 301 MovedPermanently\r\n") {
		t.Errorf("CR/LF must be stripped from reason: %q", header)
	}
	if !strings.Contains(header, "LoCaTiOn: http://example.com/\r\n") {
		t.Errorf("key casing not preserved: %q", header)
	}
	if strings.Contains(header, "dropped") {
		t.Errorf("empty-key header survived: %q", header)
	}
	if !strings.Contains(header, "X-Multi: a  b\r\n") {
		t.Errorf("CR/LF in value not replaced: %q", header)
	}
	// identity encoding passes through untouched.
	if !strings.Contains(header, "Content-Encoding: identity\r\n") {
		t.Errorf("non-compressed Content-Encoding dropped: %q", header)
	}
}

func TestBuildResponseSeparatorExactlyOnce(t *testing.T) {
	t.Parallel()

	body := []byte("payload\r\n\r\nwith separator bytes")
	raw := BuildResponse(&Reply{StatusCode: 200, Reason: "", Body: body})

	header, gotBody := splitResponse(t, raw)
	if !strings.HasSuffix(header, "\r\n\r\n") || strings.Count(header, "\r\n\r\n") != 1 {
		t.Errorf("header block must end with exactly one separator: %q", header)
	}
	if !strings.HasPrefix(header, "HTTP/1.1 200 OK\r\n") {
		t.Errorf("empty reason must default to OK: %q", header)
	}
	if !bytes.Equal(gotBody, body) {
		t.Errorf("body = %q, want %q", gotBody, body)
	}
}

func TestBuildResponseEmptyBody(t *testing.T) {
	t.Parallel()

	raw := BuildResponse(&Reply{
		StatusCode: 204,
		Reason:     "No Content",
		Headers:    []Header{{"Content-Length", "0"}},
	})

	if bytes.Contains(bytes.ToLower(raw), []byte("content-length")) {
		t.Errorf("zero-length body must not carry Content-Length: %q", raw)
	}
	if !bytes.HasSuffix(raw, []byte("\r\n\r\n")) {
		t.Errorf("response must end at header separator: %q", raw)
	}
}

func TestBuildResponseHeaderOrder(t *testing.T) {
	t.Parallel()

	raw := BuildResponse(&Reply{
		StatusCode: 200,
		Headers: []Header{
			{"X-A", "1"},
			{"X-B", "2"},
			{"X-C", "3"},
		},
		Body: []byte("ok"),
	})

	header, _ := splitResponse(t, raw)
	a := strings.Index(header, "X-A:")
	b := strings.Index(header, "X-B:")
	c := strings.Index(header, "X-C:")
	if a < 0 || b < 0 || c < 0 || !(a < b && b < c) {
		t.Errorf("relative header order not preserved: %q", header)
	}
}
