package httpwire

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseRequestGet(t *testing.T) {
	t.Parallel()

	req, err := ParseRequest([]byte("GET /foo?x=1 HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	if err != nil {
		t.Fatal(err)
	}

	if req.Method != "GET" {
		t.Errorf("method = %q, want GET", req.Method)
	}
	if req.Target != "/foo?x=1" {
		t.Errorf("target = %q, want /foo?x=1", req.Target)
	}
	if req.Proto != "HTTP/1.1" {
		t.Errorf("proto = %q, want HTTP/1.1", req.Proto)
	}
	if req.Path != "/foo" {
		t.Errorf("path = %q, want /foo", req.Path)
	}
	if req.Query != "x=1" {
		t.Errorf("query = %q, want x=1", req.Query)
	}
	if req.Host != "example.com" {
		t.Errorf("host = %q, want example.com", req.Host)
	}
	if got := req.Headers.Get("host"); got != "example.com" {
		t.Errorf("case-insensitive Host lookup = %q", got)
	}
	if len(req.Body) != 0 {
		t.Errorf("body = %q, want empty", req.Body)
	}
}

func TestParseRequestErrors(t *testing.T) {
	t.Parallel()

	if _, err := ParseRequest(nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("empty input: err = %v, want ErrEmptyInput", err)
	}

	if _, err := ParseRequest([]byte("BADLINE\r\n\r\n")); !errors.Is(err, ErrMalformedRequestLine) {
		t.Errorf("bad request line: err = %v, want ErrMalformedRequestLine", err)
	}
}

func TestParseRequestHeaders(t *testing.T) {
	t.Parallel()

	raw := "POST /submit HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"X-Custom:  spaced value \r\n" +
		"not a header line\r\n" +
		"X-Colons: a:b:c\r\n" +
		"\r\n" +
		"line1\r\nline2"

	req, err := ParseRequest([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}

	// The colon-less line is skipped, not fatal.
	if req.Headers.Len() != 3 {
		t.Fatalf("header count = %d, want 3", req.Headers.Len())
	}
	if got := req.Headers.Get("X-Custom"); got != "spaced value" {
		t.Errorf("X-Custom = %q, want trimmed value", got)
	}
	// Only the first colon splits key from value.
	if got := req.Headers.Get("X-Colons"); got != "a:b:c" {
		t.Errorf("X-Colons = %q, want a:b:c", got)
	}
	// Multi-line bodies are rejoined with CRLF.
	if !bytes.Equal(req.Body, []byte("line1\r\nline2")) {
		t.Errorf("body = %q", req.Body)
	}
}

func TestParseRequestHostResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "host header wins",
			raw:  "GET http://url-host.example/ HTTP/1.1\r\nHost: header-host.example\r\n\r\n",
			want: "header-host.example",
		},
		{
			name: "absolute-URI authority fallback",
			raw:  "GET http://url-host.example/path HTTP/1.1\r\n\r\n",
			want: "url-host.example",
		},
		{
			name: "no host at all",
			raw:  "GET /path HTTP/1.1\r\n\r\n",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.raw))
			if err != nil {
				t.Fatal(err)
			}
			if req.Host != tt.want {
				t.Errorf("host = %q, want %q", req.Host, tt.want)
			}
		})
	}
}

func TestParseRequestConnectTarget(t *testing.T) {
	t.Parallel()

	req, err := ParseRequest([]byte("CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if req.Method != "CONNECT" {
		t.Errorf("method = %q", req.Method)
	}
	if req.Target != "example.com:443" {
		t.Errorf("target = %q", req.Target)
	}
	if req.Path != "/" {
		t.Errorf("path = %q, want /", req.Path)
	}
	if req.Host != "example.com:443" {
		t.Errorf("host = %q", req.Host)
	}
}

func TestHeadersOrderAndCasing(t *testing.T) {
	t.Parallel()

	var h Headers
	h.Add("X-First", "1")
	h.Add("x-first", "2")
	h.Add("X-Second", "3")

	if got := h.Get("X-FIRST"); got != "1" {
		t.Errorf("Get = %q, want first occurrence", got)
	}

	all := h.All()
	if len(all) != 3 {
		t.Fatalf("len = %d", len(all))
	}
	if all[0].Key != "X-First" || all[1].Key != "x-first" || all[2].Key != "X-Second" {
		t.Errorf("order/casing not preserved: %v", all)
	}
}
