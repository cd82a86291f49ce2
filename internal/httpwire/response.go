package httpwire

import (
	"fmt"
	"strings"
)

// Reply is an upstream response after the outbound client has executed the
// request. Body is always the fully decoded payload: the outbound client
// guarantees any chunked framing and gzip/deflate compression have been
// undone, so Content-Length can be recomputed from it unconditionally.
type Reply struct {
	StatusCode int
	Reason     string
	Headers    []Header
	Body       []byte
}

var valueSanitizer = strings.NewReplacer("\r", " ", "\n", " ")

// BuildError renders the minimal error response used on every failure path.
// message doubles as reason phrase and body; callers pass strings free of
// CR/LF.
func BuildError(code int, message string) []byte {
	body := []byte(message)

	headerLines := []string{
		fmt.Sprintf("HTTP/1.1 %d %s", code, message),
		"Content-Type: text/plain; charset=utf-8",
		fmt.Sprintf("Content-Length: %d", len(body)),
		"Connection: close",
		"",
	}

	return append([]byte(strings.Join(headerLines, "\r\n")+"\r\n"), body...)
}

// BuildResponse reconstructs the wire form of an upstream reply.
//
// Header normalization, in order: Transfer-Encoding is dropped (the body is
// a fixed byte sequence now), Content-Encoding is dropped when it names
// gzip or deflate (the body was decompressed), empty keys are dropped, and
// CR/LF inside values become spaces. Key casing and relative order are
// otherwise preserved. Exactly one Content-Length header is emitted,
// recomputed from the body, and only when the body is non-empty.
func BuildResponse(r *Reply) []byte {
	reason := r.Reason
	if reason == "" {
		reason = "OK"
	}
	reason = strings.ReplaceAll(reason, "\r", "")
	reason = strings.ReplaceAll(reason, "\n", "")

	lines := []string{fmt.Sprintf("HTTP/1.1 %d %s", r.StatusCode, reason)}

	for _, h := range r.Headers {
		key := strings.TrimSpace(h.Key)
		if key == "" {
			continue
		}
		lower := strings.ToLower(key)
		value := strings.TrimSpace(h.Value)

		switch lower {
		case "transfer-encoding":
			continue
		case "content-length":
			// Replaced below with the recomputed value.
			continue
		case "content-encoding":
			enc := strings.ToLower(value)
			if strings.Contains(enc, "gzip") || strings.Contains(enc, "deflate") {
				continue
			}
		}

		lines = append(lines, key+": "+valueSanitizer.Replace(value))
	}

	if len(r.Body) > 0 {
		cl := fmt.Sprintf("Content-Length: %d", len(r.Body))
		// Insert before the header/body separator if one is already
		// present, else as the last header line.
		inserted := false
		for i, line := range lines {
			if strings.TrimSpace(line) == "" && i > 0 {
				lines = append(lines[:i], append([]string{cl}, lines[i:]...)...)
				inserted = true
				break
			}
		}
		if !inserted {
			lines = append(lines, cl)
		}
	}

	lines = append(lines, "")
	text := strings.Join(lines, "\r\n")
	// The header block must end with exactly one \r\n\r\n.
	if !strings.HasSuffix(text, "\r\n\r\n") {
		if strings.HasSuffix(text, "\r\n") {
			text += "\r\n"
		} else {
			text += "\r\n\r\n"
		}
	}

	return append([]byte(text), r.Body...)
}
