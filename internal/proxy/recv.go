package proxy

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

var headerTerminator = []byte("\r\n\r\n")

// readRequestBytes reads one full request off c. It buffers until the
// header terminator is seen, then keeps reading until the declared
// Content-Length body is also buffered; without a Content-Length it stops
// at the terminator. The deadline covers the whole receive phase; expiry
// surfaces as an error and the caller treats the request as absent. EOF
// returns whatever arrived.
func readRequestBytes(c net.Conn, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = c.SetReadDeadline(time.Time{}) }()
	}

	bp := relayBuffers.Get().(*[]byte)
	defer relayBuffers.Put(bp)
	chunk := *bp

	var buf []byte
	for {
		n, err := c.Read(chunk)
		buf = append(buf, chunk[:n]...)

		if end := bytes.Index(buf, headerTerminator); end >= 0 {
			want := end + len(headerTerminator) + declaredContentLength(buf[:end])
			if len(buf) >= want {
				return buf, nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf, nil
			}
			return nil, err
		}
	}
}

// declaredContentLength scans the header block for the first line matching
// the literal prefix "content-length:" case-insensitively. Unparsable or
// negative values count as 0.
func declaredContentLength(header []byte) int {
	for _, line := range strings.Split(string(header), "\r\n") {
		if len(line) < 15 || !strings.EqualFold(line[:15], "content-length:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(line[15:]))
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}
