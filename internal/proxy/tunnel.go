package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/spyglass-proxy/spyglass/internal/dialer"
	"github.com/spyglass-proxy/spyglass/internal/metrics"
)

// connectEstablished is written verbatim to the client once the upstream
// connect succeeds.
const connectEstablished = "HTTP/1.1 200 Connection established\r\n\r\n"

type tunnelState int

const (
	tunnelInit tunnelState = iota
	tunnelConnecting
	tunnelEstablished
	tunnelRelaying
	tunnelClosed
)

// TunnelError is a CONNECT failure that still owes the client an HTTP
// answer.
type TunnelError struct {
	Code    int
	Message string
	Err     error
}

func (e *TunnelError) Error() string { return e.Message }

func (e *TunnelError) Unwrap() error { return e.Err }

// Tunnel relays bytes opaquely between one CONNECT client and its upstream.
// It is owned by the goroutine handling that client connection and never
// shared.
type Tunnel struct {
	client net.Conn
	dialer dialer.Dialer
	m      *metrics.Metrics
	state  tunnelState

	// Established, if set, is called once after the success line has been
	// written, with the normalized host:port target.
	Established func(target string)
}

func NewTunnel(client net.Conn, d dialer.Dialer, m *metrics.Metrics) *Tunnel {
	return &Tunnel{client: client, dialer: d, m: m, state: tunnelInit}
}

// Run connects to the CONNECT target, answers the client, and relays until
// either side closes or ctx is canceled. Bytes are never inspected or
// transformed. A returned *TunnelError means no tunnel was established and
// the caller must answer with its code; any other state (including relay
// errors) means the tunnel ran and both endpoints are closed.
func (t *Tunnel) Run(ctx context.Context, target string) error {
	t.state = tunnelConnecting
	if _, _, err := net.SplitHostPort(target); err != nil {
		target = net.JoinHostPort(target, "443")
	}

	upstream, err := t.dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		t.state = tunnelClosed
		return classifyConnect(target, err)
	}

	t.state = tunnelEstablished
	if _, err := t.client.Write([]byte(connectEstablished)); err != nil {
		_ = upstream.Close()
		t.state = tunnelClosed
		// The client is gone; there is nobody to answer.
		return fmt.Errorf("write connect response: %w", err)
	}

	if t.Established != nil {
		t.Established(target)
	}

	t.state = tunnelRelaying
	t.m.TunnelsActive.Inc()
	err = t.relay(ctx, upstream)
	t.m.TunnelsActive.Dec()
	t.state = tunnelClosed
	return err
}

// relay copies 4096-byte chunks in both directions until either endpoint
// reaches end-of-stream or errors. A CONNECT tunnel is bidirectionally
// fate-shared: EOF on one side tears down both, and every exit path closes
// both endpoints. Cancellation closes the endpoints too, which unblocks the
// copies immediately.
func (t *Tunnel) relay(ctx context.Context, upstream net.Conn) error {
	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			_ = t.client.Close()
			_ = upstream.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	g := new(errgroup.Group)
	g.Go(func() error {
		defer closeBoth()
		return t.copyChunks(upstream, t.client, "client_to_upstream")
	})
	g.Go(func() error {
		defer closeBoth()
		return t.copyChunks(t.client, upstream, "upstream_to_client")
	})

	return g.Wait()
}

func (t *Tunnel) copyChunks(dst, src net.Conn, direction string) error {
	bp := relayBuffers.Get().(*[]byte)
	defer relayBuffers.Put(bp)
	buf := *bp

	for {
		n, err := src.Read(buf)
		if n > 0 {
			nw, werr := dst.Write(buf[:n])
			if werr != nil {
				if errors.Is(werr, net.ErrClosed) {
					return nil
				}
				return werr
			}
			if nw < n {
				// A zero or short send on a writable socket means the
				// connection is broken, not retryable.
				return io.ErrShortWrite
			}
			t.m.TunnelBytes.WithLabelValues(direction).Add(float64(n))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// classifyConnect maps an upstream connect failure to the response owed:
// timeout to 504, refused or unreachable to 502, anything else to 502 with
// the underlying message.
func classifyConnect(target string, err error) *TunnelError {
	var nerr net.Error
	if (errors.As(err, &nerr) && nerr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		return &TunnelError{
			Code:    504,
			Message: fmt.Sprintf("Gateway Timeout: Connection to %s timed out", target),
			Err:     err,
		}
	}

	var dnsErr *net.DNSError
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.As(err, &dnsErr) {
		return &TunnelError{
			Code:    502,
			Message: "Bad Gateway: Cannot connect to " + target,
			Err:     err,
		}
	}

	return &TunnelError{
		Code:    502,
		Message: "Bad Gateway: " + err.Error(),
		Err:     err,
	}
}
