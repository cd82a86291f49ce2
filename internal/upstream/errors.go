package upstream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
)

// Kind classifies an outbound failure by the response class it maps to.
type Kind int

const (
	// KindTimeout means the upstream did not connect or answer in time.
	KindTimeout Kind = iota
	// KindUnreachable means the upstream refused or could not be reached.
	KindUnreachable
	// KindProtocol is any other failure surfaced by the outbound client.
	KindProtocol
)

// Error is a tagged outbound failure. The orchestrator matches on Kind to
// choose the status code; every kind still yields a well-formed response.
type Error struct {
	Kind Kind
	Host string
	Err  error
}

func (e *Error) Error() string { return e.Message() }

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status this failure is answered with.
func (e *Error) StatusCode() int {
	if e.Kind == KindTimeout {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// Message returns the reason phrase and body text for the error response.
// It never contains CR or LF.
func (e *Error) Message() string {
	switch e.Kind {
	case KindTimeout:
		return "Gateway Timeout"
	case KindUnreachable:
		return "Bad Gateway: Cannot connect to " + e.Host
	default:
		return "Bad Gateway: " + e.Err.Error()
	}
}

// classify maps an http.Client error onto the taxonomy above.
func classify(host string, err error) *Error {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return &Error{Kind: KindTimeout, Host: host, Err: err}
	}

	var dnsErr *net.DNSError
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.As(err, &dnsErr) {
		return &Error{Kind: KindUnreachable, Host: host, Err: err}
	}

	return &Error{Kind: KindProtocol, Host: host, Err: err}
}
