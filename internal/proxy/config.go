package proxy

import (
	"net"
	"time"

	"github.com/spyglass-proxy/spyglass/internal/dialer"
)

type Config struct {
	// ReceiveTimeout bounds the whole receive phase of one client
	// request, status line through declared body.
	ReceiveTimeout time.Duration

	// AcceptRate throttles accepted connections per second. 0 disables.
	AcceptRate float64

	KeepAlive net.KeepAliveConfig

	// Dialer opens the upstream connections for CONNECT tunnels.
	Dialer dialer.Dialer
}
