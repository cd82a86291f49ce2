package dialer

import (
	"context"
	"net"
	"time"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Config struct {
	// DialTimeout bounds DNS lookup plus TCP connect for one dial.
	DialTimeout time.Duration

	KeepAlive net.KeepAliveConfig
}
