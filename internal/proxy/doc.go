package proxy

// Package proxy implements the listener side of the proxy: accepting client
// connections, framing one request per connection off the raw socket,
// dispatching it to the outbound HTTP client or a CONNECT tunnel, and
// writing the wire-correct result back.
//
// Each accepted connection is handled by its own goroutine; a slow client
// or a long-lived tunnel never stalls the accept loop or other clients.
