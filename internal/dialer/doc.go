package dialer

// Package dialer provides the outbound TCP dialing used by the proxy.
//
// Both the CONNECT tunnel and the outbound HTTP client's transport dial
// through the same Dialer, so connect timeouts and keepalive settings apply
// uniformly to everything the proxy opens toward origin servers.
