package httpwire

// Package httpwire implements the byte-level HTTP/1.1 framing used by the
// proxy: parsing a raw request off the wire into a structured Request, and
// rebuilding a wire-correct response from an upstream reply whose body has
// already been decoded.
//
// It deliberately accepts input that net/http would reject; the proxy's job
// is to observe and forward what clients actually send, not to police it.
// Only the request line is fatal to parse.
