package httpwire

import "strings"

// Header is a single header line as it appeared on the wire.
type Header struct {
	Key   string
	Value string
}

// Headers keeps header lines in wire order with their original key casing.
// Lookups are case-insensitive and resolve to the first occurrence, so the
// exact bytes a client sent can round-trip back out unchanged.
type Headers struct {
	list  []Header
	index map[string]int // lowercased key -> first index in list
}

// Add appends a header line, preserving insertion order and key casing.
func (h *Headers) Add(key, value string) {
	if h.index == nil {
		h.index = make(map[string]int)
	}
	lower := strings.ToLower(key)
	if _, ok := h.index[lower]; !ok {
		h.index[lower] = len(h.list)
	}
	h.list = append(h.list, Header{Key: key, Value: value})
}

// Get returns the value of the first header matching key case-insensitively,
// or "" if absent.
func (h *Headers) Get(key string) string {
	i, ok := h.index[strings.ToLower(key)]
	if !ok {
		return ""
	}
	return h.list[i].Value
}

// Has reports whether any header matches key case-insensitively.
func (h *Headers) Has(key string) bool {
	_, ok := h.index[strings.ToLower(key)]
	return ok
}

// Len returns the number of header lines.
func (h *Headers) Len() int { return len(h.list) }

// All returns the header lines in wire order. The slice is shared; callers
// must not modify it.
func (h *Headers) All() []Header { return h.list }

// Map flattens the headers into a plain map keyed by the original casing.
// Later duplicates of the exact same key win, matching how the request log
// has always recorded them.
func (h *Headers) Map() map[string]string {
	m := make(map[string]string, len(h.list))
	for _, hdr := range h.list {
		m[hdr.Key] = hdr.Value
	}
	return m
}
