package proxy

import "sync"

// relayChunkSize is the fixed read size used on both the receive path and
// the tunnel relay.
const relayChunkSize = 4096

// relayBuffers recycles relay chunks so long-lived tunnels don't churn
// allocations.
var relayBuffers = sync.Pool{
	New: func() any {
		b := make([]byte, relayChunkSize)
		// The pointer avoids a heap allocation when converting a
		// non-pointer to an interface{}.
		return &b
	},
}
