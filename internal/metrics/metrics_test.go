package metrics

import "testing"

func TestNewRegistersCollectors(t *testing.T) {
	t.Parallel()

	m := New()

	// Touch each collector once; Gather must see them all.
	m.ConnectionsTotal.Inc()
	m.RequestsTotal.WithLabelValues("GET", "200").Inc()
	m.RequestDuration.WithLabelValues("GET").Observe(0.01)
	m.TunnelsEstablished.Inc()
	m.TunnelsActive.Inc()
	m.TunnelBytes.WithLabelValues("client_to_upstream").Add(42)

	mfs, err := m.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}

	names := make(map[string]bool, len(mfs))
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"spyglass_connections_total",
		"spyglass_requests_total",
		"spyglass_request_duration_seconds",
		"spyglass_tunnels_established_total",
		"spyglass_tunnels_active",
		"spyglass_tunnel_bytes_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestNormalizeMethod(t *testing.T) {
	t.Parallel()

	if got := NormalizeMethod("CONNECT"); got != "CONNECT" {
		t.Errorf("got %q", got)
	}
	if got := NormalizeMethod("BREW"); got != "other" {
		t.Errorf("got %q", got)
	}
	if got := StatusLabel(502); got != "502" {
		t.Errorf("got %q", got)
	}
}
