package otel

import (
	"sort"
	"testing"
)

func TestMQHeaderCarrierRoundTrip(t *testing.T) {
	c := NewMQHeaderCarrier(nil)
	c.Set("traceparent", "00-abc-def-01")
	c.Set("tracestate", "k=v")

	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("Get(traceparent) = %q", got)
	}
	if got := c.Get("missing"); got != "" {
		t.Fatalf("Get(missing) = %q", got)
	}

	keys := c.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "traceparent" || keys[1] != "tracestate" {
		t.Fatalf("Keys = %v", keys)
	}
}

func TestMQHeaderCarrierIgnoresNonString(t *testing.T) {
	c := NewMQHeaderCarrier(map[string]interface{}{"x-attempt": int64(3)})
	if got := c.Get("x-attempt"); got != "" {
		t.Fatalf("non-string header leaked: %q", got)
	}
}
