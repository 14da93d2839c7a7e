package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectors_RecordCallLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.CallStarted("video")
	c.CallFinished("ended", "hangup", 42*time.Second)

	if got := testutil.ToFloat64(c.callsStarted.WithLabelValues("video")); got != 1 {
		t.Fatalf("expected 1 started call, got %v", got)
	}
	if got := testutil.ToFloat64(c.callsFinished.WithLabelValues("ended", "hangup")); got != 1 {
		t.Fatalf("expected 1 finished call, got %v", got)
	}
	if got := testutil.ToFloat64(c.activeCalls); got != 0 {
		t.Fatalf("expected gauge back at 0, got %v", got)
	}
}

func TestCollectors_NilIsNoop(t *testing.T) {
	var c *Collectors
	c.CallStarted("audio")
	c.SignalingMessage("offer", "out", true)
	c.PresenceWrite("online", false)
	c.Reaped("sessions", 3)
}
