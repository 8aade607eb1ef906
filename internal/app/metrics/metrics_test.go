package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetActiveFeedsPerChain(t *testing.T) {
	SetActiveFeeds("1", 12)
	SetActiveFeeds("31337", 3)
	// A second chain's cycle must not clobber the first chain's count.
	SetActiveFeeds("1", 12)

	if got := testutil.ToFloat64(activeFeeds.WithLabelValues("1")); got != 12 {
		t.Fatalf("chain 1: expected 12 active feeds, got %v", got)
	}
	if got := testutil.ToFloat64(activeFeeds.WithLabelValues("31337")); got != 3 {
		t.Fatalf("chain 31337: expected 3 active feeds, got %v", got)
	}
}
