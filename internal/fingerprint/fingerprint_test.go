package fingerprint

import (
	"testing"
	"time"
)

func TestGenerateShapeAndUniqueness(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	for _, r := range a {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			t.Fatalf("expected lowercase hex, found %q", r)
		}
	}

	b, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a == b {
		t.Fatal("expected two independent calls to differ")
	}
}

func TestExponentialBackoffWithJitterCapsAtMax(t *testing.T) {
	base := 10 * time.Millisecond
	max := 100 * time.Millisecond
	for attempt := 0; attempt < 20; attempt++ {
		d := ExponentialBackoffWithJitter(attempt, base, max)
		if d < 0 {
			t.Fatalf("attempt %d: negative delay %v", attempt, d)
		}
		if d > max+max/4 {
			t.Fatalf("attempt %d: delay %v exceeds cap plus jitter", attempt, d)
		}
	}
}

func TestExponentialBackoffWithJitterGrows(t *testing.T) {
	base := 10 * time.Millisecond
	max := 10 * time.Second
	// Jitter is ±25%; sampling several times should show growth in the
	// expected range even with noise.
	var sawGrowth bool
	for i := 0; i < 50; i++ {
		d0 := ExponentialBackoffWithJitter(0, base, max)
		d3 := ExponentialBackoffWithJitter(3, base, max)
		if d3 > d0 {
			sawGrowth = true
			break
		}
	}
	if !sawGrowth {
		t.Fatal("expected later attempts to produce larger delays at least some of the time")
	}
}
