package application

import (
	"testing"
	"time"
)

func TestAccumulator(t *testing.T) {
	acc := newAccumulator(25)

	for i := 0; i < 2; i++ {
		if acc.Append(make([]float32, 10)) {
			t.Fatalf("append %d reported full at %d samples", i, acc.Len())
		}
	}
	if !acc.Append(make([]float32, 10)) {
		t.Fatal("expected full after 30 samples")
	}

	out := acc.Flush()
	if len(out) != 30 {
		t.Errorf("flushed samples: got %d, want 30", len(out))
	}
	if acc.Len() != 0 {
		t.Errorf("accumulator should be empty after flush, has %d", acc.Len())
	}

	acc.Append([]float32{1})
	if out[0] != 0 {
		t.Error("flushed buffer must not alias the new one")
	}
}

func TestCaptureConfig_Samples(t *testing.T) {
	cfg := DefaultCaptureConfig()

	if got := cfg.segmentSamples(); got != 160000 {
		t.Errorf("segment samples: got %d, want 160000", got)
	}
	if got := cfg.minTailSamples(); got != 8000 {
		t.Errorf("min tail samples: got %d, want 8000", got)
	}
	if got := samplesFor(250*time.Millisecond, 16000); got != 4000 {
		t.Errorf("samplesFor: got %d, want 4000", got)
	}
}
