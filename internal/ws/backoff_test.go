package ws

import (
	"testing"
	"time"
)

func TestBackoffBoundsAndGrowth(t *testing.T) {
	b := newBackoff(time.Second, 30*time.Second)

	prevCeil := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := b.Next()
		if d < 500*time.Millisecond || d > 30*time.Second {
			t.Fatalf("attempt %d: delay %s out of [base/2, cap]", i, d)
		}
		// 指数上限单调不减
		ceil := time.Second << uint(i)
		if ceil > 30*time.Second {
			ceil = 30 * time.Second
		}
		if ceil < prevCeil {
			t.Fatalf("ceiling shrank at attempt %d", i)
		}
		if d > ceil {
			t.Fatalf("attempt %d: delay %s above ceiling %s", i, d, ceil)
		}
		prevCeil = ceil
	}
}

func TestBackoffReset(t *testing.T) {
	b := newBackoff(time.Second, 30*time.Second)
	for i := 0; i < 6; i++ {
		b.Next()
	}
	b.Reset()
	if d := b.Next(); d > time.Second {
		t.Fatalf("after reset first delay %s exceeds base", d)
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := newBackoff(0, 0)
	if b.base != time.Second || b.cap != 30*time.Second {
		t.Fatalf("defaults not applied: base=%s cap=%s", b.base, b.cap)
	}
}
