package ws

import (
	"math/rand"
	"time"
)

// backoff produces exponentially growing reconnect delays with jitter.
// 抖动避免多个会话在同一时刻重连造成风控限频
type backoff struct {
	base    time.Duration
	cap     time.Duration
	attempt int
	rng     *rand.Rand
}

func newBackoff(base, capDur time.Duration) *backoff {
	if base <= 0 {
		base = time.Second
	}
	if capDur < base {
		capDur = 30 * time.Second
	}
	return &backoff{
		base: base,
		cap:  capDur,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay for the upcoming attempt: half of the capped
// exponential value plus a random half (so the result stays in [d/2, d]).
func (b *backoff) Next() time.Duration {
	d := b.base << b.attempt
	if d > b.cap || d <= 0 {
		d = b.cap
	} else {
		b.attempt++
	}
	half := d / 2
	return half + time.Duration(b.rng.Int63n(int64(half)+1))
}

// Reset restarts the schedule after a successful connection.
func (b *backoff) Reset() {
	b.attempt = 0
}
