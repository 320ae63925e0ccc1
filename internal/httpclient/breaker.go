package httpclient

import (
	"sync"
	"time"
)

// breaker stops calls to a remote that keeps exhausting its retries. Once
// failures reach threshold, each further failure extends the pause by step,
// up to max. Any answer from the remote closes it again.
type breaker struct {
	threshold int
	step      time.Duration
	max       time.Duration
	now       func() time.Time

	mu       sync.Mutex
	failures int
	openTill time.Time
}

func newBreaker() *breaker {
	return &breaker{threshold: 10, step: 30 * time.Second, max: 5 * time.Minute, now: time.Now}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.now().Before(b.openTill)
}

func (b *breaker) success() {
	b.mu.Lock()
	b.failures = 0
	b.openTill = time.Time{}
	b.mu.Unlock()
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if over := b.failures - b.threshold + 1; over > 0 {
		b.openTill = b.now().Add(min(time.Duration(over)*b.step, b.max))
	}
}
