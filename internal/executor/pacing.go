package executor

import (
	"math/rand"
	"sync"
	"time"
)

// pacer produces the randomized human-scale delays between interactions.
type pacer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newPacer() *pacer {
	return &pacer{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// between returns a random duration in [min, max].
func (p *pacer) between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + time.Duration(p.rng.Int63n(int64(max-min+1)))
}

// sleep blocks for a random duration in [min, max].
func (p *pacer) sleep(min, max time.Duration) {
	time.Sleep(p.between(min, max))
}
