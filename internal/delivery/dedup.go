package delivery

import "sync"

// errorDedup suppresses repeated log lines for the same recurring error.
// The first occurrence of a signature always logs; after that only every
// tenth occurrence does.
type errorDedup struct {
	mu     sync.Mutex
	counts map[string]int
}

func newErrorDedup() *errorDedup {
	return &errorDedup{counts: make(map[string]int)}
}

// shouldLog records one occurrence of signature and reports whether this
// occurrence should be logged. It also returns the running count.
func (d *errorDedup) shouldLog(signature string) (bool, int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counts[signature]++
	n := d.counts[signature]
	return n == 1 || n%10 == 0, n
}
