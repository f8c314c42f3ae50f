package booth

import (
	"sync"
	"time"
)

// SendLimiter rate-limits email sends per client IP.
type SendLimiter struct {
	mu     sync.Mutex
	sends  map[string][]time.Time
	max    int
	window time.Duration
	stop   chan struct{}
	once   sync.Once
}

// NewSendLimiter creates a SendLimiter that allows max sends per window.
func NewSendLimiter(max int, window time.Duration) *SendLimiter {
	l := &SendLimiter{
		sends:  make(map[string][]time.Time),
		max:    max,
		window: window,
		stop:   make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *SendLimiter) cleanup() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
		cutoff := time.Now().Add(-l.window)
		l.mu.Lock()
		for ip, hits := range l.sends {
			kept := prune(hits, cutoff)
			if len(kept) == 0 {
				delete(l.sends, ip)
			} else {
				l.sends[ip] = kept
			}
		}
		l.mu.Unlock()
	}
}

// Close stops the cleanup goroutine.
func (l *SendLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

// Allow checks if the IP has not exceeded the rate limit and records the send.
func (l *SendLimiter) Allow(ip string) bool {
	cutoff := time.Now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := prune(l.sends[ip], cutoff)
	if len(kept) >= l.max {
		l.sends[ip] = kept
		return false
	}
	l.sends[ip] = append(kept, time.Now())
	return true
}

// Refund forgets the most recent send of ip, for sends that failed before
// anything was delivered.
func (l *SendLimiter) Refund(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hits := l.sends[ip]; len(hits) > 0 {
		l.sends[ip] = hits[:len(hits)-1]
	}
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
