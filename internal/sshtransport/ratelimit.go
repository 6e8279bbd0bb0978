package sshtransport

import (
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// ConnectionLimiter token-buckets new connection attempts per source IP,
// the "connection-level policy" rate-limit hook named in SPEC_FULL.md §11.
// Entries are created lazily and never evicted within a process lifetime;
// a production deployment is expected to be restarted periodically or
// fronted by a connection-count cap that bounds the map's size.
type ConnectionLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewConnectionLimiter builds a limiter allowing connectionsPerSecond new
// connections per source IP, with the given burst allowance. A
// connectionsPerSecond of zero disables limiting (Allow always true).
func NewConnectionLimiter(connectionsPerSecond float64, burst int) *ConnectionLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ConnectionLimiter{
		rps:      rate.Limit(connectionsPerSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a new connection from addr may proceed, consuming
// one token from that source IP's bucket if so.
func (c *ConnectionLimiter) Allow(addr net.Addr) bool {
	if c.rps <= 0 {
		return true
	}
	host := hostOf(addr)

	c.mu.Lock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.rps, c.burst)
		c.limiters[host] = l
	}
	c.mu.Unlock()

	return l.Allow()
}

func hostOf(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
