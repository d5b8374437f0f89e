// Per-client request limiting for endpoints that hit the recorder database.
package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter allows limit requests per client in each fixed window.
// Stale windows are swept lazily from Allow.
type RateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	limit     int
	span      time.Duration
	lastSweep time.Time
	now       func() time.Time
	proxies   []netip.Prefix // peers whose X-Forwarded-For is believed
}

type window struct {
	start time.Time
	used  int
}

// NewRateLimiter creates a limiter allowing limit requests per span.
func NewRateLimiter(limit int, span time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		span:    span,
		now:     time.Now,
	}
}

// Allow records a request from key. When the window is spent it reports
// false and how long until the next window opens.
func (rl *RateLimiter) Allow(key string) (ok bool, remaining int, wait time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.span {
		rl.sweep(now)
	}

	w := rl.windows[key]
	if w == nil || now.Sub(w.start) >= rl.span {
		w = &window{start: now}
		rl.windows[key] = w
	}
	if w.used >= rl.limit {
		return false, 0, w.start.Add(rl.span).Sub(now)
	}
	w.used++
	return true, rl.limit - w.used, 0
}

// Clients returns how many clients currently hold a window.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

func (rl *RateLimiter) sweep(now time.Time) {
	for key, w := range rl.windows {
		if now.Sub(w.start) >= rl.span {
			delete(rl.windows, key)
		}
	}
	rl.lastSweep = now
}

// TrustProxies sets the peers (addresses or CIDR prefixes) allowed to report
// the client address through X-Forwarded-For.
func (rl *RateLimiter) TrustProxies(addrs ...string) error {
	prefixes := make([]netip.Prefix, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if p, err := netip.ParsePrefix(a); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		ip, err := netip.ParseAddr(a)
		if err != nil {
			return fmt.Errorf("trusted proxy %q: %w", a, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(ip.Unmap(), ip.Unmap().BitLen()))
	}
	rl.mu.Lock()
	rl.proxies = prefixes
	rl.mu.Unlock()
	return nil
}

func (rl *RateLimiter) trusted(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, p := range rl.proxies {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP returns the caller's address. X-Forwarded-For is only consulted
// when the direct peer is a trusted proxy; hops are read right to left and
// the first one that is not itself a trusted proxy is the client.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if !rl.trusted(peer) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !rl.trusted(hop) {
			return hop
		}
	}
	return peer
}

// RateLimitMiddleware answers 429 with Retry-After once a client's window is
// spent, and reports the remaining budget on allowed requests.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := rl.clientIP(r)
		ok, remaining, wait := rl.Allow(ip)
		if !ok {
			secs := int((wait + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			slog.Debug("rate limited", "ip", ip, "path", r.URL.Path, "retry_after", secs)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		next(w, r)
	}
}
