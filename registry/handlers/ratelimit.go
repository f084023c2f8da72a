package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bkrepo/registry/configuration"
	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/registry/api/errcode"
	"golang.org/x/time/rate"
)

// clientIdleTimeout is how long a client limiter is kept after its last
// request.
const clientIdleTimeout = 10 * time.Minute

// RateLimitHandler rejects requests over the global budget, or over the budget
// of the requesting client, with TOOMANYREQUESTS.
func RateLimitHandler(config configuration.RateLimit, next http.Handler) http.Handler {
	if !config.Enabled {
		return next
	}
	return newRateLimiter(config, clock.New(), next)
}

func newRateLimiter(config configuration.RateLimit, clk clock.Clock, next http.Handler) *rateLimiter {
	return &rateLimiter{
		next:        next,
		global:      rate.NewLimiter(rate.Limit(config.Global.RPS), burst(config.Global)),
		perIP:       config.PerIP,
		clock:       clk,
		clients:     make(map[string]*clientLimiter),
		lastSweep:   clk.Now(),
		trustedNets: parseTrustedProxies(config.TrustedProxies),
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	next   http.Handler
	global *rate.Limiter
	perIP  configuration.Limit
	clock  clock.Clock

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time

	trustedNets []*net.IPNet
}

func (rl *rateLimiter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !rl.global.Allow() {
		rl.reject(w, r, "global")
		return
	}

	ip := clientIP(r, rl.trustedNets)
	if !rl.limiter(ip).Allow() {
		rl.reject(w, r, "ip")
		return
	}

	rl.next.ServeHTTP(w, r)
}

// limiter returns the limiter of ip, dropping the limiters of clients idle
// for longer than clientIdleTimeout at most once per timeout.
func (rl *rateLimiter) limiter(ip string) *rate.Limiter {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= clientIdleTimeout {
		for k, c := range rl.clients {
			if now.Sub(c.lastSeen) >= clientIdleTimeout {
				delete(rl.clients, k)
			}
		}
		rl.lastSweep = now
	}

	c, ok := rl.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.perIP.RPS), burst(rl.perIP))}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (rl *rateLimiter) reject(w http.ResponseWriter, r *http.Request, scope string) {
	log.GetLogger(log.WithContext(r.Context())).WithFields(log.Fields{
		"remote_addr": r.RemoteAddr,
		"scope":       scope,
	}).Info("request rate limited")

	w.Header().Set(apiVersionHeader, "registry/2.0")
	w.Header().Set("Retry-After", "1")
	if err := errcode.ServeJSON(w, errcode.ErrorCodeTooManyRequests); err != nil {
		log.GetLogger(log.WithContext(r.Context())).WithError(err).Error("error serving error json")
	}
}

func burst(l configuration.Limit) int {
	if l.Burst > 0 {
		return l.Burst
	}
	if b := int(l.RPS); b > 1 {
		return b
	}
	return 1
}

// parseTrustedProxies converts addresses and CIDR ranges to networks. Invalid
// entries are ignored.
func parseTrustedProxies(proxies []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, proxy := range proxies {
		if _, ipNet, err := net.ParseCIDR(proxy); err == nil {
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(proxy)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// clientIP returns the address of the caller. Forwarding headers are only
// honored when the connection comes from a trusted proxy.
func clientIP(r *http.Request, trustedNets []*net.IPNet) string {
	remoteIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteIP = r.RemoteAddr
	}

	if !isTrustedProxy(remoteIP, trustedNets) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// the first entry is the originating client
		if i := strings.Index(xff, ","); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return remoteIP
}

func isTrustedProxy(ip string, trustedNets []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, ipNet := range trustedNets {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}
