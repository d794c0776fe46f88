package relay

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ConnLimiterConfig holds configuration for connection admission.
type ConnLimiterConfig struct {
	Limit     int           // connections per window and remote IP
	Window    time.Duration // defaults to one minute
	Whitelist []string      // IPs or CIDRs exempt from rate limiting
}

// ConnLimiter admits relay connections with a per-IP fixed window kept in
// Redis, so several relay instances share one budget.
type ConnLimiter struct {
	client       *redis.Client
	limit        int
	window       time.Duration
	logger       zerolog.Logger
	whitelist    []*net.IPNet
	whitelistIPs map[string]bool
}

// NewConnLimiter creates a connection limiter.
func NewConnLimiter(client *redis.Client, logger zerolog.Logger, cfg ConnLimiterConfig) *ConnLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	cl := &ConnLimiter{
		client:       client,
		limit:        cfg.Limit,
		window:       cfg.Window,
		logger:       logger.With().Str("component", "ratelimit").Logger(),
		whitelistIPs: make(map[string]bool),
	}

	// Parse whitelist entries
	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				cl.logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			cl.whitelist = append(cl.whitelist, ipNet)
		} else {
			cl.whitelistIPs[entry] = true
		}
	}

	return cl
}

// isWhitelisted checks if an IP is in the whitelist.
func (cl *ConnLimiter) isWhitelisted(ipStr string) bool {
	if cl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range cl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// Allow counts a connection from ip and reports whether it is within budget.
// Redis errors fail open.
func (cl *ConnLimiter) Allow(ctx context.Context, ip string) bool {
	if cl.limit <= 0 || cl.isWhitelisted(ip) {
		return true
	}

	now := time.Now()
	windowKey := fmt.Sprintf("ratelimit:conn:%s:%d", ip, now.Unix()/int64(cl.window.Seconds()))

	pipe := cl.client.Pipeline()
	count := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, cl.window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		cl.logger.Warn().Err(err).Msg("rate limit check failed, admitting connection")
		return true
	}

	if count.Val() > int64(cl.limit) {
		cl.logger.Warn().
			Str("type", "security").
			Str("event", "rate_limit_exceeded").
			Str("ip", ip).
			Int64("count", count.Val()).
			Msg("connection rate limit exceeded")
		return false
	}
	return true
}

// remoteIP extracts the host part of a connection's remote address.
func remoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	ip, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return ip
}
