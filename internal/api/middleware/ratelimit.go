package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/metrics"
)

const keyPrefix = "arsynox:"

// Rule limits one method and path prefix per client IP.
type Rule struct {
	Name     string
	Method   string
	Prefix   string
	Requests int
	Window   time.Duration
}

// DefaultRules protect the gateway and the write endpoints. The first
// matching rule applies.
var DefaultRules = []Rule{
	{Name: "file", Method: http.MethodGet, Prefix: "/file", Requests: 120, Window: time.Minute},
	{Name: "file", Method: http.MethodHead, Prefix: "/file", Requests: 120, Window: time.Minute},
	{Name: "upload", Method: http.MethodPost, Prefix: "/upload", Requests: 20, Window: time.Hour},
	{Name: "setup", Method: http.MethodPost, Prefix: "/setup", Requests: 10, Window: time.Minute},
	{Name: "setup", Method: http.MethodDelete, Prefix: "/setup", Requests: 10, Window: time.Minute},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
	// Rules replaces DefaultRules when non-empty.
	Rules []Rule
}

// RateLimiter keeps a sliding window log per client and rule in Redis.
// Redis failures let the request through.
type RateLimiter struct {
	client           *redis.Client
	rules            []Rule
	blocks           *IPBlocker
	logger           zerolog.Logger
	whitelist        []*net.IPNet
	whitelistIPs     map[string]bool
	autoBlockEnabled bool
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules
	}

	rl := &RateLimiter{
		client:           client,
		rules:            rules,
		blocks:           NewIPBlocker(client),
		logger:           logger,
		whitelistIPs:     make(map[string]bool),
		autoBlockEnabled: cfg.AutoBlockEnabled,
	}

	for _, entry := range cfg.Whitelist {
		if !strings.Contains(entry, "/") {
			rl.whitelistIPs[entry] = true
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
			continue
		}
		rl.whitelist = append(rl.whitelist, ipNet)
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// RealIP extracts the client IP. Edge proxy headers win over
// X-Forwarded-For, which wins over the connection address.
func RealIP(r *http.Request) string {
	for _, h := range []string{"CF-Connecting-IP", "Fly-Client-IP"} {
		if ip := r.Header.Get(h); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Allow records a hit for key and reports whether it fits in the window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	now := time.Now()
	cutoff := now.Add(-rule.Window).UnixMilli()

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: strconv.FormatInt(now.UnixNano(), 36)})
	pipe.PExpire(ctx, key, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true, Remaining: rule.Requests}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	count := int(countCmd.Val())
	resetAt := now.Add(rule.Window)
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(rule.Window)
	}

	return Decision{
		Allowed:   count < rule.Requests,
		Remaining: max(rule.Requests-count-1, 0),
		ResetAt:   resetAt,
	}, nil
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocks.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		rule, ok := rl.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := keyPrefix + "ratelimit:" + rule.Name + ":" + ip
		d, err := rl.Allow(r.Context(), key, rule)
		if err != nil {
			rl.logger.Error().Err(err).Msg("rate limiter unavailable; allowing request")
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retry := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))

			rl.trackViolation(r.Context(), ip)
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("rule", rule.Name).
				Msg("rate limit exceeded")

			metrics.RateLimitHits.WithLabelValues(rule.Name).Inc()
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) match(r *http.Request) (Rule, bool) {
	for _, rule := range rl.rules {
		if r.Method == rule.Method && strings.HasPrefix(r.URL.Path, rule.Prefix) {
			return rule, true
		}
	}
	return Rule{}, false
}

// trackViolation blocks an IP for a day after ten rejections within an hour.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlockEnabled {
		return
	}

	key := keyPrefix + "violations:ip:" + ip
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	if count == 1 {
		rl.client.Expire(ctx, key, time.Hour)
	}

	if count >= 10 {
		rl.blocks.Block(ctx, ip, 24*time.Hour, "repeated rate limit violations")
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Msg("IP auto-blocked for repeated violations")
	}
}

// IPBlocker manages temporary IP blocks.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string {
	return keyPrefix + "blocked:ip:" + ip
}

// IsBlocked reports whether ip is blocked. Lookup errors count as not blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	n, err := b.client.Exists(ctx, blockKey(ip)).Result()
	return err == nil && n > 0
}

// Block blocks an IP for the specified duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	b.client.Set(ctx, blockKey(ip), reason, duration)
}

// Unblock removes an IP block.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) {
	b.client.Del(ctx, blockKey(ip))
}
