package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"callcenter-service/pkg/response"

	"go.uber.org/zap"
)

// Limiter is the counter store behind RateLimiter. *cache.Cache satisfies it.
type Limiter interface {
	IncrWithExpire(ctx context.Context, namespace, key string, window time.Duration) (int64, error)
	Get(ctx context.Context, namespace, key string) (string, error)
	Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error
	GetTTL(ctx context.Context, namespace, key string) (time.Duration, error)
}

// ParseTrustedProxies accepts CIDRs and bare addresses.
func ParseTrustedProxies(list []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

func trustedAddr(a netip.Addr, trusted []netip.Prefix) bool {
	a = a.Unmap()
	for _, p := range trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// ClientIP returns the peer address of r. Forwarding headers count only when
// the peer is a trusted proxy; X-Forwarded-For is then walked right to left
// and the first untrusted hop wins.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !trustedAddr(peer, trusted) {
		return host
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		if !trustedAddr(hop, trusted) {
			return hop.Unmap().String()
		}
	}
	if real, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return real.Unmap().String()
	}
	return host
}

func retryAfter(w http.ResponseWriter, d time.Duration) {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}

// RateLimiter counts requests per client in a fixed window and blocks the
// client for blockDuration once limit is exceeded. A nil store or a store
// error lets the request through.
func RateLimiter(store Limiter, limit int, window, blockDuration time.Duration, keyPrefix string, trusted []netip.Prefix, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 200*time.Millisecond)
			defer cancel()

			key := "ip:" + ClientIP(r, trusted)
			blockKey := key + ":blocked"

			if blocked, err := store.Get(ctx, keyPrefix, blockKey); err == nil && blocked == "1" {
				ttl, err := store.GetTTL(ctx, keyPrefix, blockKey)
				if err != nil || ttl <= 0 {
					ttl = blockDuration
				}
				retryAfter(w, ttl)
				response.ErrorWithDetail(w, r, http.StatusTooManyRequests,
					"too many requests, try again in "+ttl.Round(time.Second).String(), "rate_limited", nil)
				return
			}

			count, err := store.IncrWithExpire(ctx, keyPrefix, key, window)
			if err != nil {
				logger.Warn("rate limiter unavailable, failing open", zap.String("key", keyPrefix+":"+key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if count > int64(limit) {
				if err := store.Set(ctx, keyPrefix, blockKey, "1", blockDuration); err != nil {
					logger.Warn("failed to record rate limit block", zap.String("key", keyPrefix+":"+blockKey), zap.Error(err))
				}
				logger.Warn("client blocked by rate limiter", zap.String("key", keyPrefix+":"+key), zap.Int64("count", count))
				retryAfter(w, blockDuration)
				response.ErrorWithDetail(w, r, http.StatusTooManyRequests,
					"too many requests, blocked for "+blockDuration.String(), "rate_limited", nil)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
			next.ServeHTTP(w, r)
		})
	}
}
