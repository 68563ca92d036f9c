package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// rateEntry tracks request counts per IP within a fixed window.
type rateEntry struct {
	count     int
	windowEnd time.Time
	mu        sync.Mutex
}

// RateLimiter caps requests per client IP. Each call owns its own table, so
// routes can carry different limits.
func RateLimiter(limit int, window time.Duration) gin.HandlerFunc {
	var (
		entries = make(map[string]*rateEntry)
		mu      sync.Mutex
	)
	go purgeExpired(&mu, entries, window)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		entry, exists := entries[ip]
		if !exists {
			entry = &rateEntry{}
			entries[ip] = entry
		}
		mu.Unlock()

		entry.mu.Lock()
		defer entry.mu.Unlock()

		now := time.Now()
		if now.After(entry.windowEnd) {
			entry.count = 0
			entry.windowEnd = now.Add(window)
		}

		entry.count++
		if entry.count > limit {
			c.Header("Retry-After", entry.windowEnd.Format(time.RFC1123))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				apierror.New(apierror.KindConcurrencyConflict, "too many requests; try again shortly"))
			return
		}
		c.Next()
	}
}

// purgeExpired drops idle IPs so the table does not grow without bound.
func purgeExpired(mu *sync.Mutex, entries map[string]*rateEntry, window time.Duration) {
	interval := 5 * window
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		mu.Lock()
		purged := 0
		for ip, entry := range entries {
			entry.mu.Lock()
			if now.After(entry.windowEnd) {
				delete(entries, ip)
				purged++
			}
			entry.mu.Unlock()
		}
		remaining := len(entries)
		mu.Unlock()

		if purged > 0 {
			log.Debug().Int("purged", purged).Int("remaining", remaining).Msg("rate limiter table purged")
		}
	}
}
