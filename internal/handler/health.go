package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/infra"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Health returns a JSON health check response.
// Checks DB and Redis connectivity; never exposes credentials or internals.
// Redis and the lease breaker are reported but only the database decides the
// status code: claims fall back to the in-process set without Redis.
// deadJobs, when set, reports the dead letter queue depth.
func Health(db *gorm.DB, rdb *redis.Client, leaseCB *infra.CircuitBreaker, deadJobs func(ctx context.Context) (int64, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus := "connected"
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "error"
		}

		redisStatus := "disabled"
		if rdb != nil {
			redisStatus = "connected"
			if rdb.Ping(ctx).Err() != nil {
				redisStatus = "error"
			}
		}

		leases := "disabled"
		if leaseCB != nil {
			leases = leaseCB.State().String()
		}

		var dlq int64 = -1
		if deadJobs != nil && redisStatus == "connected" {
			if n, err := deadJobs(ctx); err == nil {
				dlq = n
			}
		}

		status := http.StatusOK
		if dbStatus != "connected" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"ok":     status == http.StatusOK,
			"db":     dbStatus,
			"redis":  redisStatus,
			"leases": leases,
			"dlq":    dlq,
		})
	}
}
