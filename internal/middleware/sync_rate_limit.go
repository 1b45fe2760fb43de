package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== 跑批触发限流中间件 ====================

// SyncRateLimit 手动触发限流中间件
// 跑批是全局单例操作，只有全局一个限流维度
//
// 使用示例:
//
//	router.POST("/api/sync/run",
//	    middleware.SyncRateLimit(middleware.SyncTypeRun, 0),
//	    syncCtl.StartRun,
//	)
//
// 参数:
//   - syncType: 触发类型
//   - interval: 冷却间隔，0 表示使用默认值
func SyncRateLimit(syncType SyncType, interval time.Duration) gin.HandlerFunc {
	if interval == 0 {
		interval = GetInterval(syncType)
	}

	return func(c *gin.Context) {
		key := GlobalSyncKey(syncType)

		result := GetLimiter().Check(key, interval)
		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    429,
				"message": formatRetryMessage(result.RetryAfter),
				"data": gin.H{
					"retry_after": int(result.RetryAfter.Seconds()),
					"sync_type":   syncType,
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// formatRetryMessage 冷却提示文案
func formatRetryMessage(retryAfter time.Duration) string {
	seconds := int(retryAfter.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("操作过于频繁，请 %d 秒后重试", seconds)
	}
	return fmt.Sprintf("操作过于频繁，请 %d 分钟后重试", (seconds+59)/60)
}
