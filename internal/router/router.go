package router

import (
	"github.com/gin-gonic/gin"

	"sheetorders_dev_v1_202608/internal/controller"
	"sheetorders_dev_v1_202608/internal/middleware"
)

// Controllers 控制器集合
type Controllers struct {
	Sync *controller.SyncController
}

// SetupRouter 创建 gin 引擎并注册所有路由
func SetupRouter(ctls *Controllers) *gin.Engine {
	r := gin.Default()
	InitRoutes(r, ctls)
	return r
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, ctls *Controllers) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"code": 200, "message": "ok"})
	})

	api := r.Group("/api")
	{
		// sync 跑批控制
		sync := api.Group("/sync")
		{
			// POST /api/sync/run 手动触发，带冷却
			sync.POST("/run",
				middleware.SyncRateLimit(middleware.SyncTypeRun, 0),
				ctls.Sync.StartRun,
			)
			sync.POST("/stop", ctls.Sync.Stop)

			// GET /api/sync/status
			sync.GET("/status", ctls.Sync.Status)
			sync.GET("/events", ctls.Sync.Events)
			sync.GET("/sheets", ctls.Sync.SheetProgress)

			// 失败行管理
			sync.GET("/failed", ctls.Sync.FailedRows)
			sync.POST("/retry",
				middleware.SyncRateLimit(middleware.SyncTypeRetry, 0),
				ctls.Sync.RetryFailed,
			)
		}
	}
}
