package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sheetorders_dev_v1_202608/internal/api/dto"
	"sheetorders_dev_v1_202608/internal/service"
)

// SyncController 跑批控制器
type SyncController struct {
	engine *service.SyncEngine
}

// NewSyncController 创建跑批控制器
func NewSyncController(engine *service.SyncEngine) *SyncController {
	return &SyncController{engine: engine}
}

// ==================== Handler 实现 ====================

// StartRun 手动触发跑批
// @Summary 手动触发一次增量跑批
// @Tags Sync
// @Param body body dto.StartRunRequest false "force=true 时忽略行指纹全量重处理"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{} "已有跑批在进行"
// @Router /api/sync/run [post]
func (c *SyncController) StartRun(ctx *gin.Context) {
	var req dto.StartRunRequest
	// body 可以不传，默认增量
	_ = ctx.ShouldBindJSON(&req)

	runID, err := c.engine.StartRun(req.Force)
	if err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			ctx.JSON(http.StatusConflict, gin.H{"code": 409, "message": "已有跑批在进行"})
			return
		}
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error()})
		return
	}

	ctx.JSON(200, gin.H{
		"code":    200,
		"message": "跑批已触发",
		"data":    gin.H{"run_id": runID, "force": req.Force},
	})
}

// Stop 请求停止当前跑批
// @Summary 停止当前跑批（行边界生效）
// @Tags Sync
// @Router /api/sync/stop [post]
func (c *SyncController) Stop(ctx *gin.Context) {
	c.engine.Stop()
	ctx.JSON(200, gin.H{"code": 200, "message": "停止请求已提交"})
}

// Status 跑批状态
// @Summary 当前（或最近一次）跑批状态
// @Tags Sync
// @Router /api/sync/status [get]
func (c *SyncController) Status(ctx *gin.Context) {
	ctx.JSON(200, gin.H{
		"code":    200,
		"message": "success",
		"data":    c.engine.Status(),
	})
}

// Events 拉取近期事件
// @Summary 拉取跑批事件（非阻塞，最多一批 100 条）
// @Tags Sync
// @Router /api/sync/events [get]
func (c *SyncController) Events(ctx *gin.Context) {
	events := make([]dto.RunEvent, 0)
	ch := c.engine.Events()
	for len(events) < 100 {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			ctx.JSON(200, gin.H{"code": 200, "message": "success", "data": events})
			return
		}
	}
	ctx.JSON(200, gin.H{"code": 200, "message": "success", "data": events})
}

// FailedRows 失败行列表
// @Summary 失败行列表
// @Tags Sync
// @Param sheet query string false "只看指定工作表"
// @Router /api/sync/failed [get]
func (c *SyncController) FailedRows(ctx *gin.Context) {
	rows, err := c.engine.ListFailedRows(ctx.Request.Context(), ctx.Query("sheet"))
	if err != nil {
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error()})
		return
	}
	ctx.JSON(200, gin.H{
		"code":    200,
		"message": "success",
		"data":    gin.H{"total": len(rows), "rows": rows},
	})
}

// RetryFailed 重试失败行
// @Summary 把失败行标记为待重处理（下一次跑批生效）
// @Tags Sync
// @Param body body dto.RetryFailedRequest false "sheet 可选"
// @Router /api/sync/retry [post]
func (c *SyncController) RetryFailed(ctx *gin.Context) {
	var req dto.RetryFailedRequest
	_ = ctx.ShouldBindJSON(&req)

	affected, err := c.engine.RetryFailedRows(ctx.Request.Context(), req.Sheet)
	if err != nil {
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error()})
		return
	}
	ctx.JSON(200, gin.H{
		"code":    200,
		"message": "失败行已标记待重处理",
		"data":    gin.H{"affected": affected, "sheet": req.Sheet},
	})
}

// SheetProgress 各工作表进度
// @Summary 各工作表最近一次处理进度
// @Tags Sync
// @Router /api/sync/sheets [get]
func (c *SyncController) SheetProgress(ctx *gin.Context) {
	progress, err := c.engine.ListSheetProgress(ctx.Request.Context())
	if err != nil {
		ctx.JSON(500, gin.H{"code": 500, "message": err.Error()})
		return
	}
	ctx.JSON(200, gin.H{"code": 200, "message": "success", "data": progress})
}
