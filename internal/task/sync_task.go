package task

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"sheetorders_dev_v1_202608/internal/service"
	"sheetorders_dev_v1_202608/pkg/logging"
)

// ==================== SyncCronTask 定时跑批任务 ====================

// 一轮全量扫描在配额退避最坏情况下也该在这个时限内收尾
const runTimeout = 2 * time.Hour

// SyncCronTask 每日定时跑批
// 业务高峰在白天，固定凌晨 02:30 扫全表
type SyncCronTask struct {
	engine *service.SyncEngine
	cron   *cron.Cron
	spec   string
}

// NewSyncCronTask 创建定时跑批任务
func NewSyncCronTask(engine *service.SyncEngine) *SyncCronTask {
	return &SyncCronTask{
		engine: engine,
		cron:   cron.New(cron.WithSeconds()),
		spec:   "0 30 2 * * *",
	}
}

// SetSpec 覆盖 cron 表达式（测试/运维调参用）
func (t *SyncCronTask) SetSpec(spec string) {
	t.spec = spec
}

// Start 启动定时任务
func (t *SyncCronTask) Start() {
	log := logging.GetLogger()

	_, err := t.cron.AddFunc(t.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		log.Info("[SyncCronTask] 定时跑批触发")
		if err := t.engine.RunNow(ctx, false); err != nil {
			if errors.Is(err, service.ErrRunInProgress) {
				log.Warn("[SyncCronTask] 已有跑批在进行，本次跳过")
				return
			}
			log.Errorf("[SyncCronTask] 跑批失败: %v", err)
		}
	})
	if err != nil {
		log.Errorf("[SyncCronTask] 定时任务启动失败: %v", err)
		return
	}

	t.cron.Start()
	log.Infof("[SyncCronTask] 已启动 (%s)", t.spec)
}

// Stop 停止任务，等在跑的回调退出
func (t *SyncCronTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	logging.GetLogger().Info("[SyncCronTask] 已停止")
}

// TriggerNow 手动异步触发一次跑批
func (t *SyncCronTask) TriggerNow(force bool) (string, error) {
	return t.engine.StartRun(force)
}
