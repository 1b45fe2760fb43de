package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sheetorders_dev_v1_202608/internal/api/dto"
	"sheetorders_dev_v1_202608/internal/model"
	"sheetorders_dev_v1_202608/internal/repository"
	"sheetorders_dev_v1_202608/pkg/gsheet"
	"sheetorders_dev_v1_202608/pkg/logging"
)

// ==================== SourceGateway 数据源抽象 ====================

// SourceGateway 跑批需要的数据源最小访问面
// 生产实现是 gsheet.Client，测试用假网关
type SourceGateway interface {
	ListBatches(ctx context.Context) ([]gsheet.BatchHandle, error)
	ReadRows(ctx context.Context, handle gsheet.BatchHandle) ([]gsheet.RawRow, error)
}

// ErrRunInProgress 已有跑批在进行
var ErrRunInProgress = errors.New("sync run already in progress")

// 事件缓冲：装满后丢最旧的，观察方掉线不能拖死跑批
const eventBufferSize = 256

// 错误列表上限，防一次烂批次把状态对象撑爆
const maxTrackedErrors = 500

// ==================== SyncEngine 跑批引擎 ====================

// SyncEngine 增量跑批编排器
// 单 worker 顺序扫批次，行级决策交 ChangeLedger，落库交 OrderUpsertEngine，
// 收尾跑去重维护并发布报告；进度与错误通过状态快照和事件流对外
type SyncEngine struct {
	gateway     SourceGateway
	ledger      *ChangeLedger
	parser      *RowParser
	upsert      *OrderUpsertEngine
	dedup       *DedupService
	report      *ReportService
	rowHashRepo repository.RowHashRepository

	mu      sync.Mutex
	status  dto.RunStatus
	running bool

	stopRequested atomic.Bool
	events        chan dto.RunEvent
}

// NewSyncEngine 创建跑批引擎
func NewSyncEngine(
	gateway SourceGateway,
	ledger *ChangeLedger,
	parser *RowParser,
	upsert *OrderUpsertEngine,
	dedup *DedupService,
	report *ReportService,
	rowHashRepo repository.RowHashRepository,
) *SyncEngine {
	return &SyncEngine{
		gateway:     gateway,
		ledger:      ledger,
		parser:      parser,
		upsert:      upsert,
		dedup:       dedup,
		report:      report,
		rowHashRepo: rowHashRepo,
		events:      make(chan dto.RunEvent, eventBufferSize),
	}
}

// ==================== 运行控制 ====================

// StartRun 异步触发一次跑批，返回 RunID；已有跑批在进行时拒绝
func (e *SyncEngine) StartRun(force bool) (string, error) {
	runID, err := e.beginRun(force)
	if err != nil {
		return "", err
	}
	go e.run(context.Background(), force)
	return runID, nil
}

// RunNow 同步跑一次（定时任务入口），已有跑批在进行时拒绝
func (e *SyncEngine) RunNow(ctx context.Context, force bool) error {
	if _, err := e.beginRun(force); err != nil {
		return err
	}
	e.run(ctx, force)
	return nil
}

// Stop 请求停止当前跑批，在行边界生效；已落库的行不回滚
func (e *SyncEngine) Stop() {
	e.stopRequested.Store(true)
}

// Status 当前（或最近一次）跑批状态快照
func (e *SyncEngine) Status() dto.RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Events 事件流；缓冲装满时最旧的事件被丢弃
func (e *SyncEngine) Events() <-chan dto.RunEvent {
	return e.events
}

// ListFailedRows 列失败行，sheetName 为空时不过滤
func (e *SyncEngine) ListFailedRows(ctx context.Context, sheetName string) ([]model.RowHashRecord, error) {
	return e.rowHashRepo.ListFailed(ctx, sheetName)
}

// RetryFailedRows 清空失败行指纹，下一次跑批会把它们当新行重处理
func (e *SyncEngine) RetryFailedRows(ctx context.Context, sheetName string) (int64, error) {
	return e.rowHashRepo.MarkFailedStale(ctx, sheetName)
}

// ListSheetProgress 各工作表最近一次处理进度
func (e *SyncEngine) ListSheetProgress(ctx context.Context) ([]model.SheetProgress, error) {
	return e.rowHashRepo.ListProgress(ctx)
}

// beginRun 占运行位并重置状态
func (e *SyncEngine) beginRun(force bool) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return "", ErrRunInProgress
	}
	now := time.Now()
	e.running = true
	e.stopRequested.Store(false)
	e.status = dto.RunStatus{
		RunID:     uuid.NewString(),
		Running:   true,
		Force:     force,
		StartedAt: &now,
	}
	return e.status.RunID, nil
}

// ==================== 主循环 ====================

func (e *SyncEngine) run(ctx context.Context, force bool) {
	log := logging.GetLogger().WithField("run_id", e.currentRunID())
	log.Infof("[SyncEngine] 跑批开始 force=%v", force)

	defer e.finishRun(ctx, log)

	batches, err := e.gateway.ListBatches(ctx)
	if err != nil {
		// 连批次列表都拿不到，这一轮没法干活
		log.Errorf("[SyncEngine] 列批次失败: %v", err)
		e.addError(dto.RowError{Message: err.Error(), ErrorType: classifySourceError(err)})
		return
	}

	e.mu.Lock()
	e.status.SheetsTotal = len(batches)
	e.mu.Unlock()

	for _, batch := range batches {
		if e.stopRequested.Load() {
			log.Warn("[SyncEngine] 收到停止请求，跑批中断")
			break
		}
		e.processBatch(ctx, batch, force, log)

		e.mu.Lock()
		e.status.SheetsProcessed++
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.emit(dto.RunEvent{
			Type:            dto.EventProgress,
			RunID:           snap.RunID,
			ProgressPercent: snap.ProgressPercent,
			StatusMessage:   batch.Title,
			At:              time.Now(),
		})
	}
}

// processBatch 处理一个批次（一张工作表）
func (e *SyncEngine) processBatch(ctx context.Context, batch gsheet.BatchHandle, force bool, log *logrus.Entry) {
	e.mu.Lock()
	e.status.CurrentSheet = batch.Title
	runID := e.status.RunID
	e.mu.Unlock()
	e.emit(dto.RunEvent{
		Type:          dto.EventStatus,
		RunID:         runID,
		StatusMessage: "处理工作表: " + batch.Title,
		At:            time.Now(),
	})

	rows, err := e.gateway.ReadRows(ctx, batch)
	if err != nil {
		// 单表读失败不终止整次跑批，记错继续下一张
		log.Warnf("[SyncEngine] 读 %s 失败: %v", batch.Title, err)
		e.addError(dto.RowError{
			Sheet:     batch.Title,
			Message:   err.Error(),
			ErrorType: classifySourceError(err),
		})
		return
	}

	// 首行是表头
	for i := 1; i < len(rows); i++ {
		if e.stopRequested.Load() {
			return
		}
		e.processRow(ctx, batch.Title, i+1, rows[i], force)
	}

	if err := e.rowHashRepo.UpsertProgress(ctx, batch.Title, len(rows)); err != nil {
		log.Warnf("[SyncEngine] 写 %s 进度失败: %v", batch.Title, err)
	}
}

// processRow 处理一行：账本决策 -> 解析 -> 落库 -> 落账
func (e *SyncEngine) processRow(ctx context.Context, sheetName string, rowIndex int, row gsheet.RawRow, force bool) {
	decision, hash, prior, err := e.ledger.ShouldProcess(ctx, sheetName, rowIndex, row, force)
	if err != nil {
		e.countFailed()
		e.addError(dto.RowError{Sheet: sheetName, Row: rowIndex, Message: err.Error(), ErrorType: "row_processing"})
		return
	}

	switch decision {
	case DecisionSkip:
		e.mu.Lock()
		e.status.RowsSkipped++
		e.mu.Unlock()
		return

	case DecisionRetry:
		// 内容没变、上次就失败：重报旧错，不再重新推导一遍
		e.countFailed()
		clientName := ""
		message := "上次处理失败"
		if prior != nil {
			clientName = prior.ClientName
			if prior.ErrorMessage != "" {
				message = prior.ErrorMessage
			}
		}
		e.addError(dto.RowError{Sheet: sheetName, Row: rowIndex, Client: clientName, Message: message, ErrorType: "row_processing"})
		return
	}

	intent, err := e.parser.Parse(sheetName, rowIndex, row)
	if err != nil {
		if errors.Is(err, ErrInvalidRow) {
			// 结构性不可用：计数、落账成功位，永不重试
			e.mu.Lock()
			e.status.RowsInvalid++
			e.mu.Unlock()
			_ = e.ledger.Record(ctx, sheetName, rowIndex, hash, "", true, err.Error())
			return
		}
		e.countFailed()
		e.addError(dto.RowError{Sheet: sheetName, Row: rowIndex, Message: err.Error(), ErrorType: "row_processing"})
		_ = e.ledger.Record(ctx, sheetName, rowIndex, hash, "", false, err.Error())
		return
	}

	if _, err := e.upsert.UpsertRow(ctx, intent); err != nil {
		e.countFailed()
		rowErr := dto.RowError{
			Sheet:     sheetName,
			Row:       rowIndex,
			Client:    intent.ClientName,
			Message:   err.Error(),
			ErrorType: "row_processing",
		}
		e.addError(rowErr)
		e.emit(dto.RunEvent{Type: dto.EventError, RunID: e.currentRunID(), Error: &rowErr, At: time.Now()})
		_ = e.ledger.Record(ctx, sheetName, rowIndex, hash, intent.ClientName, false, err.Error())
		return
	}

	if len(intent.Issues) > 0 {
		logging.WithRow(sheetName, rowIndex).Warnf("[SyncEngine] 数据质量问题: %s", strings.Join(intent.Issues, "; "))
	}

	e.mu.Lock()
	e.status.RowsProcessed++
	e.mu.Unlock()
	_ = e.ledger.Record(ctx, sheetName, rowIndex, hash, intent.ClientName, true, strings.Join(intent.Issues, "; "))
}

// finishRun 收尾：去重维护、报告发布、终态事件
func (e *SyncEngine) finishRun(ctx context.Context, log *logrus.Entry) {
	if merged, err := e.dedup.MergeExactDuplicates(ctx); err != nil {
		log.Warnf("[SyncEngine] 商品合并失败: %v", err)
	} else if merged > 0 {
		log.Infof("[SyncEngine] 合并重复商品 %d 件", merged)
	}
	if removed, err := e.dedup.CleanupDuplicateOrders(ctx); err != nil {
		log.Warnf("[SyncEngine] 订单清理失败: %v", err)
	} else if removed > 0 {
		log.Infof("[SyncEngine] 清理重复订单 %d 单", removed)
	}

	now := time.Now()
	e.mu.Lock()
	e.running = false
	e.status.Running = false
	e.status.FinishedAt = &now
	e.status.CurrentSheet = ""
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.report.Publish(ctx, e.report.Build(&snap))

	e.emit(dto.RunEvent{
		Type:            dto.EventFinished,
		RunID:           snap.RunID,
		ProgressPercent: snap.ProgressPercent,
		At:              now,
	})
	log.Infof("[SyncEngine] 跑批结束 processed=%d skipped=%d invalid=%d failed=%d",
		snap.RowsProcessed, snap.RowsSkipped, snap.RowsInvalid, snap.RowsFailed)
}

// ==================== 状态与事件 ====================

// snapshotLocked 生成状态快照，调用方需持锁
func (e *SyncEngine) snapshotLocked() dto.RunStatus {
	snap := e.status
	snap.Errors = make([]dto.RowError, len(e.status.Errors))
	copy(snap.Errors, e.status.Errors)

	if e.status.SheetsTotal > 0 {
		snap.ProgressPercent = e.status.SheetsProcessed * 100 / e.status.SheetsTotal
	}
	if e.status.StartedAt != nil {
		end := time.Now()
		if e.status.FinishedAt != nil {
			end = *e.status.FinishedAt
		}
		elapsed := end.Sub(*e.status.StartedAt)
		snap.ElapsedSeconds = int64(elapsed.Seconds())
		if snap.ProgressPercent > 0 && snap.ProgressPercent < 100 && e.status.FinishedAt == nil {
			remaining := elapsed * time.Duration(100-snap.ProgressPercent) / time.Duration(snap.ProgressPercent)
			snap.RemainingSeconds = int64(remaining.Seconds())
		}
	}
	return snap
}

func (e *SyncEngine) currentRunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.RunID
}

func (e *SyncEngine) countFailed() {
	e.mu.Lock()
	e.status.RowsFailed++
	e.mu.Unlock()
}

func (e *SyncEngine) addError(rowErr dto.RowError) {
	e.mu.Lock()
	if len(e.status.Errors) < maxTrackedErrors {
		e.status.Errors = append(e.status.Errors, rowErr)
	}
	e.mu.Unlock()
}

// emit 非阻塞发事件，缓冲满了丢最旧的
func (e *SyncEngine) emit(ev dto.RunEvent) {
	for {
		select {
		case e.events <- ev:
			return
		default:
		}
		select {
		case <-e.events:
		default:
		}
	}
}

// classifySourceError 数据源错误归类
func classifySourceError(err error) string {
	if gsheet.IsRateLimited(err) {
		return "rate_limited"
	}
	return "transport"
}
