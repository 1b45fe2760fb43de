package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ==================== OrderIntent 行解析结果 ====================

// CloneRef 克隆货号及其原件："Б-12(А-3)" -> {Number: "Б-12", Original: "А-3"}
type CloneRef struct {
	Number   string
	Original string
}

// OrderIntent 一行表格归一化后的订单意图
type OrderIntent struct {
	SheetName string
	RowIndex  int // 表格内 1 起的行号

	BatchDate  *time.Time
	BatchLabel string

	ClientName string

	ProductNumbers []string
	CloneNumbers   []CloneRef
	Prices         []decimal.Decimal

	DiscountType  string // model.DiscountTypePercent / Fixed，空串表示无折扣
	DiscountValue decimal.Decimal

	// 附加操作（命名加减项）
	HasOperation   bool
	OperationName  string
	OperationValue decimal.Decimal

	OrderStatus       string
	PaymentStatus     string
	PaymentStatusText string
	DeliveryMethod    string
	DeliveryStatus    string

	TrackingNumber string
	DeferredUntil  *time.Time
	Priority       int
	Notes          string

	// 非致命数据质量问题（枚举没匹配上、货号缺失补占位等）
	Issues []string
}

// ==================== RunStatus 跑批状态 ====================

// RowError 单行错误记录
type RowError struct {
	Sheet     string `json:"sheet"`
	Row       int    `json:"row"`
	Client    string `json:"client"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"` // invalid / rate_limited / transport / row_processing
}

// RunStatus 一次跑批的运行状态，进程内有效、不落库
type RunStatus struct {
	RunID   string `json:"run_id"`
	Running bool   `json:"running"`
	Force   bool   `json:"force"`

	SheetsTotal     int `json:"sheets_total"`
	SheetsProcessed int `json:"sheets_processed"`
	RowsProcessed   int `json:"rows_processed"`
	RowsSkipped     int `json:"rows_skipped"`
	RowsInvalid     int `json:"rows_invalid"`
	RowsFailed      int `json:"rows_failed"`

	CurrentSheet string `json:"current_sheet"`

	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`

	ProgressPercent  int   `json:"progress_percent"`
	ElapsedSeconds   int64 `json:"elapsed_seconds"`
	RemainingSeconds int64 `json:"remaining_seconds"`

	Errors []RowError `json:"errors"`
}

// ==================== RunEvent 事件流 ====================

// RunEventType 事件类型
type RunEventType string

const (
	EventProgress RunEventType = "progress"
	EventStatus   RunEventType = "status"
	EventError    RunEventType = "error"
	EventFinished RunEventType = "finished"
)

// RunEvent 推给观察方的单条事件
type RunEvent struct {
	Type            RunEventType `json:"type"`
	RunID           string       `json:"run_id"`
	ProgressPercent int          `json:"progress_percent,omitempty"`
	StatusMessage   string       `json:"status_message,omitempty"`
	Error           *RowError    `json:"error,omitempty"`
	At              time.Time    `json:"at"`
}

// ==================== 控制面请求/响应 ====================

// StartRunRequest 触发跑批请求
type StartRunRequest struct {
	Force bool `json:"force"` // 忽略行指纹，全量重处理
}

// RetryFailedRequest 重试失败行请求
type RetryFailedRequest struct {
	Sheet string `json:"sheet"` // 可选：只重试指定工作表
}

// IssueReport 跑批结束后的问题汇总报告
type IssueReport struct {
	RunID      string                `json:"run_id"`
	StartedAt  *time.Time            `json:"started_at"`
	FinishedAt *time.Time            `json:"finished_at"`
	Totals     map[string]int        `json:"totals"`
	BySheet    map[string][]RowError `json:"by_sheet"`
	ByType     map[string][]RowError `json:"by_type"`
}
