package service

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"sheetorders_dev_v1_202608/internal/api/dto"
	"sheetorders_dev_v1_202608/pkg/logging"
)

// ==================== ReportService 问题报告 ====================

// ReportService 跑批结束后的问题汇总：落日志，配置了 webhook 就再推一份
type ReportService struct {
	webhookURL string
	http       *resty.Client
}

// NewReportService 创建报告服务，webhookURL 为空表示只打日志
func NewReportService(webhookURL string) *ReportService {
	return &ReportService{
		webhookURL: webhookURL,
		http: resty.New().
			SetTimeout(10 * time.Second).
			SetRetryCount(2),
	}
}

// Build 把一次跑批状态折叠成报告
func (s *ReportService) Build(status *dto.RunStatus) *dto.IssueReport {
	report := &dto.IssueReport{
		RunID:      status.RunID,
		StartedAt:  status.StartedAt,
		FinishedAt: status.FinishedAt,
		Totals: map[string]int{
			"sheets":    status.SheetsProcessed,
			"processed": status.RowsProcessed,
			"skipped":   status.RowsSkipped,
			"invalid":   status.RowsInvalid,
			"failed":    status.RowsFailed,
		},
		BySheet: make(map[string][]dto.RowError),
		ByType:  make(map[string][]dto.RowError),
	}
	for _, e := range status.Errors {
		report.BySheet[e.Sheet] = append(report.BySheet[e.Sheet], e)
		report.ByType[e.ErrorType] = append(report.ByType[e.ErrorType], e)
	}
	return report
}

// Publish 发布报告：日志必发，webhook 尽力而为（失败只记 warning，不影响跑批结果）
func (s *ReportService) Publish(ctx context.Context, report *dto.IssueReport) {
	log := logging.GetLogger().WithField("run_id", report.RunID)
	log.WithFields(map[string]interface{}{
		"processed": report.Totals["processed"],
		"skipped":   report.Totals["skipped"],
		"invalid":   report.Totals["invalid"],
		"failed":    report.Totals["failed"],
	}).Info("[SyncReport] 跑批报告")

	for sheet, errs := range report.BySheet {
		log.Infof("[SyncReport] 工作表 %s: %d 个问题", sheet, len(errs))
	}

	if s.webhookURL == "" {
		return
	}
	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(report).
		Post(s.webhookURL)
	if err != nil {
		log.Warnf("[SyncReport] webhook 推送失败: %v", err)
		return
	}
	if resp.IsError() {
		log.Warnf("[SyncReport] webhook 返回 %d", resp.StatusCode())
	}
}
