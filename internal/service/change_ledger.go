package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"sheetorders_dev_v1_202608/internal/model"
	"sheetorders_dev_v1_202608/internal/repository"
	"sheetorders_dev_v1_202608/pkg/gsheet"
)

// ==================== 处理决策 ====================

// LedgerDecision 行处理决策
type LedgerDecision int

const (
	DecisionProcess LedgerDecision = iota // 处理（新行 / 内容变了 / force）
	DecisionSkip                          // 跳过（指纹一致且上次成功）
	DecisionRetry                         // 重报上次错误（指纹一致但上次失败）
)

// ==================== ChangeLedger 行指纹账本 ====================

// ChangeLedger 增量处理的判定与落账
// 每行结果独立提交，这是重跑增量、崩溃安全的唯一支点
type ChangeLedger struct {
	repo repository.RowHashRepository
}

// NewChangeLedger 创建行指纹账本
func NewChangeLedger(repo repository.RowHashRepository) *ChangeLedger {
	return &ChangeLedger{repo: repo}
}

// ContentHash 行内容指纹：逐格归一化空白后哈希，对单元格内部空白变化不敏感
func ContentHash(row gsheet.RawRow) string {
	h := sha256.New()
	for _, cell := range row {
		h.Write([]byte(strings.Join(strings.Fields(cell), " ")))
		h.Write([]byte{0x1f}) // 单元格分隔，防止拼接歧义
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ShouldProcess 判定一行是 处理 / 跳过 / 重报
// 返回已算好的指纹和既有记录（Retry 时用来重报上次错误，不重新推导）
func (l *ChangeLedger) ShouldProcess(ctx context.Context, sheetName string, rowIndex int, row gsheet.RawRow, force bool) (LedgerDecision, string, *model.RowHashRecord, error) {
	hash := ContentHash(row)
	if force {
		return DecisionProcess, hash, nil, nil
	}

	prior, err := l.repo.Get(ctx, sheetName, rowIndex)
	if err != nil {
		return DecisionProcess, hash, nil, err
	}
	if prior == nil || prior.Hash != hash {
		return DecisionProcess, hash, prior, nil
	}
	if prior.Success {
		return DecisionSkip, hash, prior, nil
	}
	return DecisionRetry, hash, prior, nil
}

// Record 处理完一行后落账（独立提交，不跟整张表捆在一个事务里）
func (l *ChangeLedger) Record(ctx context.Context, sheetName string, rowIndex int, hash, clientName string, success bool, errorMessage string) error {
	return l.repo.Upsert(ctx, &model.RowHashRecord{
		SheetName:    sheetName,
		RowIndex:     rowIndex,
		Hash:         hash,
		Success:      success,
		ErrorMessage: errorMessage,
		ClientName:   clientName,
	})
}
