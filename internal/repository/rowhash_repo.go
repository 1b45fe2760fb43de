package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sheetorders_dev_v1_202608/internal/model"
)

// ==================== RowHashRepository 行指纹仓库 ====================

// RowHashRepository 行指纹与表级进度仓库接口
type RowHashRepository interface {
	// Get 按 (sheet, rowIndex) 取指纹记录，未命中返回 (nil, nil)
	Get(ctx context.Context, sheetName string, rowIndex int) (*model.RowHashRecord, error)
	// Upsert 按 (sheet, rowIndex) 写入/覆盖处理结果，独立提交
	Upsert(ctx context.Context, rec *model.RowHashRecord) error
	// ListFailed 列出失败行，sheetName 为空时不过滤
	ListFailed(ctx context.Context, sheetName string) ([]model.RowHashRecord, error)
	// MarkFailedStale 把失败行的指纹清空，使下一次跑批强制重处理；返回影响行数
	MarkFailedStale(ctx context.Context, sheetName string) (int64, error)

	// 表级进度（只做观测）
	UpsertProgress(ctx context.Context, sheetName string, rowCount int) error
	ListProgress(ctx context.Context) ([]model.SheetProgress, error)
}

type rowHashRepository struct {
	db *gorm.DB
}

// NewRowHashRepository 创建行指纹仓库
func NewRowHashRepository(db *gorm.DB) RowHashRepository {
	return &rowHashRepository{db: db}
}

func (r *rowHashRepository) Get(ctx context.Context, sheetName string, rowIndex int) (*model.RowHashRecord, error) {
	var rec model.RowHashRecord
	err := r.db.WithContext(ctx).
		Where("sheet_name = ? AND row_index = ?", sheetName, rowIndex).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *rowHashRepository) Upsert(ctx context.Context, rec *model.RowHashRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sheet_name"}, {Name: "row_index"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"hash", "success", "error_message", "client_name", "updated_at",
		}),
	}).Create(rec).Error
}

func (r *rowHashRepository) ListFailed(ctx context.Context, sheetName string) ([]model.RowHashRecord, error) {
	q := r.db.WithContext(ctx).Where("success = ?", false)
	if sheetName != "" {
		q = q.Where("sheet_name = ?", sheetName)
	}
	var recs []model.RowHashRecord
	err := q.Order("sheet_name asc, row_index asc").Find(&recs).Error
	return recs, err
}

func (r *rowHashRepository) MarkFailedStale(ctx context.Context, sheetName string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.RowHashRecord{}).Where("success = ?", false)
	if sheetName != "" {
		q = q.Where("sheet_name = ?", sheetName)
	}
	res := q.Update("hash", "")
	return res.RowsAffected, res.Error
}

func (r *rowHashRepository) UpsertProgress(ctx context.Context, sheetName string, rowCount int) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sheet_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_run_at", "row_count", "updated_at"}),
	}).Create(&model.SheetProgress{
		SheetName: sheetName,
		LastRunAt: time.Now(),
		RowCount:  rowCount,
	}).Error
}

func (r *rowHashRepository) ListProgress(ctx context.Context) ([]model.SheetProgress, error) {
	var rows []model.SheetProgress
	err := r.db.WithContext(ctx).Order("sheet_name asc").Find(&rows).Error
	return rows, err
}
