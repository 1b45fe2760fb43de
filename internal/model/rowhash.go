package model

import "time"

// ==================== RowHashRecord 行指纹 ====================

// RowHashRecord 增量处理的持久化骨架
// 以 (sheet_name, row_index) 为键记录上次见到的内容指纹与处理结果；
// 每行结果独立落库，崩溃后重跑不丢不重
type RowHashRecord struct {
	ID        int64     `gorm:"primary_key;AUTO_INCREMENT"`
	CreatedAt time.Time
	UpdatedAt time.Time

	SheetName string `gorm:"size:200;uniqueIndex:idx_sheet_row;not null"`
	RowIndex  int    `gorm:"uniqueIndex:idx_sheet_row;not null"`

	Hash         string `gorm:"size:64;not null"`
	Success      bool   `gorm:"default:false"`
	ErrorMessage string `gorm:"size:1024"`
	ClientName   string `gorm:"size:255"`
}

func (*RowHashRecord) TableName() string {
	return "row_hash_records"
}

// ==================== SheetProgress 表级进度 ====================

// SheetProgress 每张工作表的最近处理情况，只做观测用
// 跳过判定始终走 RowHashRecord，按行粒度
type SheetProgress struct {
	ID        int64     `gorm:"primary_key;AUTO_INCREMENT"`
	CreatedAt time.Time
	UpdatedAt time.Time

	SheetName string    `gorm:"size:200;uniqueIndex;not null"`
	LastRunAt time.Time
	RowCount  int `gorm:"default:0"`
}

func (*SheetProgress) TableName() string {
	return "sheet_progress"
}
