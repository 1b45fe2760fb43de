package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ==================== 性别常量 ====================

const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderUnisex = "unisex"
)

// UnknownClientName 兜底客户的姓氏
// 表格行缺少客户姓名时，订单统一挂在这个客户名下
const UnknownClientName = "Unknown"

// ==================== Client 客户 ====================

// Client 客户档案
// 首次出现姓名时创建；联系方式只在目标字段为空时回填，已有数据不覆盖
type Client struct {
	BaseModel
	LastName   string `gorm:"size:100;index:idx_client_name;not null"`
	FirstName  string `gorm:"size:100;index:idx_client_name"`
	MiddleName string `gorm:"size:100;index:idx_client_name"`
	Gender     string `gorm:"size:10;default:unisex"`

	// 联系方式
	Phone   string `gorm:"size:30"`
	Email   string `gorm:"size:100"`
	Address string `gorm:"size:500"`

	// 订单聚合统计（Upsert 之后刷新）
	OrdersCount int             `gorm:"default:0"`
	OrdersTotal decimal.Decimal `gorm:"type:decimal(20,2);default:0"`
}

func (*Client) TableName() string {
	return "clients"
}

// FullName 拼装显示姓名
func (c *Client) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.LastName, c.FirstName, c.MiddleName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// IsUnknown 是否是兜底客户
func (c *Client) IsUnknown() bool {
	return c.LastName == UnknownClientName && c.FirstName == "" && c.MiddleName == ""
}

// ==================== 姓氏性别推断 ====================

// 斯拉夫姓氏后缀表：女性在前、男性在后，匹配不到默认 unisex
var (
	feminineSuffixes  = []string{"ова", "ева", "ёва", "ина", "ына", "ая", "яя", "ская", "цкая"}
	masculineSuffixes = []string{"ов", "ев", "ёв", "ин", "ын", "ий", "ый", "ской", "ский", "цкий"}
)

// InferGenderFromSurname 按姓氏后缀推断性别
// 女性后缀先查（"ова" 比 "ов" 更长，必须优先）
func InferGenderFromSurname(surname string) string {
	s := strings.ToLower(strings.TrimSpace(surname))
	if s == "" {
		return GenderUnisex
	}
	for _, suf := range feminineSuffixes {
		if strings.HasSuffix(s, suf) {
			return GenderFemale
		}
	}
	for _, suf := range masculineSuffixes {
		if strings.HasSuffix(s, suf) {
			return GenderMale
		}
	}
	return GenderUnisex
}
