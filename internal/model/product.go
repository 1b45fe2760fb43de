package model

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ==================== 商品状态常量 ====================

const (
	ProductStatusUnsold  = "unsold"  // 在售
	ProductStatusSold    = "sold"    // 已售出
	ProductStatusDeleted = "deleted" // 已下架
)

// PlaceholderNumber 占位货号
// 解析时拿不到真实货号的行用它占位，后续跑批中由占位替换匹配补回真实货号
const PlaceholderNumber = "???"

// ==================== Product 商品 ====================

// Product 商品档案
// Number 在存活行（status != deleted）内唯一；同一逻辑货号的多件实物
// 用 " (n)" 数字后缀区分，后缀由去重维护任务统一重排
type Product struct {
	BaseModel
	Number string `gorm:"size:100;index;not null"`

	// 克隆/别名货号（JSON 数组，跨库兼容）
	CloneNumbers datatypes.JSON

	// 描述属性
	Type        string `gorm:"size:100"`
	Subtype     string `gorm:"size:100"`
	Brand       string `gorm:"size:100"`
	Gender      string `gorm:"size:10;default:unisex"`
	ColorID     int    `gorm:"default:0"`
	Size        string `gorm:"size:50"`
	Dimensions  string `gorm:"size:100"` // 实测尺寸（衣长/胸围等）
	Year        int    `gorm:"default:0"`
	Model       string `gorm:"size:200"`
	Marking     string `gorm:"size:200"`
	Description string `gorm:"type:text"`

	// 价格与数量
	Price    decimal.Decimal  `gorm:"type:decimal(20,2);default:0"`
	OldPrice *decimal.Decimal `gorm:"type:decimal(20,2)"`
	Quantity int              `gorm:"default:1"`

	Status string `gorm:"size:20;index;default:unsold"`
}

func (*Product) TableName() string {
	return "products"
}

// GetCloneNumbers 读取别名货号列表
func (p *Product) GetCloneNumbers() []string {
	if len(p.CloneNumbers) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(p.CloneNumbers, &out); err != nil {
		return nil
	}
	return out
}

// AddCloneNumber 追加别名货号，已存在时返回 false
func (p *Product) AddCloneNumber(number string) bool {
	number = strings.TrimSpace(number)
	if number == "" {
		return false
	}
	existing := p.GetCloneNumbers()
	for _, n := range existing {
		if strings.EqualFold(n, number) {
			return false
		}
	}
	raw, _ := json.Marshal(append(existing, number))
	p.CloneNumbers = raw
	return true
}

// IsLive 是否为存活行
func (p *Product) IsLive() bool {
	return p.Status != ProductStatusDeleted
}

// ==================== 货号后缀处理 ====================

var numberSuffixRe = regexp.MustCompile(`\s*\((\d+)\)\s*$`)

// BaseNumber 去掉区分后缀后的逻辑货号："Д-12 (2)" -> "Д-12"
func BaseNumber(number string) string {
	return strings.TrimSpace(numberSuffixRe.ReplaceAllString(number, ""))
}

// NumberWithSuffix 组装带后缀的货号，idx == 0 时不加后缀
func NumberWithSuffix(base string, idx int) string {
	if idx == 0 {
		return base
	}
	return base + " (" + strconv.Itoa(idx) + ")"
}

// HasNumberSuffix 货号是否带区分后缀
func HasNumberSuffix(number string) bool {
	return numberSuffixRe.MatchString(number)
}
