package service

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"sheetorders_dev_v1_202608/internal/api/dto"
	"sheetorders_dev_v1_202608/internal/model"
	"sheetorders_dev_v1_202608/pkg/gsheet"
)

// ==================== 列布局 ====================

// 列位置是约定死的（A..Z 共 26 列），表格本身不自描述
const (
	colProductNumbers = 0  // A 货号
	colCloneNumbers   = 1  // B 克隆货号
	colClientName     = 2  // C 客户姓名
	colPrices         = 7  // H 价格表
	colOperation      = 8  // I 附加操作
	colDiscount       = 9  // J 折扣
	colOrderStatus    = 10 // K 订单状态
	colPaymentStatus  = 11 // L 付款状态
	colDeliveryMethod = 12 // M 配送方式
	colNotes1         = 13 // N 备注 1
	colNotes2         = 14 // O 备注 2
	colDeliveryStatus = 15 // P 配送状态
	colTracking       = 16 // Q 快递单号
	colDeferredUntil  = 20 // U 延期日期
	colPriority       = 21 // V 优先级

	// 少于这个列数的行结构上不可用
	minColumns = 12
)

// ErrInvalidRow 行结构不可用（列太少 / 整行为空），计数、不重试
var ErrInvalidRow = errors.New("row is structurally unusable")

var (
	numberSplitRe = regexp.MustCompile(`[,;]`)
	cloneRefRe    = regexp.MustCompile(`^(.+?)\((.+)\)$`)
	decimalRe     = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?`)
)

// ==================== RowParser 行归一化 ====================

// RowParser 把一行原始单元格 + 所属批次标题归一化成订单意图
type RowParser struct{}

// NewRowParser 创建行解析器
func NewRowParser() *RowParser {
	return &RowParser{}
}

// Parse 解析一行
// 返回 ErrInvalidRow 时该行按 Invalid 处理；其余解析问题都是非致命的，落在 intent.Issues
func (p *RowParser) Parse(sheetTitle string, rowIndex int, row gsheet.RawRow) (*dto.OrderIntent, error) {
	if len(row) < minColumns {
		return nil, fmt.Errorf("%w: 只有 %d 列（至少 %d）", ErrInvalidRow, len(row), minColumns)
	}
	if isEmptyRow(row) {
		return nil, fmt.Errorf("%w: 整行为空", ErrInvalidRow)
	}

	cell := func(idx int) string {
		if idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	intent := &dto.OrderIntent{
		SheetName: sheetTitle,
		RowIndex:  rowIndex,
	}
	intent.BatchDate, intent.BatchLabel = gsheet.ParseBatchTitle(sheetTitle)

	intent.ClientName = cell(colClientName)
	intent.TrackingNumber = cell(colTracking)
	intent.Notes = joinNotes(cell(colNotes1), cell(colNotes2))
	intent.Priority = parsePriority(cell(colPriority))
	intent.Prices = parsePriceList(cell(colPrices))

	p.parseNumbers(intent, cell(colProductNumbers), cell(colCloneNumbers))
	p.parseDiscount(intent, cell(colDiscount))
	p.parseOperation(intent, cell(colOperation))
	p.parseEnums(intent, cell)
	p.applyDeferredRules(intent, cell(colDeferredUntil))

	return intent, nil
}

// parseNumbers 拆货号与克隆货号
// 克隆项支持内联 "克隆(原件)" 写法；原件是占位符且没有主货号时，克隆升级为主货号
func (p *RowParser) parseNumbers(intent *dto.OrderIntent, rawNumbers, rawClones string) {
	for _, tok := range splitTokens(rawNumbers) {
		intent.ProductNumbers = append(intent.ProductNumbers, tok)
	}

	for _, tok := range splitTokens(rawClones) {
		if m := cloneRefRe.FindStringSubmatch(tok); m != nil {
			clone := strings.TrimSpace(m[1])
			original := strings.TrimSpace(m[2])
			if original == model.PlaceholderNumber && len(intent.ProductNumbers) == 0 {
				intent.ProductNumbers = append(intent.ProductNumbers, clone)
				continue
			}
			intent.CloneNumbers = append(intent.CloneNumbers, dto.CloneRef{Number: clone, Original: original})
			continue
		}
		intent.CloneNumbers = append(intent.CloneNumbers, dto.CloneRef{Number: tok})
	}

	// 主货号、克隆都没有：按可解析的价格 token 逐个补占位，至少一个
	if len(intent.ProductNumbers) == 0 && len(intent.CloneNumbers) == 0 {
		n := len(intent.Prices)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			intent.ProductNumbers = append(intent.ProductNumbers, model.PlaceholderNumber)
		}
		intent.Issues = append(intent.Issues, "行无货号，已补占位货号 \"???\"")
	}
}

// parseDiscount 折扣："%" 结尾算百分比，否则是固定金额；数值是全部数字 token 之和
func (p *RowParser) parseDiscount(intent *dto.OrderIntent, raw string) {
	if raw == "" {
		return
	}
	sum := decimal.Zero
	found := false
	for _, tok := range decimalRe.FindAllString(raw, -1) {
		if v, err := decimal.NewFromString(strings.ReplaceAll(tok, ",", ".")); err == nil {
			sum = sum.Add(v)
			found = true
		}
	}
	if !found {
		intent.Issues = append(intent.Issues, "折扣列无法解析: "+raw)
		return
	}
	if strings.HasSuffix(raw, "%") {
		intent.DiscountType = model.DiscountTypePercent
	} else {
		intent.DiscountType = model.DiscountTypeFixed
	}
	intent.DiscountValue = sum
}

// parseOperation 附加操作：开头 -/+ 定符号，余下取十进制数；取不出数就当没有操作
func (p *RowParser) parseOperation(intent *dto.OrderIntent, raw string) {
	if raw == "" {
		return
	}
	sign := decimal.NewFromInt(1)
	body := raw
	switch raw[0] {
	case '-':
		sign = decimal.NewFromInt(-1)
		body = raw[1:]
	case '+':
		body = raw[1:]
	}
	tok := decimalRe.FindString(body)
	if tok == "" {
		return
	}
	v, err := decimal.NewFromString(strings.ReplaceAll(tok, ",", "."))
	if err != nil {
		return
	}
	intent.HasOperation = true
	intent.OperationName = raw
	intent.OperationValue = v.Mul(sign)
}

// parseEnums 枚举列查表：查不到记 warning、字段留空，不算硬错误
func (p *RowParser) parseEnums(intent *dto.OrderIntent, cell func(int) string) {
	if raw := cell(colOrderStatus); raw != "" {
		if v, ok := model.LookupOrderStatus(raw); ok {
			intent.OrderStatus = v
		} else {
			intent.Issues = append(intent.Issues, "未知订单状态: "+raw)
		}
	}
	if raw := cell(colPaymentStatus); raw != "" {
		intent.PaymentStatusText = raw
		if v, ok := model.LookupPaymentStatus(raw); ok {
			intent.PaymentStatus = v
		} else {
			intent.Issues = append(intent.Issues, "未知付款状态: "+raw)
		}
	}
	if raw := cell(colDeliveryMethod); raw != "" {
		if v, ok := model.LookupDeliveryMethod(raw); ok {
			intent.DeliveryMethod = v
		} else {
			intent.Issues = append(intent.Issues, "未知配送方式: "+raw)
		}
	}
	if raw := cell(colDeliveryStatus); raw != "" {
		if v, ok := model.LookupDeliveryStatus(raw); ok {
			intent.DeliveryStatus = v
		} else {
			intent.Issues = append(intent.Issues, "未知配送状态: "+raw)
		}
	}
}

// applyDeferredRules 延期规则：
// 延期日期可解析且付款状态为空 -> 付款状态默认 Deferred；
// 已延期且已付/部分付 -> 配送方式强制 deferred
func (p *RowParser) applyDeferredRules(intent *dto.OrderIntent, rawDeferred string) {
	if rawDeferred == "" {
		return
	}
	d := gsheet.ParseSheetDate(rawDeferred)
	if d == nil {
		intent.Issues = append(intent.Issues, "延期日期无法解析: "+rawDeferred)
		return
	}
	intent.DeferredUntil = d

	if intent.PaymentStatus == "" && intent.PaymentStatusText == "" {
		intent.PaymentStatus = model.PaymentStatusDeferred
		intent.PaymentStatusText = "Deferred"
		return
	}
	if intent.PaymentStatus == model.PaymentStatusPaid || intent.PaymentStatus == model.PaymentStatusPartial {
		intent.DeliveryMethod = model.DeliveryMethodDeferred
	}
}

// ==================== 工具函数 ====================

func isEmptyRow(row gsheet.RawRow) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func splitTokens(raw string) []string {
	var out []string
	for _, tok := range numberSplitRe.Split(raw, -1) {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func parsePriceList(raw string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, tok := range decimalRe.FindAllString(raw, -1) {
		if v, err := decimal.NewFromString(strings.ReplaceAll(tok, ",", ".")); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func parsePriority(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func joinNotes(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " | ")
}
