package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sheetorders_dev_v1_202608/internal/api/dto"
	"sheetorders_dev_v1_202608/internal/model"
	"sheetorders_dev_v1_202608/internal/repository"
)

// ==================== MergeResolver 重复识别 ====================

// rostovka（码数批发）合并：同货号、描述属性足够相近的商品行并成一行加数量
// 五个可比属性里至少要有这么多个命中才算同款
const rostovkaMatchThreshold = 3

// amountTolerance 金额比对容差，吸收表格手填的分位误差
var amountTolerance = decimal.NewFromFloat(0.01)

// MergeResolver 订单查重与商品同款合并
type MergeResolver struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
}

// NewMergeResolver 创建重复识别器
func NewMergeResolver(orderRepo repository.OrderRepository, productRepo repository.ProductRepository) *MergeResolver {
	return &MergeResolver{orderRepo: orderRepo, productRepo: productRepo}
}

// ==================== 订单查重 ====================

// FindDuplicateOrder 找这一行对应的既有订单，找不到返回 (nil, nil)
// 判定优先级：
//  1. 备注内嵌 OrderID=<n> 标记直接命中（要求订单存在且归属同一客户）
//  2. 兜底客户（Unknown）名下不做模糊查重，重名风险太高
//  3. 货号多重集全等 + 日期/付款文案一致（金额不参与：行里改价要落回原单）
//  4. 占位替换：一侧全是 "???" 另一侧全是真实货号且件数相同；
//     信号弱，额外要求金额一致
func (m *MergeResolver) FindDuplicateOrder(ctx context.Context, client *model.Client, intent *dto.OrderIntent) (*model.Order, error) {
	if id := model.ExtractOrderIDToken(intent.Notes); id != 0 {
		order, err := m.orderRepo.GetByIDWithItems(ctx, id)
		if err != nil {
			return nil, err
		}
		if order != nil && order.ClientID == client.ID {
			return order, nil
		}
		// 标记指向的订单没了或归属变了：当作新订单，标记会被覆盖
	}

	if client.IsUnknown() {
		return nil, nil
	}

	candidates, err := m.orderRepo.ListByClient(ctx, client.ID)
	if err != nil {
		return nil, err
	}

	rowNumbers := effectiveNumbers(intent)
	rowTotal := intentTotal(intent)

	// 先找全等货号的
	for i := range candidates {
		cand := &candidates[i]
		if !sameNumberMultiset(rowNumbers, cand.ProductNumbers()) {
			continue
		}
		if m.detailsAgree(intent, cand, rowTotal, false) {
			return cand, nil
		}
	}

	// 再试占位替换
	for i := range candidates {
		cand := &candidates[i]
		if !placeholderSubstitutable(rowNumbers, cand.ProductNumbers()) {
			continue
		}
		if m.detailsAgree(intent, cand, rowTotal, true) {
			return cand, nil
		}
	}

	return nil, nil
}

// detailsAgree 货号之外的一致性：批次日期、付款文案，requireAmount 时再加金额
func (m *MergeResolver) detailsAgree(intent *dto.OrderIntent, cand *model.Order, rowTotal decimal.Decimal, requireAmount bool) bool {
	if !datesAgree(intent.BatchDate, cand.OrderDate) {
		return false
	}
	if !paymentTextsAgree(intent.PaymentStatusText, cand.PaymentStatusText) {
		return false
	}
	if !requireAmount {
		return true
	}
	return amountsAgree(rowTotal, cand.TotalAmount, len(intent.Prices) == 0)
}

// ==================== 商品同款合并 ====================

// FindOrUpdateRostovkaProduct 码数批发合并
// 新到商品与某条同货号在售行在 品牌/类型/子类/型号/唛头 五项里命中达到阈值时，
// 不建新行，给既有行数量 +1 并返回它；没有同款返回 (nil, nil)
func (m *MergeResolver) FindOrUpdateRostovkaProduct(ctx context.Context, incoming *model.Product) (*model.Product, error) {
	existing, err := m.productRepo.ListLiveByNumber(ctx, incoming.Number)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		p := &existing[i]
		if p.ID == incoming.ID || p.Status != model.ProductStatusUnsold {
			continue
		}
		if rostovkaAttrMatches(incoming, p) >= rostovkaMatchThreshold {
			p.Quantity++
			if err := m.productRepo.Update(ctx, p); err != nil {
				return nil, err
			}
			return p, nil
		}
	}
	return nil, nil
}

// rostovkaAttrMatches 数五个可比属性的命中数，两侧都非空才参与比较
func rostovkaAttrMatches(a, b *model.Product) int {
	pairs := [][2]string{
		{a.Brand, b.Brand},
		{a.Type, b.Type},
		{a.Subtype, b.Subtype},
		{a.Model, b.Model},
		{a.Marking, b.Marking},
	}
	n := 0
	for _, pair := range pairs {
		if pair[0] != "" && pair[1] != "" && strings.EqualFold(pair[0], pair[1]) {
			n++
		}
	}
	return n
}

// ==================== 比对工具 ====================

// effectiveNumbers 行实际指向的货号列表
// 只写了克隆货号的行按克隆的原件算（原件没写就用克隆号本身）
func effectiveNumbers(intent *dto.OrderIntent) []string {
	if len(intent.ProductNumbers) > 0 {
		return intent.ProductNumbers
	}
	out := make([]string, 0, len(intent.CloneNumbers))
	for _, ref := range intent.CloneNumbers {
		if ref.Original != "" {
			out = append(out, ref.Original)
		} else {
			out = append(out, ref.Number)
		}
	}
	return out
}

// intentTotal 按行数据预估订单总额，口径与落库后的重算一致：
// 赠送/退货强制 0；折扣只落第一个价；附加操作整单加减；不为负
func intentTotal(intent *dto.OrderIntent) decimal.Decimal {
	if intent.OrderStatus == model.OrderStatusGift || intent.OrderStatus == model.OrderStatusReturn {
		return decimal.Zero
	}
	total := decimal.Zero
	for i, price := range intent.Prices {
		amount := price
		if i == 0 {
			switch intent.DiscountType {
			case model.DiscountTypePercent:
				amount = amount.Sub(amount.Mul(intent.DiscountValue).Div(decimal.NewFromInt(100)))
			case model.DiscountTypeFixed:
				amount = amount.Sub(intent.DiscountValue)
			}
		}
		total = total.Add(amount)
	}
	if intent.HasOperation {
		total = total.Add(intent.OperationValue)
	}
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// sameNumberMultiset 货号多重集是否全等（大小写不敏感）
func sameNumberMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, n := range a {
		counts[normalizeNumber(n)]++
	}
	for _, n := range b {
		key := normalizeNumber(n)
		counts[key]--
		if counts[key] < 0 {
			return false
		}
	}
	return true
}

// placeholderSubstitutable 一侧全占位、另一侧全真实且件数相同
func placeholderSubstitutable(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	return (allPlaceholder(a) && nonePlaceholder(b)) || (nonePlaceholder(a) && allPlaceholder(b))
}

func allPlaceholder(numbers []string) bool {
	for _, n := range numbers {
		if normalizeNumber(n) != model.PlaceholderNumber {
			return false
		}
	}
	return true
}

func nonePlaceholder(numbers []string) bool {
	for _, n := range numbers {
		if normalizeNumber(n) == model.PlaceholderNumber {
			return false
		}
	}
	return true
}

func normalizeNumber(n string) string {
	return strings.ToLower(strings.TrimSpace(n))
}

// datesAgree 日期一致性，任一侧缺日期按一致处理
func datesAgree(a, b *time.Time) bool {
	if a == nil || b == nil {
		return true
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// paymentTextsAgree 付款文案一致性（空白归一、大小写不敏感）
func paymentTextsAgree(a, b string) bool {
	na := strings.ToLower(strings.Join(strings.Fields(a), " "))
	nb := strings.ToLower(strings.Join(strings.Fields(b), " "))
	return na == nb
}

// amountsAgree 金额一致性；行里压根没价格时金额不参与判定
func amountsAgree(rowTotal, orderTotal decimal.Decimal, rowHasNoPrices bool) bool {
	if rowHasNoPrices {
		return true
	}
	return rowTotal.Sub(orderTotal).Abs().LessThanOrEqual(amountTolerance)
}
