package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"sheetorders_dev_v1_202608/internal/api/dto"
	"sheetorders_dev_v1_202608/internal/model"
	"sheetorders_dev_v1_202608/internal/repository"
)

// ==================== OrderUpsertEngine 订单落库 ====================

// OrderUpsertEngine 把一条订单意图落成库里的订单
// 每行一个事务：客户/商品解析、查重、行项目重建、总额重算、售出标记、客户统计刷新
// 要么全部生效要么全不生效，失败行不会留半截数据
type OrderUpsertEngine struct {
	db *gorm.DB
}

// NewOrderUpsertEngine 创建订单落库引擎
func NewOrderUpsertEngine(db *gorm.DB) *OrderUpsertEngine {
	return &OrderUpsertEngine{db: db}
}

// UpsertRow 落库一行
// 返回落库后的订单（新建或被更新的既有订单）
func (e *OrderUpsertEngine) UpsertRow(ctx context.Context, intent *dto.OrderIntent) (*model.Order, error) {
	var result *model.Order
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		clientRepo := repository.NewClientRepository(tx)
		productRepo := repository.NewProductRepository(tx)
		orderRepo := repository.NewOrderRepository(tx)
		resolver := NewRefResolver(clientRepo, productRepo)
		merge := NewMergeResolver(orderRepo, productRepo)

		client, err := resolver.GetOrCreateClient(ctx, intent.ClientName)
		if err != nil {
			return err
		}

		existing, err := merge.FindDuplicateOrder(ctx, client, intent)
		if err != nil {
			return err
		}

		var order *model.Order
		if existing != nil {
			order = existing
		} else if intent.TrackingNumber != "" {
			// 快递单号是强标识，跨客户也能兜住查重漏网的行
			order, err = orderRepo.GetByTracking(ctx, intent.TrackingNumber)
			if err != nil {
				return err
			}
		}

		if order == nil {
			order = &model.Order{ClientID: client.ID}
			applyIntent(order, intent)
			if err := orderRepo.Create(ctx, order); err != nil {
				return fmt.Errorf("建订单失败: %w", err)
			}
		} else {
			applyIntent(order, intent)
		}
		order.Notes = model.AppendOrderIDToken(order.Notes, order.ID)

		products, err := e.resolveProducts(ctx, tx, resolver, merge, productRepo, order, intent)
		if err != nil {
			return err
		}

		if err := attachCloneAliases(ctx, productRepo, products, intent.CloneNumbers); err != nil {
			return err
		}

		items, err := e.rebuildItems(ctx, tx, resolver, order, products, intent)
		if err != nil {
			return err
		}

		// 行项目已单独落库，Save 前不挂关联，避免 gorm 重复 upsert
		order.Items = nil
		order.TotalAmount = recomputeTotal(order, items)
		if err := orderRepo.Update(ctx, order); err != nil {
			return fmt.Errorf("存订单失败: %w", err)
		}
		order.Items = items

		if isPaid(intent) {
			ids := make([]int64, 0, len(products))
			for _, p := range products {
				if p.Number != model.PlaceholderNumber {
					ids = append(ids, p.ID)
				}
			}
			if err := productRepo.MarkSold(ctx, ids); err != nil {
				return err
			}
		}

		if err := clientRepo.RefreshOrderStats(ctx, client.ID); err != nil {
			return err
		}

		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ==================== 字段套用 ====================

// applyIntent 把行字段套到订单上：行里有值就覆盖，没值保留既有
func applyIntent(order *model.Order, intent *dto.OrderIntent) {
	if intent.BatchDate != nil {
		order.OrderDate = intent.BatchDate
	}
	if intent.OrderStatus != "" {
		order.Status = intent.OrderStatus
	} else if order.Status == "" {
		order.Status = model.OrderStatusNew
	}
	if intent.PaymentStatus != "" {
		order.PaymentStatus = intent.PaymentStatus
	}
	if intent.PaymentStatusText != "" {
		order.PaymentStatusText = intent.PaymentStatusText
	}
	if intent.DeliveryMethod != "" {
		order.DeliveryMethod = intent.DeliveryMethod
	}
	if intent.DeliveryStatus != "" {
		order.DeliveryStatus = intent.DeliveryStatus
	}
	if intent.TrackingNumber != "" {
		order.TrackingNumber = intent.TrackingNumber
	}
	if intent.DeferredUntil != nil {
		order.DeferredUntil = intent.DeferredUntil
	}
	if intent.Priority != 0 {
		order.Priority = intent.Priority
	}
	if intent.Notes != "" {
		// 回查标记在落库后统一补，这里只覆盖正文
		order.Notes = intent.Notes
	}
}

// ==================== 商品解析 ====================

// resolveProducts 把行里的货号解析成商品行，顺序与行内货号一致
// 占位替换的特殊分支：行上全是占位货号而既有订单已经挂了真实商品时，
// 保留既有商品，不让占位把真货号冲掉
func (e *OrderUpsertEngine) resolveProducts(
	ctx context.Context,
	tx *gorm.DB,
	resolver *RefResolver,
	merge *MergeResolver,
	productRepo repository.ProductRepository,
	order *model.Order,
	intent *dto.OrderIntent,
) ([]*model.Product, error) {
	rowNumbers := effectiveNumbers(intent)
	existingNumbers := order.ProductNumbers()
	if len(existingNumbers) > 0 && allPlaceholder(rowNumbers) && nonePlaceholder(existingNumbers) {
		products := make([]*model.Product, 0, len(order.Items))
		for i := range order.Items {
			if order.Items[i].Product != nil {
				products = append(products, order.Items[i].Product)
			}
		}
		return products, nil
	}

	// 既有行项目里的占位商品可以复用，不用每次重跑都新建一批 "???"
	spare := make([]*model.Product, 0)
	for i := range order.Items {
		p := order.Items[i].Product
		if p != nil && p.Number == model.PlaceholderNumber {
			spare = append(spare, p)
		}
	}

	products := make([]*model.Product, 0, len(rowNumbers))
	for _, number := range rowNumbers {
		if number == model.PlaceholderNumber {
			if len(spare) > 0 {
				products = append(products, spare[0])
				spare = spare[1:]
				continue
			}
			p := &model.Product{Number: model.PlaceholderNumber, Status: model.ProductStatusUnsold, Quantity: 1}
			if err := productRepo.Create(ctx, p); err != nil {
				return nil, err
			}
			products = append(products, p)
			continue
		}

		p, err := e.resolveRealProduct(ctx, resolver, merge, productRepo, order, number)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	// 行已经换上真实货号：本订单名下剩余的占位商品到此失去意义
	if nonePlaceholder(rowNumbers) {
		for _, p := range spare {
			p.Status = model.ProductStatusDeleted
			if err := productRepo.Update(ctx, p); err != nil {
				return nil, err
			}
		}
	}

	return products, nil
}

// resolveRealProduct 解析真实货号
// 在售行直接用；货号已被别的订单售出时，当成同号的第二件实物：
// 先试码数合并吸收进同款在售行，吸收不了就复制属性另起一行
func (e *OrderUpsertEngine) resolveRealProduct(
	ctx context.Context,
	resolver *RefResolver,
	merge *MergeResolver,
	productRepo repository.ProductRepository,
	order *model.Order,
	number string,
) (*model.Product, error) {
	p, err := productRepo.GetLiveByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return resolver.GetOrCreateProduct(ctx, number)
	}
	if p.Status != model.ProductStatusSold {
		return p, nil
	}

	// 已售商品若本来就挂在当前订单上，重跑同一行属于正常路径
	for i := range order.Items {
		if order.Items[i].ProductID == p.ID {
			return p, nil
		}
	}

	second := &model.Product{
		Number:  p.Number,
		Type:    p.Type,
		Subtype: p.Subtype,
		Brand:   p.Brand,
		Gender:  p.Gender,
		ColorID: p.ColorID,
		Size:    p.Size,
		Year:    p.Year,
		Model:   p.Model,
		Marking: p.Marking,
		Price:   p.Price,

		Status:   model.ProductStatusUnsold,
		Quantity: 1,
	}
	merged, err := merge.FindOrUpdateRostovkaProduct(ctx, second)
	if err != nil {
		return nil, err
	}
	if merged != nil {
		return merged, nil
	}
	if err := productRepo.Create(ctx, second); err != nil {
		return nil, err
	}
	return second, nil
}

// attachCloneAliases 把克隆货号挂到原件商品上
// 原件没写时默认挂到行里第一个商品
func attachCloneAliases(ctx context.Context, productRepo repository.ProductRepository, products []*model.Product, clones []dto.CloneRef) error {
	if len(clones) == 0 || len(products) == 0 {
		return nil
	}
	for _, ref := range clones {
		target := products[0]
		if ref.Original != "" {
			for _, p := range products {
				if strings.EqualFold(p.Number, ref.Original) {
					target = p
					break
				}
			}
		}
		if target.AddCloneNumber(ref.Number) {
			if err := productRepo.Update(ctx, target); err != nil {
				return err
			}
		}
	}
	return nil
}

// ==================== 行项目与总额 ====================

// rebuildItems 以行为准重建行项目
// 价格按下标对齐，价格不够用最后一个补；折扣和附加操作只落第一项
func (e *OrderUpsertEngine) rebuildItems(
	ctx context.Context,
	tx *gorm.DB,
	resolver *RefResolver,
	order *model.Order,
	products []*model.Product,
	intent *dto.OrderIntent,
) ([]model.OrderItem, error) {
	if err := tx.Where("order_id = ?", order.ID).Delete(&model.OrderItem{}).Error; err != nil {
		return nil, err
	}

	items := make([]model.OrderItem, 0, len(products))
	for i, p := range products {
		price := decimal.Zero
		if len(intent.Prices) > 0 {
			if i < len(intent.Prices) {
				price = intent.Prices[i]
			} else {
				price = intent.Prices[len(intent.Prices)-1]
			}
		}

		if p.Number != model.PlaceholderNumber && price.IsPositive() {
			if err := resolver.UpdateProductPrice(ctx, p, price); err != nil {
				return nil, err
			}
		}

		item := model.OrderItem{
			OrderID:   order.ID,
			ProductID: p.ID,
			Product:   p,
			Price:     price,
			Quantity:  1,
		}
		if i == 0 {
			item.DiscountType = intent.DiscountType
			item.DiscountValue = intent.DiscountValue
			if intent.HasOperation {
				item.OperationName = intent.OperationName
				item.OperationValue = intent.OperationValue
			}
		}
		if err := tx.Create(&item).Error; err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// recomputeTotal 以行项目为准重算订单总额
// 赠送/退货强制 0；附加操作整单加减；结果不为负
func recomputeTotal(order *model.Order, items []model.OrderItem) decimal.Decimal {
	if order.IsZeroTotal() {
		return decimal.Zero
	}
	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].LineAmount())
		total = total.Add(items[i].OperationValue)
	}
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// isPaid 该行是否已付款（枚举命中或兜底文案就是 paid）
func isPaid(intent *dto.OrderIntent) bool {
	if intent.PaymentStatus == model.PaymentStatusPaid {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(intent.PaymentStatusText), "paid")
}
