package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"sheetorders_dev_v1_202608/internal/model"
	"sheetorders_dev_v1_202608/internal/repository"
)

// ==================== DedupService 去重维护 ====================

// DedupService 跑批收尾的两道维护：商品完全重复合并、订单历史重复清理
// 每道各跑一个事务，互不牵连
type DedupService struct {
	db *gorm.DB
}

// NewDedupService 创建去重维护服务
func NewDedupService(db *gorm.DB) *DedupService {
	return &DedupService{db: db}
}

// ==================== 商品合并 ====================

// MergeExactDuplicates 合并完全重复的商品行并重排货号后缀
// 同逻辑货号（去掉 " (n)" 后缀）内属性完全一致的行并成一行累计数量，
// 行项目改挂保留行；随后按创建时间重排后缀：最早的不带后缀，其余 (1)、(2)…
// 返回被合并掉的行数
func (s *DedupService) MergeExactDuplicates(ctx context.Context) (int, error) {
	merged := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		productRepo := repository.NewProductRepository(tx)
		products, err := productRepo.ListLive(ctx)
		if err != nil {
			return err
		}

		groups := make(map[string][]*model.Product)
		var order []string
		for i := range products {
			p := &products[i]
			if p.Number == model.PlaceholderNumber {
				continue
			}
			key := strings.ToLower(model.BaseNumber(p.Number))
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], p)
		}

		for _, key := range order {
			group := groups[key]
			survivors := make([]*model.Product, 0, len(group))
			for _, p := range group {
				var kept *model.Product
				for _, sv := range survivors {
					if productsIdentical(sv, p) {
						kept = sv
						break
					}
				}
				if kept == nil {
					survivors = append(survivors, p)
					continue
				}

				kept.Quantity += p.Quantity
				if err := productRepo.Update(ctx, kept); err != nil {
					return err
				}
				if err := tx.Model(&model.OrderItem{}).
					Where("product_id = ?", p.ID).
					Update("product_id", kept.ID).Error; err != nil {
					return err
				}
				if err := productRepo.Delete(ctx, p.ID); err != nil {
					return err
				}
				merged++
			}

			if err := reassignSuffixes(ctx, productRepo, survivors); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return merged, nil
}

// productsIdentical 商品是否完全重复
// 结构属性精确比，文本属性大小写不敏感；码数/尺寸两侧都填了才参与比较
func productsIdentical(a, b *model.Product) bool {
	if a.Type != b.Type || a.Subtype != b.Subtype || a.Brand != b.Brand {
		return false
	}
	if a.Gender != b.Gender || a.ColorID != b.ColorID || a.Year != b.Year {
		return false
	}
	if !strings.EqualFold(a.Model, b.Model) || !strings.EqualFold(a.Marking, b.Marking) {
		return false
	}
	if !strings.EqualFold(a.Description, b.Description) {
		return false
	}
	if a.Size != "" && b.Size != "" && !strings.EqualFold(a.Size, b.Size) {
		return false
	}
	if a.Dimensions != "" && b.Dimensions != "" && !strings.EqualFold(a.Dimensions, b.Dimensions) {
		return false
	}
	return true
}

// reassignSuffixes 按创建时间重排同逻辑货号的区分后缀
func reassignSuffixes(ctx context.Context, productRepo repository.ProductRepository, group []*model.Product) error {
	if len(group) < 2 {
		// 独苗不需要后缀
		if len(group) == 1 && model.HasNumberSuffix(group[0].Number) {
			group[0].Number = model.BaseNumber(group[0].Number)
			return productRepo.Update(ctx, group[0])
		}
		return nil
	}

	sorted := make([]*model.Product, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	base := model.BaseNumber(sorted[0].Number)
	for idx, p := range sorted {
		want := model.NumberWithSuffix(base, idx)
		if p.Number == want {
			continue
		}
		p.Number = want
		if err := productRepo.Update(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// ==================== 订单清理 ====================

// CleanupDuplicateOrders 清理同客户名下的历史重复订单
// 货号集合 + 付款文案 + 下单日期都一致的订单留最新一单删其余；
// 被删的单已付款时，售出标记转到保留单的商品上；
// 被删后没人引用的商品释放回在售（占位商品直接下架）
// 返回删掉的订单数
func (s *DedupService) CleanupDuplicateOrders(ctx context.Context) (int, error) {
	removed := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderRepo := repository.NewOrderRepository(tx)
		productRepo := repository.NewProductRepository(tx)
		clientRepo := repository.NewClientRepository(tx)

		orders, err := orderRepo.ListAllWithItems(ctx)
		if err != nil {
			return err
		}

		groups := make(map[string][]*model.Order)
		var keys []string
		for i := range orders {
			o := &orders[i]
			key := duplicateOrderKey(o)
			if _, ok := groups[key]; !ok {
				keys = append(keys, key)
			}
			groups[key] = append(groups[key], o)
		}

		touchedClients := make(map[int64]bool)
		for _, key := range keys {
			group := groups[key]
			if len(group) < 2 {
				continue
			}

			// ID 最大的是最新一次落库的，留它
			kept := group[0]
			for _, o := range group[1:] {
				if o.ID > kept.ID {
					kept = o
				}
			}

			for _, o := range group {
				if o.ID == kept.ID {
					continue
				}
				if o.PaymentStatus == model.PaymentStatusPaid {
					ids := make([]int64, 0, len(kept.Items))
					for _, it := range kept.Items {
						if it.Product != nil && it.Product.Number != model.PlaceholderNumber {
							ids = append(ids, it.ProductID)
						}
					}
					if err := productRepo.MarkSold(ctx, ids); err != nil {
						return err
					}
				}

				orphanCandidates := make([]int64, 0, len(o.Items))
				for _, it := range o.Items {
					orphanCandidates = append(orphanCandidates, it.ProductID)
				}

				if err := orderRepo.Delete(ctx, o.ID); err != nil {
					return err
				}
				removed++
				touchedClients[o.ClientID] = true

				if err := releaseOrphanProducts(ctx, tx, productRepo, orphanCandidates); err != nil {
					return err
				}
			}
		}

		for clientID := range touchedClients {
			if err := clientRepo.RefreshOrderStats(ctx, clientID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// duplicateOrderKey 订单重复判定键：客户 + 货号多重集 + 付款文案 + 日期
func duplicateOrderKey(o *model.Order) string {
	numbers := o.ProductNumbers()
	normalized := make([]string, len(numbers))
	for i, n := range numbers {
		normalized[i] = normalizeNumber(n)
	}
	sort.Strings(normalized)

	date := ""
	if o.OrderDate != nil {
		date = o.OrderDate.Format("2006-01-02")
	}
	payment := strings.ToLower(strings.Join(strings.Fields(o.PaymentStatusText), " "))

	return strings.Join([]string{
		strconv.FormatInt(o.ClientID, 10),
		strings.Join(normalized, ","),
		payment,
		date,
	}, "|")
}

// releaseOrphanProducts 被删订单的商品若再无行项目引用则释放
func releaseOrphanProducts(ctx context.Context, tx *gorm.DB, productRepo repository.ProductRepository, ids []int64) error {
	for _, id := range ids {
		var count int64
		if err := tx.Model(&model.OrderItem{}).Where("product_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		p, err := productRepo.GetByID(ctx, id)
		if err != nil || p == nil {
			return err
		}
		if p.Number == model.PlaceholderNumber {
			p.Status = model.ProductStatusDeleted
		} else if p.Status == model.ProductStatusSold {
			p.Status = model.ProductStatusUnsold
		} else {
			continue
		}
		if err := productRepo.Update(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
