package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"sheetorders_dev_v1_202608/internal/model"
	"sheetorders_dev_v1_202608/internal/repository"
)

func seedProduct(t *testing.T, db *gorm.DB, p *model.Product) *model.Product {
	t.Helper()
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("建商品失败: %v", err)
	}
	return p
}

func TestMergeExactDuplicates_MergesAndRepoints(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewDedupService(db)
	ctx := context.Background()

	keep := seedProduct(t, db, &model.Product{Number: "Д-12", Brand: "Nike", Quantity: 1, Status: model.ProductStatusUnsold})
	dup := seedProduct(t, db, &model.Product{Number: "Д-12", Brand: "Nike", Quantity: 2, Status: model.ProductStatusUnsold})

	order := &model.Order{ClientID: 1}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("建订单失败: %v", err)
	}
	item := &model.OrderItem{OrderID: order.ID, ProductID: dup.ID, Quantity: 1}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("建行项目失败: %v", err)
	}

	merged, err := svc.MergeExactDuplicates(ctx)
	if err != nil {
		t.Fatalf("MergeExactDuplicates() error = %v", err)
	}
	if merged != 1 {
		t.Errorf("merged = %d, 期望 1", merged)
	}

	var keptReloaded model.Product
	if err := db.First(&keptReloaded, keep.ID).Error; err != nil {
		t.Fatalf("保留行应还在: %v", err)
	}
	if keptReloaded.Quantity != 3 {
		t.Errorf("Quantity = %d, 合并后期望 3", keptReloaded.Quantity)
	}

	var gone model.Product
	if err := db.First(&gone, dup.ID).Error; err == nil {
		t.Error("重复行应被删除")
	}

	var reItem model.OrderItem
	if err := db.First(&reItem, item.ID).Error; err != nil {
		t.Fatalf("行项目应还在: %v", err)
	}
	if reItem.ProductID != keep.ID {
		t.Errorf("行项目应改挂保留行 %d, got %d", keep.ID, reItem.ProductID)
	}
}

func TestMergeExactDuplicates_DifferentAttrsSurvive(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewDedupService(db)

	seedProduct(t, db, &model.Product{Number: "Д-12", Brand: "Nike", Status: model.ProductStatusUnsold})
	seedProduct(t, db, &model.Product{Number: "Д-12", Brand: "Adidas", Status: model.ProductStatusUnsold})

	merged, err := svc.MergeExactDuplicates(context.Background())
	if err != nil {
		t.Fatalf("MergeExactDuplicates() error = %v", err)
	}
	if merged != 0 {
		t.Errorf("merged = %d, 属性不同不应合并", merged)
	}

	var numbers []string
	db.Model(&model.Product{}).Order("id asc").Pluck("number", &numbers)
	if len(numbers) != 2 || numbers[0] != "Д-12" || numbers[1] != "Д-12 (1)" {
		t.Errorf("后缀重排结果 = %v, 期望 [Д-12, Д-12 (1)]", numbers)
	}
}

func TestMergeExactDuplicates_SuffixReassignedAfterGap(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewDedupService(db)

	// 历史上有过 (1)，原件没了：幸存行应降回无后缀
	seedProduct(t, db, &model.Product{Number: "Д-12 (1)", Brand: "Nike", Status: model.ProductStatusUnsold})

	if _, err := svc.MergeExactDuplicates(context.Background()); err != nil {
		t.Fatalf("MergeExactDuplicates() error = %v", err)
	}

	var number string
	db.Model(&model.Product{}).Pluck("number", &number)
	if number != "Д-12" {
		t.Errorf("number = %q, 独苗应去掉后缀", number)
	}
}

func TestCleanupDuplicateOrders(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewDedupService(db)
	ctx := context.Background()

	client := &model.Client{LastName: "Иванов"}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("建客户失败: %v", err)
	}

	date := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)

	// 旧单：已付款，商品已标售出
	oldProduct := seedProduct(t, db, &model.Product{Number: "Д-1", Status: model.ProductStatusSold})
	oldOrder := &model.Order{
		ClientID:          client.ID,
		OrderDate:         &date,
		PaymentStatus:     model.PaymentStatusPaid,
		PaymentStatusText: "оплачен",
		TotalAmount:       decimal.NewFromInt(1000),
	}
	if err := db.Create(oldOrder).Error; err != nil {
		t.Fatalf("建订单失败: %v", err)
	}
	db.Create(&model.OrderItem{OrderID: oldOrder.ID, ProductID: oldProduct.ID, Quantity: 1})

	// 新单：同货号集合/付款文案/日期，商品行是另一条
	newProduct := seedProduct(t, db, &model.Product{Number: "Д-1", Status: model.ProductStatusUnsold})
	newOrder := &model.Order{
		ClientID:          client.ID,
		OrderDate:         &date,
		PaymentStatusText: "оплачен",
		TotalAmount:       decimal.NewFromInt(1000),
	}
	if err := db.Create(newOrder).Error; err != nil {
		t.Fatalf("建订单失败: %v", err)
	}
	db.Create(&model.OrderItem{OrderID: newOrder.ID, ProductID: newProduct.ID, Quantity: 1})

	removed, err := svc.CleanupDuplicateOrders(ctx)
	if err != nil {
		t.Fatalf("CleanupDuplicateOrders() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, 期望 1", removed)
	}

	// 留下的是最新一单
	var orders []model.Order
	db.Find(&orders)
	if len(orders) != 1 || orders[0].ID != newOrder.ID {
		t.Errorf("剩余订单 = %+v, 应只留最新的 %d", orders, newOrder.ID)
	}

	// 售出标记从被删的付款单转到保留单的商品
	var kept model.Product
	db.First(&kept, newProduct.ID)
	if kept.Status != model.ProductStatusSold {
		t.Errorf("保留单的商品状态 = %q, 期望 sold", kept.Status)
	}

	// 被删订单独占的商品释放回在售
	var released model.Product
	db.First(&released, oldProduct.ID)
	if released.Status != model.ProductStatusUnsold {
		t.Errorf("孤儿商品状态 = %q, 期望释放回 unsold", released.Status)
	}

	// 客户统计刷新
	reloaded, _ := repository.NewClientRepository(db).GetByID(ctx, client.ID)
	if reloaded.OrdersCount != 1 {
		t.Errorf("客户订单数 = %d, 期望 1", reloaded.OrdersCount)
	}
}

func TestCleanupDuplicateOrders_DifferentClientsUntouched(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewDedupService(db)

	p1 := seedProduct(t, db, &model.Product{Number: "Д-1", Status: model.ProductStatusUnsold})
	p2 := seedProduct(t, db, &model.Product{Number: "Д-1", Status: model.ProductStatusUnsold})

	for i, pid := range []int64{p1.ID, p2.ID} {
		order := &model.Order{ClientID: int64(i + 1)}
		if err := db.Create(order).Error; err != nil {
			t.Fatalf("建订单失败: %v", err)
		}
		db.Create(&model.OrderItem{OrderID: order.ID, ProductID: pid, Quantity: 1})
	}

	removed, err := svc.CleanupDuplicateOrders(context.Background())
	if err != nil {
		t.Fatalf("CleanupDuplicateOrders() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, 不同客户的相似订单不应互删", removed)
	}
}
