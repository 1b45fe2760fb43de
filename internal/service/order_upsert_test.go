package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"sheetorders_dev_v1_202608/internal/api/dto"
	"sheetorders_dev_v1_202608/internal/model"
	"sheetorders_dev_v1_202608/internal/repository"
)

func newUpsertEnv(t *testing.T) (*gorm.DB, *OrderUpsertEngine) {
	db := setupServiceTestDB(t)
	return db, NewOrderUpsertEngine(db)
}

func basicIntent() *dto.OrderIntent {
	return &dto.OrderIntent{
		SheetName:      "07.03.2024",
		RowIndex:       2,
		ClientName:     "Иванов Иван",
		ProductNumbers: []string{"Д-1"},
		Prices:         []decimal.Decimal{decimal.NewFromInt(1000)},
	}
}

func TestUpsertRow_CreatesEverything(t *testing.T) {
	db, engine := newUpsertEnv(t)
	ctx := context.Background()

	order, err := engine.UpsertRow(ctx, basicIntent())
	if err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}

	if !order.TotalAmount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("TotalAmount = %s, 期望 1000", order.TotalAmount)
	}
	if model.ExtractOrderIDToken(order.Notes) != order.ID {
		t.Errorf("备注里应有 OrderID=%d 回查标记: %q", order.ID, order.Notes)
	}
	if order.Status != model.OrderStatusNew {
		t.Errorf("Status = %q, 无状态行应默认 new", order.Status)
	}

	client, err := repository.NewClientRepository(db).FindByName(ctx, "Иванов", "Иван", "")
	if err != nil || client == nil {
		t.Fatalf("客户应被创建: %v", err)
	}
	if client.OrdersCount != 1 || !client.OrdersTotal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("客户统计 = %d/%s, 期望 1/1000", client.OrdersCount, client.OrdersTotal)
	}

	product, err := repository.NewProductRepository(db).GetLiveByNumber(ctx, "Д-1")
	if err != nil || product == nil {
		t.Fatalf("商品应被创建: %v", err)
	}
	if !product.Price.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("商品价格 = %s, 期望回填 1000", product.Price)
	}
}

func TestUpsertRow_PercentDiscount(t *testing.T) {
	_, engine := newUpsertEnv(t)
	intent := basicIntent()
	intent.DiscountType = model.DiscountTypePercent
	intent.DiscountValue = decimal.NewFromInt(10)

	order, err := engine.UpsertRow(context.Background(), intent)
	if err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}
	if !order.TotalAmount.Equal(decimal.NewFromInt(900)) {
		t.Errorf("TotalAmount = %s, 1000 打九折期望 900", order.TotalAmount)
	}
}

func TestUpsertRow_DiscountOnlyFirstItem(t *testing.T) {
	_, engine := newUpsertEnv(t)
	intent := basicIntent()
	intent.ProductNumbers = []string{"Д-1", "К-2"}
	intent.Prices = []decimal.Decimal{decimal.NewFromInt(1000), decimal.NewFromInt(500)}
	intent.DiscountType = model.DiscountTypeFixed
	intent.DiscountValue = decimal.NewFromInt(100)

	order, err := engine.UpsertRow(context.Background(), intent)
	if err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}
	// 900 + 500：折扣只吃第一项
	if !order.TotalAmount.Equal(decimal.NewFromInt(1400)) {
		t.Errorf("TotalAmount = %s, 期望 1400", order.TotalAmount)
	}
	if order.Items[1].DiscountValue.IsPositive() {
		t.Error("第二个行项目不应带折扣")
	}
}

func TestUpsertRow_OperationValue(t *testing.T) {
	_, engine := newUpsertEnv(t)
	intent := basicIntent()
	intent.HasOperation = true
	intent.OperationName = "-200 ушив"
	intent.OperationValue = decimal.NewFromInt(-200)

	order, err := engine.UpsertRow(context.Background(), intent)
	if err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}
	if !order.TotalAmount.Equal(decimal.NewFromInt(800)) {
		t.Errorf("TotalAmount = %s, 期望 800", order.TotalAmount)
	}
}

func TestUpsertRow_GiftZeroTotal(t *testing.T) {
	_, engine := newUpsertEnv(t)
	intent := basicIntent()
	intent.OrderStatus = model.OrderStatusGift

	order, err := engine.UpsertRow(context.Background(), intent)
	if err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}
	if !order.TotalAmount.IsZero() {
		t.Errorf("TotalAmount = %s, 赠送订单总额必须为 0", order.TotalAmount)
	}
}

func TestUpsertRow_NegativeTotalFloored(t *testing.T) {
	_, engine := newUpsertEnv(t)
	intent := basicIntent()
	intent.DiscountType = model.DiscountTypeFixed
	intent.DiscountValue = decimal.NewFromInt(5000)

	order, err := engine.UpsertRow(context.Background(), intent)
	if err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}
	if !order.TotalAmount.IsZero() {
		t.Errorf("TotalAmount = %s, 算出负数应保底为 0", order.TotalAmount)
	}
}

func TestUpsertRow_PaidMarksProductsSold(t *testing.T) {
	db, engine := newUpsertEnv(t)
	intent := basicIntent()
	intent.PaymentStatus = model.PaymentStatusPaid
	intent.PaymentStatusText = "оплачен"

	if _, err := engine.UpsertRow(context.Background(), intent); err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}

	var product model.Product
	if err := db.Where("number = ?", "Д-1").First(&product).Error; err != nil {
		t.Fatalf("查商品失败: %v", err)
	}
	if product.Status != model.ProductStatusSold {
		t.Errorf("Status = %q, 已付款订单的商品应标记售出", product.Status)
	}
}

func TestUpsertRow_IdempotentRerun(t *testing.T) {
	db, engine := newUpsertEnv(t)
	ctx := context.Background()

	first, err := engine.UpsertRow(ctx, basicIntent())
	if err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}
	second, err := engine.UpsertRow(ctx, basicIntent())
	if err != nil {
		t.Fatalf("重跑 UpsertRow() error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("重跑同一行不应建新订单: %d != %d", first.ID, second.ID)
	}

	var orderCount, itemCount int64
	db.Model(&model.Order{}).Count(&orderCount)
	db.Model(&model.OrderItem{}).Count(&itemCount)
	if orderCount != 1 {
		t.Errorf("订单数 = %d, 期望 1", orderCount)
	}
	if itemCount != 1 {
		t.Errorf("行项目数 = %d, 重建不应累积", itemCount)
	}

	client, _ := repository.NewClientRepository(db).FindByName(ctx, "Иванов", "Иван", "")
	if client.OrdersCount != 1 {
		t.Errorf("客户订单数 = %d, 期望 1", client.OrdersCount)
	}
}

func TestUpsertRow_PlaceholderReconciled(t *testing.T) {
	db, engine := newUpsertEnv(t)
	ctx := context.Background()

	// 第一轮：行里只有占位货号
	withPlaceholder := basicIntent()
	withPlaceholder.ProductNumbers = []string{model.PlaceholderNumber}
	first, err := engine.UpsertRow(ctx, withPlaceholder)
	if err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}

	// 第二轮：同一行补上了真实货号
	withReal := basicIntent()
	second, err := engine.UpsertRow(ctx, withReal)
	if err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("补货号应命中原订单: %d != %d", first.ID, second.ID)
	}

	loaded, _ := repository.NewOrderRepository(db).GetByIDWithItems(ctx, second.ID)
	numbers := loaded.ProductNumbers()
	if len(numbers) != 1 || numbers[0] != "Д-1" {
		t.Errorf("订单货号 = %v, 占位应被真实货号替换", numbers)
	}

	// 被替换下来的占位商品应下架
	var stale int64
	db.Model(&model.Product{}).
		Where("number = ? AND status <> ?", model.PlaceholderNumber, model.ProductStatusDeleted).
		Count(&stale)
	if stale != 0 {
		t.Errorf("残留存活占位商品 %d 件, 期望 0", stale)
	}
}

func TestUpsertRow_PlaceholderRowKeepsRealProducts(t *testing.T) {
	_, engine := newUpsertEnv(t)
	ctx := context.Background()

	real := basicIntent()
	first, err := engine.UpsertRow(ctx, real)
	if err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}

	// 同一单反向出现占位行：不允许把真实货号冲掉
	placeholder := basicIntent()
	placeholder.ProductNumbers = []string{model.PlaceholderNumber}
	placeholder.Notes = model.AppendOrderIDToken("", first.ID)
	second, err := engine.UpsertRow(ctx, placeholder)
	if err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("应命中原订单")
	}
	numbers := second.ProductNumbers()
	if len(numbers) != 1 || numbers[0] != "Д-1" {
		t.Errorf("订单货号 = %v, 既有真实货号不应被占位取代", numbers)
	}
}

func TestUpsertRow_CloneAliasAttached(t *testing.T) {
	db, engine := newUpsertEnv(t)
	intent := basicIntent()
	intent.CloneNumbers = []dto.CloneRef{{Number: "Б-12", Original: "Д-1"}}

	if _, err := engine.UpsertRow(context.Background(), intent); err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}

	product, _ := repository.NewProductRepository(db).GetLiveByNumber(context.Background(), "Д-1")
	clones := product.GetCloneNumbers()
	if len(clones) != 1 || clones[0] != "Б-12" {
		t.Errorf("克隆货号 = %v, 期望 [Б-12]", clones)
	}
}

func TestUpsertRow_SoldNumberGetsSecondUnit(t *testing.T) {
	db, engine := newUpsertEnv(t)
	ctx := context.Background()

	// 第一单买走 Д-1
	paid := basicIntent()
	paid.PaymentStatus = model.PaymentStatusPaid
	paid.PaymentStatusText = "оплачен"
	if _, err := engine.UpsertRow(ctx, paid); err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}

	// 另一个客户又买同号：应另起一件实物，不抢已售行
	other := basicIntent()
	other.ClientName = "Петров Петр"
	secondOrder, err := engine.UpsertRow(ctx, other)
	if err != nil {
		t.Fatalf("UpsertRow() error = %v", err)
	}

	var count int64
	db.Model(&model.Product{}).Where("number = ?", "Д-1").Count(&count)
	if count != 2 {
		t.Errorf("同号商品行数 = %d, 期望 2", count)
	}

	var sold model.Product
	db.Where("number = ? AND status = ?", "Д-1", model.ProductStatusSold).First(&sold)
	if len(secondOrder.Items) != 1 || secondOrder.Items[0].ProductID == sold.ID {
		t.Error("新订单不应引用已售出的那件")
	}
}
