package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"sheetorders_dev_v1_202608/internal/model"
)

// ==================== OrderRepository 订单仓库 ====================

// OrderRepository 订单仓库接口
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	// GetByIDWithItems 带行项目和商品预加载
	GetByIDWithItems(ctx context.Context, id int64) (*model.Order, error)
	// GetByTracking 按快递单号取订单，未命中返回 (nil, nil)
	GetByTracking(ctx context.Context, trackingNumber string) (*model.Order, error)
	// ListByClient 某客户的全部订单（带行项目）
	ListByClient(ctx context.Context, clientID int64) ([]model.Order, error)
	// ListAllWithItems 全量订单（带行项目），订单清理维护用
	ListAllWithItems(ctx context.Context) ([]model.Order, error)
	Update(ctx context.Context, order *model.Order) error
	// Delete 删除订单并级联删除其行项目
	Delete(ctx context.Context, id int64) error
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByIDWithItems(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").Preload("Items.Product").
		First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByTracking(ctx context.Context, trackingNumber string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").Preload("Items.Product").
		Where("tracking_number = ?", trackingNumber).
		Order("id asc").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) ListByClient(ctx context.Context, clientID int64) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").Preload("Items.Product").
		Where("client_id = ?", clientID).
		Order("id asc").
		Find(&orders).Error
	return orders, err
}

func (r *orderRepository) ListAllWithItems(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").Preload("Items.Product").
		Order("client_id asc, id asc").
		Find(&orders).Error
	return orders, err
}

func (r *orderRepository) Update(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *orderRepository) Delete(ctx context.Context, id int64) error {
	// 先删行项目再删订单：sqlite 测试库不跑外键级联
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&model.OrderItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Order{}, id).Error
	})
}
