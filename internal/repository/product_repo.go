package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"sheetorders_dev_v1_202608/internal/model"
)

// ==================== ProductRepository 商品仓库 ====================

// ProductRepository 商品仓库接口
// "存活行" 指 status != deleted 的商品；货号唯一性只在存活行内成立
type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id int64) (*model.Product, error)
	// GetLiveByNumber 按显示货号精确取一条存活行，未命中返回 (nil, nil)
	GetLiveByNumber(ctx context.Context, number string) (*model.Product, error)
	// ListLiveByNumber 同一显示货号的全部存活行（码数合并用）
	ListLiveByNumber(ctx context.Context, number string) ([]model.Product, error)
	ListLive(ctx context.Context) ([]model.Product, error)
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id int64) error
	// MarkSold 批量置为已售出
	MarkSold(ctx context.Context, ids []int64) error
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓库
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepository) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).First(&product, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) GetLiveByNumber(ctx context.Context, number string) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).
		Where("number = ? AND status <> ?", number, model.ProductStatusDeleted).
		Order("id asc").
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) ListLiveByNumber(ctx context.Context, number string) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("number = ? AND status <> ?", number, model.ProductStatusDeleted).
		Order("id asc").
		Find(&products).Error
	return products, err
}

func (r *productRepository) ListLive(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("status <> ?", model.ProductStatusDeleted).
		Order("created_at asc, id asc").
		Find(&products).Error
	return products, err
}

func (r *productRepository) Update(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

func (r *productRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.Product{}, id).Error
}

func (r *productRepository) MarkSold(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.Product{}).
		Where("id IN ?", ids).
		Update("status", model.ProductStatusSold).Error
}
