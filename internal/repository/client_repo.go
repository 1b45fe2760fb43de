package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"sheetorders_dev_v1_202608/internal/model"
)

// ==================== ClientRepository 客户仓库 ====================

// ClientRepository 客户仓库接口
type ClientRepository interface {
	Create(ctx context.Context, client *model.Client) error
	GetByID(ctx context.Context, id int64) (*model.Client, error)
	// FindByName 按姓/名/父称三段做大小写不敏感精确匹配，未命中返回 (nil, nil)
	FindByName(ctx context.Context, lastName, firstName, middleName string) (*model.Client, error)
	Update(ctx context.Context, client *model.Client) error
	List(ctx context.Context) ([]model.Client, error)
	// RefreshOrderStats 重算客户的订单数与订单总额聚合列
	RefreshOrderStats(ctx context.Context, clientID int64) error
}

type clientRepository struct {
	db *gorm.DB
}

// NewClientRepository 创建客户仓库
func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) Create(ctx context.Context, client *model.Client) error {
	return r.db.WithContext(ctx).Create(client).Error
}

func (r *clientRepository) GetByID(ctx context.Context, id int64) (*model.Client, error) {
	var client model.Client
	err := r.db.WithContext(ctx).First(&client, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *clientRepository) FindByName(ctx context.Context, lastName, firstName, middleName string) (*model.Client, error) {
	var client model.Client
	err := r.db.WithContext(ctx).
		Where("LOWER(last_name) = LOWER(?) AND LOWER(first_name) = LOWER(?) AND LOWER(middle_name) = LOWER(?)",
			lastName, firstName, middleName).
		First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *clientRepository) Update(ctx context.Context, client *model.Client) error {
	return r.db.WithContext(ctx).Save(client).Error
}

func (r *clientRepository) List(ctx context.Context) ([]model.Client, error) {
	var clients []model.Client
	err := r.db.WithContext(ctx).Order("id asc").Find(&clients).Error
	return clients, err
}

func (r *clientRepository) RefreshOrderStats(ctx context.Context, clientID int64) error {
	// 子查询直接重算，避免读改写竞争
	return r.db.WithContext(ctx).Exec(`
		UPDATE clients SET
			orders_count = (SELECT COUNT(*) FROM orders WHERE orders.client_id = clients.id AND orders.deleted_at IS NULL),
			orders_total = (SELECT COALESCE(SUM(total_amount), 0) FROM orders WHERE orders.client_id = clients.id AND orders.deleted_at IS NULL)
		WHERE clients.id = ?`, clientID).Error
}
