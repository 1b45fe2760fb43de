package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"sheetorders_dev_v1_202608/internal/model"
	"sheetorders_dev_v1_202608/internal/repository"
)

// ==================== RefResolver 引用实体解析 ====================

// RefResolver 客户/商品的 get-or-create 解析器
type RefResolver struct {
	clientRepo  repository.ClientRepository
	productRepo repository.ProductRepository
}

// NewRefResolver 创建引用解析器
func NewRefResolver(clientRepo repository.ClientRepository, productRepo repository.ProductRepository) *RefResolver {
	return &RefResolver{clientRepo: clientRepo, productRepo: productRepo}
}

// ==================== 客户 ====================

// GetOrCreateClient 按姓名取客户，不存在就建
// 姓名按空白切成 姓/名/父称；匹配大小写不敏感；
// 新建时按姓氏后缀推断性别；已有客户是 unisex 而新推断更具体时静默升级
func (r *RefResolver) GetOrCreateClient(ctx context.Context, fullName string) (*model.Client, error) {
	lastName, firstName, middleName := splitFullName(fullName)
	if lastName == "" {
		return r.GetOrCreateDefaultClient(ctx)
	}

	client, err := r.clientRepo.FindByName(ctx, lastName, firstName, middleName)
	if err != nil {
		return nil, fmt.Errorf("查客户失败: %w", err)
	}

	inferred := model.InferGenderFromSurname(lastName)

	if client != nil {
		if client.Gender == model.GenderUnisex && inferred != model.GenderUnisex {
			client.Gender = inferred
			if err := r.clientRepo.Update(ctx, client); err != nil {
				return nil, fmt.Errorf("升级客户性别失败: %w", err)
			}
		}
		return client, nil
	}

	client = &model.Client{
		LastName:   lastName,
		FirstName:  firstName,
		MiddleName: middleName,
		Gender:     inferred,
	}
	if err := r.clientRepo.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("建客户失败: %w", err)
	}
	return client, nil
}

// GetOrCreateDefaultClient 兜底客户：行里没有姓名时订单挂在它名下
func (r *RefResolver) GetOrCreateDefaultClient(ctx context.Context) (*model.Client, error) {
	client, err := r.clientRepo.FindByName(ctx, model.UnknownClientName, "", "")
	if err != nil {
		return nil, err
	}
	if client != nil {
		return client, nil
	}
	client = &model.Client{LastName: model.UnknownClientName, Gender: model.GenderUnisex}
	if err := r.clientRepo.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("建兜底客户失败: %w", err)
	}
	return client, nil
}

// FillClientContacts 回填联系方式：只写空字段，已有数据不覆盖
func (r *RefResolver) FillClientContacts(ctx context.Context, client *model.Client, phone, email, address string) error {
	changed := false
	if client.Phone == "" && phone != "" {
		client.Phone = phone
		changed = true
	}
	if client.Email == "" && email != "" {
		client.Email = email
		changed = true
	}
	if client.Address == "" && address != "" {
		client.Address = address
		changed = true
	}
	if !changed {
		return nil
	}
	return r.clientRepo.Update(ctx, client)
}

// ==================== 商品 ====================

// GetOrCreateProduct 按显示货号取存活商品，不存在就按 unsold 建一条
func (r *RefResolver) GetOrCreateProduct(ctx context.Context, number string) (*model.Product, error) {
	number = strings.TrimSpace(number)
	product, err := r.productRepo.GetLiveByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("查商品失败: %w", err)
	}
	if product != nil {
		return product, nil
	}
	product = &model.Product{
		Number:   number,
		Status:   model.ProductStatusUnsold,
		Quantity: 1,
	}
	if err := r.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("建商品失败: %w", err)
	}
	return product, nil
}

// UpdateProductPrice 更新商品现价
// 旧价只在 OldPrice 为空或小于将被挤出的价格时入历史 —— 保留的是历史最高参考价，不是最近一次
func (r *RefResolver) UpdateProductPrice(ctx context.Context, product *model.Product, newPrice decimal.Decimal) error {
	if product.Price.Equal(newPrice) {
		return nil
	}
	if !product.Price.IsZero() {
		if product.OldPrice == nil || product.OldPrice.LessThan(product.Price) {
			outgoing := product.Price
			product.OldPrice = &outgoing
		}
	}
	product.Price = newPrice
	return r.productRepo.Update(ctx, product)
}

// ==================== 姓名切分 ====================

// splitFullName "Фамилия Имя Отчество" -> (姓, 名, 父称)
func splitFullName(fullName string) (lastName, firstName, middleName string) {
	parts := strings.Fields(fullName)
	switch len(parts) {
	case 0:
		return "", "", ""
	case 1:
		return parts[0], "", ""
	case 2:
		return parts[0], parts[1], ""
	default:
		return parts[0], parts[1], strings.Join(parts[2:], " ")
	}
}
