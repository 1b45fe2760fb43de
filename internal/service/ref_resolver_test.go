package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"sheetorders_dev_v1_202608/internal/model"
	"sheetorders_dev_v1_202608/internal/repository"
)

func newTestRefResolver(t *testing.T) (*RefResolver, repository.ClientRepository, repository.ProductRepository) {
	db := setupServiceTestDB(t)
	clientRepo := repository.NewClientRepository(db)
	productRepo := repository.NewProductRepository(db)
	return NewRefResolver(clientRepo, productRepo), clientRepo, productRepo
}

func TestGetOrCreateClient_CreatesWithGender(t *testing.T) {
	r, _, _ := newTestRefResolver(t)
	ctx := context.Background()

	client, err := r.GetOrCreateClient(ctx, "Иванова Мария Петровна")
	if err != nil {
		t.Fatalf("GetOrCreateClient() error = %v", err)
	}
	if client.LastName != "Иванова" || client.FirstName != "Мария" || client.MiddleName != "Петровна" {
		t.Errorf("姓名切分错误: %+v", client)
	}
	if client.Gender != model.GenderFemale {
		t.Errorf("Gender = %q, 姓氏 Иванова 应推断为女性", client.Gender)
	}
}

func TestGetOrCreateClient_ReusesExisting(t *testing.T) {
	r, _, _ := newTestRefResolver(t)
	ctx := context.Background()

	// sqlite 的 LOWER 只折叠 ASCII，大小写不敏感断言用拉丁名
	first, _ := r.GetOrCreateClient(ctx, "Smith John")
	second, err := r.GetOrCreateClient(ctx, "smith john")
	if err != nil {
		t.Fatalf("GetOrCreateClient() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("大小写不同的同名客户应复用同一条记录: %d != %d", first.ID, second.ID)
	}

	exact, _ := r.GetOrCreateClient(ctx, "Петров Иван")
	again, _ := r.GetOrCreateClient(ctx, "Петров Иван")
	if exact.ID != again.ID {
		t.Errorf("同名客户应复用同一条记录: %d != %d", exact.ID, again.ID)
	}
}

func TestGetOrCreateClient_UpgradesUnisexGender(t *testing.T) {
	r, clientRepo, _ := newTestRefResolver(t)
	ctx := context.Background()

	seed := &model.Client{LastName: "Сидоров", Gender: model.GenderUnisex}
	if err := clientRepo.Create(ctx, seed); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	client, err := r.GetOrCreateClient(ctx, "Сидоров")
	if err != nil {
		t.Fatalf("GetOrCreateClient() error = %v", err)
	}
	if client.ID != seed.ID {
		t.Fatal("应复用既有客户")
	}
	if client.Gender != model.GenderMale {
		t.Errorf("Gender = %q, unisex 客户应被静默升级为男性", client.Gender)
	}

	// 已有具体性别不允许被改
	again, _ := r.GetOrCreateClient(ctx, "Сидоров")
	if again.Gender != model.GenderMale {
		t.Errorf("Gender = %q, 已推断的性别不应再变", again.Gender)
	}
}

func TestGetOrCreateClient_EmptyNameFallsBack(t *testing.T) {
	r, _, _ := newTestRefResolver(t)
	ctx := context.Background()

	client, err := r.GetOrCreateClient(ctx, "   ")
	if err != nil {
		t.Fatalf("GetOrCreateClient() error = %v", err)
	}
	if !client.IsUnknown() {
		t.Errorf("空姓名应落到兜底客户, got %+v", client)
	}

	second, _ := r.GetOrCreateDefaultClient(ctx)
	if client.ID != second.ID {
		t.Error("兜底客户必须是单例")
	}
}

func TestFillClientContacts_OnlyEmptyFields(t *testing.T) {
	r, clientRepo, _ := newTestRefResolver(t)
	ctx := context.Background()

	client := &model.Client{LastName: "Иванов", Phone: "111"}
	if err := clientRepo.Create(ctx, client); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := r.FillClientContacts(ctx, client, "222", "a@b.c", ""); err != nil {
		t.Fatalf("FillClientContacts() error = %v", err)
	}
	if client.Phone != "111" {
		t.Errorf("Phone = %q, 已有联系方式不应被覆盖", client.Phone)
	}
	if client.Email != "a@b.c" {
		t.Errorf("Email = %q, 空字段应被回填", client.Email)
	}
}

func TestGetOrCreateProduct(t *testing.T) {
	r, _, productRepo := newTestRefResolver(t)
	ctx := context.Background()

	p, err := r.GetOrCreateProduct(ctx, " Д-12 ")
	if err != nil {
		t.Fatalf("GetOrCreateProduct() error = %v", err)
	}
	if p.Number != "Д-12" {
		t.Errorf("Number = %q, 应去掉首尾空白", p.Number)
	}
	if p.Status != model.ProductStatusUnsold || p.Quantity != 1 {
		t.Errorf("新商品应为 unsold/数量 1: %+v", p)
	}

	again, _ := r.GetOrCreateProduct(ctx, "Д-12")
	if again.ID != p.ID {
		t.Error("同货号应复用存活行")
	}

	// 下架行不参与复用
	p.Status = model.ProductStatusDeleted
	_ = productRepo.Update(ctx, p)
	fresh, _ := r.GetOrCreateProduct(ctx, "Д-12")
	if fresh.ID == p.ID {
		t.Error("已下架商品不应被复用")
	}
}

func TestUpdateProductPrice_History(t *testing.T) {
	r, _, productRepo := newTestRefResolver(t)
	ctx := context.Background()

	p := &model.Product{Number: "Д-1", Price: decimal.NewFromInt(1000), Status: model.ProductStatusUnsold}
	if err := productRepo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// 涨价：旧价入历史
	if err := r.UpdateProductPrice(ctx, p, decimal.NewFromInt(1200)); err != nil {
		t.Fatalf("UpdateProductPrice() error = %v", err)
	}
	if p.OldPrice == nil || !p.OldPrice.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("OldPrice = %v, 期望 1000", p.OldPrice)
	}

	// 降价：历史里已有更高的价，不被低价顶掉
	if err := r.UpdateProductPrice(ctx, p, decimal.NewFromInt(800)); err != nil {
		t.Fatalf("UpdateProductPrice() error = %v", err)
	}
	if !p.OldPrice.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("OldPrice = %v, 期望记录历史最高价 1200", p.OldPrice)
	}
	if !p.Price.Equal(decimal.NewFromInt(800)) {
		t.Errorf("Price = %v, 期望 800", p.Price)
	}

	// 再涨到低于历史最高：历史价保持
	if err := r.UpdateProductPrice(ctx, p, decimal.NewFromInt(900)); err != nil {
		t.Fatalf("UpdateProductPrice() error = %v", err)
	}
	if !p.OldPrice.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("OldPrice = %v, 低于历史最高的旧价不应顶掉 1200", p.OldPrice)
	}
}

func TestInferGenderFromSurname(t *testing.T) {
	cases := []struct {
		surname string
		want    string
	}{
		{"Иванова", model.GenderFemale},
		{"Иванов", model.GenderMale},
		{"Вербицкая", model.GenderFemale},
		{"Вербицкий", model.GenderMale},
		{"Smith", model.GenderUnisex},
		{"", model.GenderUnisex},
	}
	for _, c := range cases {
		if got := model.InferGenderFromSurname(c.surname); got != c.want {
			t.Errorf("InferGenderFromSurname(%q) = %q, 期望 %q", c.surname, got, c.want)
		}
	}
}
