package model

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ==================== 订单状态常量 ====================

// OrderStatus 订单流转状态
const (
	OrderStatusNew       = "new"       // 新建
	OrderStatusAssembled = "assembled" // 已配货
	OrderStatusShipped   = "shipped"   // 已发出
	OrderStatusCompleted = "completed" // 已完成
	OrderStatusCanceled  = "canceled"  // 已取消
	OrderStatusGift      = "gift"      // 赠送（总额强制为 0）
	OrderStatusReturn    = "return"    // 退货（总额强制为 0）
)

// PaymentStatus 付款状态
const (
	PaymentStatusPaid     = "paid"           // 已付款
	PaymentStatusPartial  = "partially paid" // 部分付款
	PaymentStatusUnpaid   = "unpaid"         // 未付款
	PaymentStatusDeferred = "deferred"       // 延期付款
)

// DeliveryMethod 配送方式
const (
	DeliveryMethodPost     = "post"     // 邮寄
	DeliveryMethodCourier  = "courier"  // 同城快送
	DeliveryMethodPickup   = "pickup"   // 自提
	DeliveryMethodDeferred = "deferred" // 延期发货
)

// DeliveryStatus 配送状态
const (
	DeliveryStatusPending   = "pending"   // 待发出
	DeliveryStatusShipped   = "shipped"   // 在途
	DeliveryStatusDelivered = "delivered" // 已送达
	DeliveryStatusReturned  = "returned"  // 被退回
)

// ==================== 枚举查找表 ====================

// 表格里的原始文案（含俄文别名）映射到规范值，全部小写后查表
// 查不到的值不算硬错误：记 warning，枚举字段留空，原文保留在兜底文本列

var orderStatusLookup = map[string]string{
	"new": OrderStatusNew, "новый": OrderStatusNew,
	"assembled": OrderStatusAssembled, "собран": OrderStatusAssembled,
	"shipped": OrderStatusShipped, "отправлен": OrderStatusShipped,
	"completed": OrderStatusCompleted, "завершен": OrderStatusCompleted, "завершён": OrderStatusCompleted,
	"canceled": OrderStatusCanceled, "отменен": OrderStatusCanceled, "отменён": OrderStatusCanceled,
	"gift": OrderStatusGift, "подарок": OrderStatusGift,
	"return": OrderStatusReturn, "возврат": OrderStatusReturn,
}

var paymentStatusLookup = map[string]string{
	"paid": PaymentStatusPaid, "оплачен": PaymentStatusPaid, "оплачено": PaymentStatusPaid,
	"partially paid": PaymentStatusPartial, "частично": PaymentStatusPartial, "частично оплачен": PaymentStatusPartial,
	"unpaid": PaymentStatusUnpaid, "не оплачен": PaymentStatusUnpaid,
	"deferred": PaymentStatusDeferred, "отложен": PaymentStatusDeferred, "отложено": PaymentStatusDeferred,
}

var deliveryMethodLookup = map[string]string{
	"post": DeliveryMethodPost, "почта": DeliveryMethodPost,
	"courier": DeliveryMethodCourier, "курьер": DeliveryMethodCourier,
	"pickup": DeliveryMethodPickup, "самовывоз": DeliveryMethodPickup,
	"deferred": DeliveryMethodDeferred, "отложка": DeliveryMethodDeferred,
}

var deliveryStatusLookup = map[string]string{
	"pending": DeliveryStatusPending, "ожидает": DeliveryStatusPending,
	"shipped": DeliveryStatusShipped, "в пути": DeliveryStatusShipped,
	"delivered": DeliveryStatusDelivered, "доставлен": DeliveryStatusDelivered,
	"returned": DeliveryStatusReturned, "возвращен": DeliveryStatusReturned, "возвращён": DeliveryStatusReturned,
}

// LookupOrderStatus 按原始文案解析订单状态，第二个返回值表示是否命中
func LookupOrderStatus(raw string) (string, bool) {
	v, ok := orderStatusLookup[normalizeLookupKey(raw)]
	return v, ok
}

func LookupPaymentStatus(raw string) (string, bool) {
	v, ok := paymentStatusLookup[normalizeLookupKey(raw)]
	return v, ok
}

func LookupDeliveryMethod(raw string) (string, bool) {
	v, ok := deliveryMethodLookup[normalizeLookupKey(raw)]
	return v, ok
}

func LookupDeliveryStatus(raw string) (string, bool) {
	v, ok := deliveryStatusLookup[normalizeLookupKey(raw)]
	return v, ok
}

func normalizeLookupKey(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

// ==================== 折扣类型常量 ====================

const (
	DiscountTypePercent = "percent" // 百分比折扣
	DiscountTypeFixed   = "fixed"   // 固定金额折扣
)

// ==================== Order 订单主表 ====================

// Order 订单
// 行项目归订单独占（级联删除）；Client 被多个订单共享
type Order struct {
	BaseModel
	ClientID int64   `gorm:"index;not null"`
	Client   *Client `gorm:"foreignKey:ClientID"`

	OrderDate *time.Time `gorm:"index"`

	// 状态：枚举列查不到时为空，原始文案落在 *Text 列
	Status            string `gorm:"size:32;index"`
	PaymentStatus     string `gorm:"size:32"`
	PaymentStatusText string `gorm:"size:100"`
	DeliveryMethod    string `gorm:"size:32"`
	DeliveryStatus    string `gorm:"size:32"`

	TrackingNumber string     `gorm:"size:100;index"`
	DeferredUntil  *time.Time
	Priority       int    `gorm:"default:0"`
	Notes          string `gorm:"type:text"` // 可能内嵌 OrderID=<n> 回查标记

	TotalAmount decimal.Decimal `gorm:"type:decimal(20,2);default:0"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (*Order) TableName() string {
	return "orders"
}

// ProductNumbers 订单行项目的货号集合（要求 Items.Product 已预加载）
func (o *Order) ProductNumbers() []string {
	out := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		if it.Product != nil {
			out = append(out, it.Product.Number)
		}
	}
	return out
}

// IsZeroTotal 该状态下总额是否强制为 0
func (o *Order) IsZeroTotal() bool {
	return o.Status == OrderStatusGift || o.Status == OrderStatusReturn
}

// ==================== Notes 内嵌订单号 ====================

var orderIDTokenRe = regexp.MustCompile(`OrderID=(\d+)`)

// ExtractOrderIDToken 从备注中取内嵌订单号，没有则返回 0
func ExtractOrderIDToken(notes string) int64 {
	m := orderIDTokenRe.FindStringSubmatch(notes)
	if m == nil {
		return 0
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// AppendOrderIDToken 把 OrderID=<id> 标记补进备注（已有标记时原样返回）
func AppendOrderIDToken(notes string, id int64) string {
	if orderIDTokenRe.MatchString(notes) {
		return notes
	}
	token := "OrderID=" + strconv.FormatInt(id, 10)
	if strings.TrimSpace(notes) == "" {
		return token
	}
	return notes + " " + token
}

// ==================== OrderItem 订单行项目 ====================

// OrderItem 订单行项目，引用一个商品
// 一行表格里折扣/附加操作只落在第一个商品的行项目上
type OrderItem struct {
	BaseModel
	OrderID   int64    `gorm:"index;not null"`
	ProductID int64    `gorm:"index;not null"`
	Product   *Product `gorm:"foreignKey:ProductID"`

	Price         decimal.Decimal `gorm:"type:decimal(20,2);default:0"`
	DiscountType  string          `gorm:"size:20"`
	DiscountValue decimal.Decimal `gorm:"type:decimal(20,2);default:0"`

	// 附加操作（命名加减项），一行最多一个
	OperationName  string          `gorm:"size:100"`
	OperationValue decimal.Decimal `gorm:"type:decimal(20,2);default:0"`

	Quantity int `gorm:"default:1"`
}

func (*OrderItem) TableName() string {
	return "order_items"
}

// LineAmount 行金额：price × qty 按折扣类型调整
func (i *OrderItem) LineAmount() decimal.Decimal {
	amount := i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
	switch i.DiscountType {
	case DiscountTypePercent:
		amount = amount.Sub(amount.Mul(i.DiscountValue).Div(decimal.NewFromInt(100)))
	case DiscountTypeFixed:
		amount = amount.Sub(i.DiscountValue)
	}
	return amount
}
