package model

import "time"

type OrderStatus string

const (
	OrderStatusUnpaid     OrderStatus = "UNPAID"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusExpired    OrderStatus = "EXPIRED"
	OrderStatusCanceled   OrderStatus = "CANCELED"
)

type PaymentMethod string

const (
	PaymentMethodGopay      PaymentMethod = "gopay"
	PaymentMethodShopeepay  PaymentMethod = "shopeepay"
	PaymentMethodBCAVA      PaymentMethod = "bca_va"
	PaymentMethodBNIVA      PaymentMethod = "bni_va"
	PaymentMethodBRIVA      PaymentMethod = "bri_va"
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodCOD        PaymentMethod = "cod"
)

// 支払い方法が列挙に含まれるか
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentMethodGopay, PaymentMethodShopeepay,
		PaymentMethodBCAVA, PaymentMethodBNIVA, PaymentMethodBRIVA,
		PaymentMethodCreditCard, PaymentMethodCOD:
		return true
	}
	return false
}

// 注文。totalは作成時点で subtotal + shipping_cost - discount に固定。
// 注文は削除しない（ステータスだけ変える）。
type Order struct {
	ID          int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber string      `gorm:"type:varchar(50);not null;uniqueIndex" json:"order_number"`
	UserID      int64       `gorm:"not null;index" json:"user_id"`
	Status      OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	Subtotal     int64 `gorm:"not null" json:"subtotal"`
	ShippingCost int64 `gorm:"not null" json:"shipping_cost"`
	Discount     int64 `gorm:"not null;default:0" json:"discount"`
	Total        int64 `gorm:"not null" json:"total"`

	//配送先（注文時点のスナップショット）
	ShipName       string `gorm:"type:varchar(100);not null" json:"ship_name"`
	ShipPhone      string `gorm:"type:varchar(20);not null" json:"ship_phone"`
	ShipAddress    string `gorm:"type:varchar(255);not null" json:"ship_address"`
	ShipCity       string `gorm:"type:varchar(100);not null" json:"ship_city"`
	ShipPostalCode string `gorm:"type:varchar(10);not null" json:"ship_postal_code"`

	PaymentMethod PaymentMethod `gorm:"type:varchar(20);not null" json:"payment_method"`
	SnapToken     string        `gorm:"type:varchar(100)" json:"snap_token,omitempty"`
	Note          string        `gorm:"type:text" json:"note,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
