package model

import "time"

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFixed      DiscountType = "FIXED"
)

// クーポン。コードは大文字で保存する（照合は大文字に正規化してから）。
type Coupon struct {
	ID           int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	Code         string       `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	DiscountType DiscountType `gorm:"type:varchar(20);not null" json:"discount_type"`
	Value        int64        `gorm:"not null" json:"value"`
	MinOrder     int64        `gorm:"not null;default:0" json:"min_order"`
	MaxUses      int64        `gorm:"not null;default:0" json:"max_uses"` // 0は無制限
	UsedCount    int64        `gorm:"not null;default:0" json:"used_count"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
	IsActive     bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time    `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 割引額を計算する。注文金額を超えない。
func (c Coupon) DiscountFor(orderAmount int64) int64 {
	var d int64
	switch c.DiscountType {
	case DiscountTypePercentage:
		d = orderAmount * c.Value / 100
	case DiscountTypeFixed:
		d = c.Value
	}
	if d > orderAmount {
		return orderAmount
	}
	return d
}
