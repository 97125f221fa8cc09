package model

import "time"

// 商品バリエーション（サイズ・色など）。
// PriceAdjustmentは基本価格への加算額。在庫はバリエーション側で持つ。
type ProductVariant struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID       int64     `gorm:"not null;index" json:"product_id"`
	Name            string    `gorm:"type:varchar(100);not null" json:"name"`
	PriceAdjustment int64     `gorm:"not null;default:0" json:"price_adjustment"`
	Stock           int64     `gorm:"not null" json:"stock"`
	CreatedAt       time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
