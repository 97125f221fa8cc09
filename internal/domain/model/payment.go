package model

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSuccess   PaymentStatus = "SUCCESS"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusExpired   PaymentStatus = "EXPIRED"
	PaymentStatusChallenge PaymentStatus = "CHALLENGE"
)

// 終端ステータス（以後の後退遷移を受け付けない）か
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusExpired:
		return true
	}
	return false
}

// 支払い。注文と1:1。削除はしない。
// RawPayloadにはゲートウェイ通知をそのまま保存する（監査・調査用）。
type Payment struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID       int64          `gorm:"not null;uniqueIndex" json:"order_id"`
	TransactionID string         `gorm:"type:varchar(100);index" json:"transaction_id,omitempty"`
	PaymentType   string         `gorm:"type:varchar(50)" json:"payment_type,omitempty"`
	Status        PaymentStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	Amount        int64          `gorm:"not null" json:"amount"`
	SnapToken     string         `gorm:"type:varchar(100)" json:"snap_token,omitempty"`
	RawPayload    datatypes.JSON `gorm:"type:jsonb" json:"-"`
	PaidAt        *time.Time     `json:"paid_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
