package event

import "time"

const RoutingKeyOrderPaid = "order.paid"

// 支払い完了時に発行するイベント。
type OrderPaidEvent struct {
	OrderID       int64     `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	UserID        int64     `json:"user_id"`
	Total         int64     `json:"total"`
	PaymentType   string    `json:"payment_type"`
	TransactionID string    `json:"transaction_id"`
	PaidAt        time.Time `json:"paid_at"`
}
