package repository

import (
	"context"

	"shop/internal/domain/model"
)

// 支払いは注文と1:1。Webhookが同期パスより先に届くこともあるので
// FindByOrderIDでの存在確認→無ければ作成、をハンドラ側で行う。
type PaymentRepository interface {
	Create(ctx context.Context, p model.Payment) (int64, error)
	FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error)
	// ステータス・transaction_id・生ペイロード等をまとめて上書き
	Update(ctx context.Context, p model.Payment) error
}
