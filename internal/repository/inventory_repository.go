package repository

import "context"

// 在庫の読み書き。バリエーション指定の明細はバリエーション在庫が正。
type InventoryRepository interface {
	// 在庫の現在値を設定
	SetStock(ctx context.Context, productID int64, newStock int64) error

	// 在庫が足りるときだけ減算（条件付きUPDATE。同時注文でも負にならない）
	DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error)
	DecreaseVariantStockIfEnough(ctx context.Context, variantID int64, qty int64) (bool, error)

	// 在庫戻し（キャンセルなど）
	IncreaseStock(ctx context.Context, productID int64, qty int64) error
	IncreaseVariantStock(ctx context.Context, variantID int64, qty int64) error
}
