package repository

import (
	"context"

	"shop/internal/domain/model"
)

type CouponRepository interface {
	//コードは大文字に正規化してから渡す
	FindByCode(ctx context.Context, code string) (model.Coupon, error)
	// 使用回数を+1する。上限に達している場合は何もせずfalseを返す。
	IncrementUsageIfAvailable(ctx context.Context, couponID int64) (bool, error)
}
