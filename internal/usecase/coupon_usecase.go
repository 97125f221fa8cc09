package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
)

type CouponUsecase struct {
	couponRepo repo.CouponRepository
}

func NewCouponUsecase(couponRepo repo.CouponRepository) *CouponUsecase {
	return &CouponUsecase{couponRepo: couponRepo}
}

type ValidateCouponInput struct {
	Code        string
	OrderAmount int64
}

type CouponSummary struct {
	Code         string             `json:"code"`
	DiscountType model.DiscountType `json:"discount_type"`
	Value        int64              `json:"value"`
	MinOrder     int64              `json:"min_order"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty"`
}

type ValidateCouponOutput struct {
	Valid    bool           `json:"valid"`
	Reason   string         `json:"reason,omitempty"`
	Discount int64          `json:"discount"`
	Coupon   *CouponSummary `json:"coupon,omitempty"`
}

// 検証のみ。使用回数は増やさない（消費はチェックアウトの中）。
func (u *CouponUsecase) Validate(ctx context.Context, in ValidateCouponInput) (ValidateCouponOutput, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" {
		return ValidateCouponOutput{}, NewHTTPError(http.StatusBadRequest, "code is required")
	}
	if in.OrderAmount < 0 {
		return ValidateCouponOutput{}, NewHTTPError(http.StatusBadRequest, "invalid order_amount")
	}

	coupon, err := u.couponRepo.FindByCode(ctx, code)
	if err == repo.ErrNotFound {
		return ValidateCouponOutput{Valid: false, Reason: "coupon not found"}, nil
	}
	if err != nil {
		return ValidateCouponOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if reason, ok := couponUsable(coupon, in.OrderAmount, time.Now()); !ok {
		return ValidateCouponOutput{Valid: false, Reason: reason}, nil
	}

	return ValidateCouponOutput{
		Valid:    true,
		Discount: coupon.DiscountFor(in.OrderAmount),
		Coupon: &CouponSummary{
			Code:         coupon.Code,
			DiscountType: coupon.DiscountType,
			Value:        coupon.Value,
			MinOrder:     coupon.MinOrder,
			ExpiresAt:    coupon.ExpiresAt,
		},
	}, nil
}

// チェックアウトと検証APIで同じ判定を使う
func couponUsable(c model.Coupon, orderAmount int64, now time.Time) (string, bool) {
	if !c.IsActive {
		return "coupon is inactive", false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return "coupon expired", false
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return "coupon usage limit reached", false
	}
	if orderAmount < c.MinOrder {
		return "order amount below minimum", false
	}
	return "", true
}
