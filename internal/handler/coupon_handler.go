package handler

import (
	"net/http"

	"shop/internal/config"
	"shop/internal/middleware"
	"shop/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /couponsのHTTP
type CouponHandler struct {
	uc *usecase.CouponUsecase
}

// DI
func NewCouponHandler(uc *usecase.CouponUsecase) *CouponHandler {
	return &CouponHandler{uc: uc}
}

type ValidateCouponRequest struct {
	Code        string `json:"code"`
	OrderAmount int64  `json:"order_amount"`
}

func (h *CouponHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/coupons")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("/validate", h.validate)
}

func (h *CouponHandler) validate(c echo.Context) error {
	var req ValidateCouponRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Validate(c.Request().Context(), usecase.ValidateCouponInput{
		Code:        req.Code,
		OrderAmount: req.OrderAmount,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}
