package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"shop/internal/middleware"
	"shop/internal/usecase"

	"github.com/labstack/echo/v4"
)

// ボディの上限（ゲートウェイ通知は数KBで収まる）
const maxNotificationBody = 1 << 20

// ゲートウェイからのWebhook。認証は署名検証なのでJWTは通さない。
type PaymentHandler struct {
	uc *usecase.PaymentUsecase
}

// DI
func NewPaymentHandler(uc *usecase.PaymentUsecase) *PaymentHandler {
	return &PaymentHandler{uc: uc}
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/payments/notification", h.notification)
}

func (h *PaymentHandler) notification(c echo.Context) error {
	//raw_payloadとして保存するため、Bindではなく生ボディを読む
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxNotificationBody))
	if err != nil {
		middleware.RecordOrderOperation("webhook", false)
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	var n usecase.GatewayNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		middleware.RecordOrderOperation("webhook", false)
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.HandleNotification(c.Request().Context(), n, raw)
	middleware.RecordOrderOperation("webhook", err == nil)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}
