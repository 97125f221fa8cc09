package usecase

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"shop/internal/domain/event"
	"shop/internal/domain/model"
	"shop/internal/infra/mq"
	repo "shop/internal/repository"

	"github.com/labstack/echo/v4"
)

// ゲートウェイ側のテスト通知。状態遷移に触れず200を返す。
const testNotificationPrefix = "payment_notif_test"

type PaymentUsecase struct {
	tx        repo.TransactionManager
	serverKey string
	strict    bool // 本番は署名不一致を拒否。サンドボックスは警告のみ。
	publisher mq.Publisher
	logger    echo.Logger
}

func NewPaymentUsecase(tx repo.TransactionManager, serverKey string, strict bool, publisher mq.Publisher, logger echo.Logger) *PaymentUsecase {
	return &PaymentUsecase{
		tx:        tx,
		serverKey: serverKey,
		strict:    strict,
		publisher: publisher,
		logger:    logger,
	}
}

// ゲートウェイからの通知ペイロード
type GatewayNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
}

type WebhookResult struct {
	OrderNumber   string `json:"order_number,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
	OrderStatus   string `json:"order_status,omitempty"`
	Ignored       bool   `json:"ignored,omitempty"`
}

// Webhook本体。順番は 署名検証 → ステータス写像 → 冪等な状態遷移。
// rawは受信ボディそのままで、payments.raw_payloadに保存する。
func (u *PaymentUsecase) HandleNotification(ctx context.Context, n GatewayNotification, raw []byte) (WebhookResult, error) {
	//テスト通知は注文が存在しないので早期に返す
	if strings.HasPrefix(n.OrderID, testNotificationPrefix) {
		return WebhookResult{OrderNumber: n.OrderID, Ignored: true}, nil
	}

	if !u.verifySignature(n) {
		if u.strict {
			return WebhookResult{}, NewHTTPError(http.StatusUnauthorized, "invalid signature")
		}
		u.logger.Warnf("signature mismatch for %s (sandbox, continuing)", n.OrderID)
	}

	payStatus, orderStatus, known := mapTransactionStatus(n.TransactionStatus, n.FraudStatus)
	if !known {
		u.logger.Warnf("unknown transaction_status %q for %s", n.TransactionStatus, n.OrderID)
		return WebhookResult{OrderNumber: n.OrderID, Ignored: true}, nil
	}

	var result WebhookResult
	var paidEvent *event.OrderPaidEvent

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByOrderNumber(ctx, n.OrderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//Webhookが同期パスより先に届いた場合はここで支払い行を作る
		payment, err := r.Payments().FindByOrderID(ctx, order.ID)
		if err == repo.ErrNotFound {
			payment = model.Payment{
				OrderID: order.ID,
				Status:  model.PaymentStatusPending,
				Amount:  order.Total,
			}
			id, err := r.Payments().Create(ctx, payment)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			payment.ID = id
		} else if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//終端からは動かさない。同じ終端の再送は冪等なno-op。
		if payment.Status.Terminal() {
			if payment.Status != payStatus {
				u.logger.Warnf("ignoring %s notification for %s: payment already %s",
					n.TransactionStatus, n.OrderID, payment.Status)
			}
			result = WebhookResult{
				OrderNumber:   order.OrderNumber,
				PaymentStatus: string(payment.Status),
				OrderStatus:   string(order.Status),
			}
			return nil
		}

		now := time.Now()
		payment.Status = payStatus
		payment.TransactionID = n.TransactionID
		payment.PaymentType = n.PaymentType
		payment.RawPayload = raw
		if payStatus == model.PaymentStatusSuccess && payment.PaidAt == nil {
			payment.PaidAt = &now
		}
		if err := r.Payments().Update(ctx, payment); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//注文側の遷移はUNPAIDからだけ
		if orderStatus != "" && orderStatus != order.Status && order.Status == model.OrderStatusUnpaid {
			if err := r.Orders().UpdateStatus(ctx, order.ID, orderStatus); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}

			//未入金のままキャンセル/失効した注文は在庫を戻す
			if orderStatus == model.OrderStatusCanceled || orderStatus == model.OrderStatusExpired {
				if err := restoreStock(ctx, r, order.ID); err != nil {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
			}

			if orderStatus == model.OrderStatusPaid {
				paidEvent = &event.OrderPaidEvent{
					OrderID:       order.ID,
					OrderNumber:   order.OrderNumber,
					UserID:        order.UserID,
					Total:         order.Total,
					PaymentType:   n.PaymentType,
					TransactionID: n.TransactionID,
					PaidAt:        now,
				}
			}
			order.Status = orderStatus
		}

		result = WebhookResult{
			OrderNumber:   order.OrderNumber,
			PaymentStatus: string(payment.Status),
			OrderStatus:   string(order.Status),
		}
		return nil
	})

	if err != nil {
		return WebhookResult{}, err
	}

	//イベント発行はcommit後。失敗してもWebhook自体は成功させる。
	if paidEvent != nil && u.publisher != nil {
		if err := u.publisher.Publish(ctx, event.RoutingKeyOrderPaid, paidEvent); err != nil {
			u.logger.Warnf("publish order.paid for %s: %v", paidEvent.OrderNumber, err)
		}
	}

	return result, nil
}

// signature_key = sha512(order_id + status_code + gross_amount + server_key)
func (u *PaymentUsecase) verifySignature(n GatewayNotification) bool {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + u.serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(n.SignatureKey))) == 1
}

// ゲートウェイの語彙 → 内部ステータス。
// 未知のtransaction_statusはknown=falseで返し、呼び出し側が無視する。
func mapTransactionStatus(txStatus, fraudStatus string) (model.PaymentStatus, model.OrderStatus, bool) {
	switch txStatus {
	case "capture":
		switch fraudStatus {
		case "accept":
			return model.PaymentStatusSuccess, model.OrderStatusPaid, true
		case "challenge":
			return model.PaymentStatusChallenge, "", true
		}
		return "", "", false
	case "settlement":
		return model.PaymentStatusSuccess, model.OrderStatusPaid, true
	case "pending":
		return model.PaymentStatusPending, "", true
	case "deny", "cancel":
		return model.PaymentStatusFailed, model.OrderStatusCanceled, true
	case "expire":
		return model.PaymentStatusExpired, model.OrderStatusExpired, true
	}
	return "", "", false
}

// 注文明細の数量を在庫に戻す
func restoreStock(ctx context.Context, r repo.TxRepos, orderID int64) error {
	items, err := r.OrderItems().ListByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.VariantID != nil {
			if err := r.Inventory().IncreaseVariantStock(ctx, *it.VariantID, it.Quantity); err != nil {
				return err
			}
			continue
		}
		if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}
