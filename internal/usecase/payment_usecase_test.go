package usecase

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"shop/internal/domain/event"
	"shop/internal/domain/model"
	"shop/internal/infra/mq"
	repo "shop/internal/repository"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const testServerKey = "SB-Mid-server-testkey"

func signedNotification(orderID, statusCode, grossAmount, txStatus, fraudStatus string) GatewayNotification {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + testServerKey))
	return GatewayNotification{
		OrderID:           orderID,
		StatusCode:        statusCode,
		GrossAmount:       grossAmount,
		SignatureKey:      hex.EncodeToString(sum[:]),
		TransactionStatus: txStatus,
		FraudStatus:       fraudStatus,
		TransactionID:     "trx-123",
		PaymentType:       "gopay",
	}
}

func newPaymentUsecaseForTest(repos *stubTxRepos, strict bool, pub *MockPublisher) *PaymentUsecase {
	var p mq.Publisher
	if pub != nil {
		p = pub
	}
	return NewPaymentUsecase(&stubTxManager{repos: repos}, testServerKey, strict, p, echo.New().Logger)
}

func TestHandleNotification_TestNotificationBypass(t *testing.T) {
	repos := newStubTxRepos()
	uc := newPaymentUsecaseForTest(repos, true, nil)

	n := GatewayNotification{OrderID: "payment_notif_test_G123"}
	out, err := uc.HandleNotification(context.Background(), n, []byte(`{}`))

	assert.NoError(t, err)
	assert.True(t, out.Ignored)
	repos.orders.AssertNotCalled(t, "FindByOrderNumber", mock.Anything, mock.Anything)
}

func TestHandleNotification_TamperedSignatureRejectedInProduction(t *testing.T) {
	repos := newStubTxRepos()
	uc := newPaymentUsecaseForTest(repos, true, nil)

	n := signedNotification("ORD-1", "200", "10500.00", "settlement", "")
	n.GrossAmount = "999.00" // 署名後に改ざん

	_, err := uc.HandleNotification(context.Background(), n, []byte(`{}`))

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, he.Status)
	repos.orders.AssertNotCalled(t, "FindByOrderNumber", mock.Anything, mock.Anything)
}

func TestHandleNotification_TamperedSignatureToleratedInSandbox(t *testing.T) {
	repos := newStubTxRepos()
	uc := newPaymentUsecaseForTest(repos, false, nil)

	order := model.Order{ID: 42, OrderNumber: "ORD-1", UserID: 5, Total: 10500, Status: model.OrderStatusUnpaid}
	repos.orders.On("FindByOrderNumber", mock.Anything, "ORD-1").Return(order, nil)
	repos.payments.On("FindByOrderID", mock.Anything, int64(42)).Return(model.Payment{
		ID: 1, OrderID: 42, Status: model.PaymentStatusPending, Amount: 10500,
	}, nil)
	repos.payments.On("Update", mock.Anything, mock.Anything).Return(nil)
	repos.orders.On("UpdateStatus", mock.Anything, int64(42), model.OrderStatusPaid).Return(nil)

	n := signedNotification("ORD-1", "200", "10500.00", "settlement", "")
	n.GrossAmount = "999.00"

	out, err := uc.HandleNotification(context.Background(), n, []byte(`{}`))

	assert.NoError(t, err)
	assert.Equal(t, string(model.PaymentStatusSuccess), out.PaymentStatus)
}

func TestHandleNotification_SettlementMarksPaid(t *testing.T) {
	repos := newStubTxRepos()
	pub := new(MockPublisher)
	uc := newPaymentUsecaseForTest(repos, true, pub)

	order := model.Order{ID: 42, OrderNumber: "ORD-1", UserID: 5, Total: 10500, Status: model.OrderStatusUnpaid}
	repos.orders.On("FindByOrderNumber", mock.Anything, "ORD-1").Return(order, nil)
	repos.payments.On("FindByOrderID", mock.Anything, int64(42)).Return(model.Payment{
		ID: 1, OrderID: 42, Status: model.PaymentStatusPending, Amount: 10500,
	}, nil)
	repos.payments.On("Update", mock.Anything, mock.MatchedBy(func(p model.Payment) bool {
		return p.Status == model.PaymentStatusSuccess &&
			p.TransactionID == "trx-123" &&
			p.PaidAt != nil
	})).Return(nil)
	repos.orders.On("UpdateStatus", mock.Anything, int64(42), model.OrderStatusPaid).Return(nil)
	pub.On("Publish", mock.Anything, event.RoutingKeyOrderPaid, mock.MatchedBy(func(ev *event.OrderPaidEvent) bool {
		return ev.OrderID == 42 && ev.Total == 10500
	})).Return(nil)

	n := signedNotification("ORD-1", "200", "10500.00", "settlement", "")
	out, err := uc.HandleNotification(context.Background(), n, []byte(`{"transaction_status":"settlement"}`))

	assert.NoError(t, err)
	assert.Equal(t, string(model.PaymentStatusSuccess), out.PaymentStatus)
	assert.Equal(t, string(model.OrderStatusPaid), out.OrderStatus)
	repos.payments.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestHandleNotification_SettlementReplayIsIdempotent(t *testing.T) {
	repos := newStubTxRepos()
	uc := newPaymentUsecaseForTest(repos, true, nil)

	paidAt := time.Now().Add(-time.Hour)
	order := model.Order{ID: 42, OrderNumber: "ORD-1", Status: model.OrderStatusPaid}
	repos.orders.On("FindByOrderNumber", mock.Anything, "ORD-1").Return(order, nil)
	repos.payments.On("FindByOrderID", mock.Anything, int64(42)).Return(model.Payment{
		ID: 1, OrderID: 42, Status: model.PaymentStatusSuccess, PaidAt: &paidAt,
	}, nil)

	n := signedNotification("ORD-1", "200", "10500.00", "settlement", "")
	out, err := uc.HandleNotification(context.Background(), n, []byte(`{}`))

	assert.NoError(t, err)
	assert.Equal(t, string(model.PaymentStatusSuccess), out.PaymentStatus)
	assert.Equal(t, string(model.OrderStatusPaid), out.OrderStatus)
	repos.payments.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	repos.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleNotification_TerminalStateNeverRegressed(t *testing.T) {
	repos := newStubTxRepos()
	uc := newPaymentUsecaseForTest(repos, true, nil)

	order := model.Order{ID: 42, OrderNumber: "ORD-1", Status: model.OrderStatusPaid}
	repos.orders.On("FindByOrderNumber", mock.Anything, "ORD-1").Return(order, nil)
	repos.payments.On("FindByOrderID", mock.Anything, int64(42)).Return(model.Payment{
		ID: 1, OrderID: 42, Status: model.PaymentStatusSuccess,
	}, nil)

	// 支払い完了後に遅延到着したpending通知
	n := signedNotification("ORD-1", "201", "10500.00", "pending", "")
	out, err := uc.HandleNotification(context.Background(), n, []byte(`{}`))

	assert.NoError(t, err)
	assert.Equal(t, string(model.PaymentStatusSuccess), out.PaymentStatus)
	repos.payments.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestHandleNotification_CaptureChallengeLeavesOrderUnpaid(t *testing.T) {
	repos := newStubTxRepos()
	uc := newPaymentUsecaseForTest(repos, true, nil)

	order := model.Order{ID: 42, OrderNumber: "ORD-1", Status: model.OrderStatusUnpaid}
	repos.orders.On("FindByOrderNumber", mock.Anything, "ORD-1").Return(order, nil)
	repos.payments.On("FindByOrderID", mock.Anything, int64(42)).Return(model.Payment{
		ID: 1, OrderID: 42, Status: model.PaymentStatusPending,
	}, nil)
	repos.payments.On("Update", mock.Anything, mock.MatchedBy(func(p model.Payment) bool {
		return p.Status == model.PaymentStatusChallenge && p.PaidAt == nil
	})).Return(nil)

	n := signedNotification("ORD-1", "200", "10500.00", "capture", "challenge")
	out, err := uc.HandleNotification(context.Background(), n, []byte(`{}`))

	assert.NoError(t, err)
	assert.Equal(t, string(model.PaymentStatusChallenge), out.PaymentStatus)
	assert.Equal(t, string(model.OrderStatusUnpaid), out.OrderStatus)
	repos.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleNotification_ExpireRestoresStock(t *testing.T) {
	repos := newStubTxRepos()
	uc := newPaymentUsecaseForTest(repos, true, nil)

	variantID := int64(30)
	order := model.Order{ID: 42, OrderNumber: "ORD-1", Status: model.OrderStatusUnpaid}
	repos.orders.On("FindByOrderNumber", mock.Anything, "ORD-1").Return(order, nil)
	repos.payments.On("FindByOrderID", mock.Anything, int64(42)).Return(model.Payment{
		ID: 1, OrderID: 42, Status: model.PaymentStatusPending,
	}, nil)
	repos.payments.On("Update", mock.Anything, mock.Anything).Return(nil)
	repos.orders.On("UpdateStatus", mock.Anything, int64(42), model.OrderStatusExpired).Return(nil)
	repos.orderItems.On("ListByOrderID", mock.Anything, int64(42)).Return([]model.OrderItem{
		{OrderID: 42, ProductID: 10, Quantity: 2},
		{OrderID: 42, ProductID: 10, VariantID: &variantID, Quantity: 1},
	}, nil)
	repos.inventory.On("IncreaseStock", mock.Anything, int64(10), int64(2)).Return(nil)
	repos.inventory.On("IncreaseVariantStock", mock.Anything, variantID, int64(1)).Return(nil)

	n := signedNotification("ORD-1", "407", "10500.00", "expire", "")
	out, err := uc.HandleNotification(context.Background(), n, []byte(`{}`))

	assert.NoError(t, err)
	assert.Equal(t, string(model.PaymentStatusExpired), out.PaymentStatus)
	assert.Equal(t, string(model.OrderStatusExpired), out.OrderStatus)
	repos.inventory.AssertExpectations(t)
}

func TestHandleNotification_PaymentRowCreatedLazily(t *testing.T) {
	repos := newStubTxRepos()
	uc := newPaymentUsecaseForTest(repos, true, nil)

	order := model.Order{ID: 42, OrderNumber: "ORD-1", Total: 10500, Status: model.OrderStatusUnpaid}
	repos.orders.On("FindByOrderNumber", mock.Anything, "ORD-1").Return(order, nil)
	// 同期パスより先にWebhookが届き、支払い行がまだ無い
	repos.payments.On("FindByOrderID", mock.Anything, int64(42)).Return(model.Payment{}, repo.ErrNotFound)
	repos.payments.On("Create", mock.Anything, mock.MatchedBy(func(p model.Payment) bool {
		return p.OrderID == 42 && p.Amount == 10500 && p.Status == model.PaymentStatusPending
	})).Return(1, nil)
	repos.payments.On("Update", mock.Anything, mock.Anything).Return(nil)
	repos.orders.On("UpdateStatus", mock.Anything, int64(42), model.OrderStatusPaid).Return(nil)

	n := signedNotification("ORD-1", "200", "10500.00", "capture", "accept")
	out, err := uc.HandleNotification(context.Background(), n, []byte(`{}`))

	assert.NoError(t, err)
	assert.Equal(t, string(model.PaymentStatusSuccess), out.PaymentStatus)
	repos.payments.AssertExpectations(t)
}

func TestHandleNotification_UnknownOrder(t *testing.T) {
	repos := newStubTxRepos()
	uc := newPaymentUsecaseForTest(repos, true, nil)

	repos.orders.On("FindByOrderNumber", mock.Anything, "ORD-missing").Return(model.Order{}, repo.ErrNotFound)

	n := signedNotification("ORD-missing", "200", "10500.00", "settlement", "")
	_, err := uc.HandleNotification(context.Background(), n, []byte(`{}`))

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
}

func TestMapTransactionStatus(t *testing.T) {
	tests := []struct {
		txStatus    string
		fraudStatus string
		wantPay     model.PaymentStatus
		wantOrder   model.OrderStatus
		wantKnown   bool
	}{
		{"capture", "accept", model.PaymentStatusSuccess, model.OrderStatusPaid, true},
		{"capture", "challenge", model.PaymentStatusChallenge, "", true},
		{"settlement", "", model.PaymentStatusSuccess, model.OrderStatusPaid, true},
		{"pending", "", model.PaymentStatusPending, "", true},
		{"deny", "", model.PaymentStatusFailed, model.OrderStatusCanceled, true},
		{"cancel", "", model.PaymentStatusFailed, model.OrderStatusCanceled, true},
		{"expire", "", model.PaymentStatusExpired, model.OrderStatusExpired, true},
		{"refund", "", "", "", false},
		{"capture", "deny", "", "", false},
	}

	for _, tt := range tests {
		pay, order, known := mapTransactionStatus(tt.txStatus, tt.fraudStatus)
		assert.Equal(t, tt.wantKnown, known, tt.txStatus)
		if known {
			assert.Equal(t, tt.wantPay, pay, tt.txStatus)
			assert.Equal(t, tt.wantOrder, order, tt.txStatus)
		}
	}
}
