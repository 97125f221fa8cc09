package usecase

import (
	"context"
	"net/http"
	"testing"

	"shop/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestAdminUpdateOrderStatus_ForwardTransition(t *testing.T) {
	repos := newStubTxRepos()
	auditRepo := new(MockAuditLogRepository)
	uc := NewAdminOrderUsecase(&stubTxManager{repos: repos}, auditRepo)

	repos.orders.On("FindByID", mock.Anything, int64(42)).Return(model.Order{
		ID: 42, Status: model.OrderStatusPaid,
	}, nil)
	repos.orders.On("UpdateStatus", mock.Anything, int64(42), model.OrderStatusProcessing).Return(nil)
	auditRepo.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdateOrderStatus &&
			l.ResourceID == 42 &&
			l.ActorUserID == 9
	})).Return(nil)

	err := uc.UpdateStatus(context.Background(), 9, 42, AdminUpdateOrderStatusInput{Status: "PROCESSING"})

	assert.NoError(t, err)
	auditRepo.AssertExpectations(t)
}

func TestAdminUpdateOrderStatus_BackwardTransitionRejected(t *testing.T) {
	repos := newStubTxRepos()
	uc := NewAdminOrderUsecase(&stubTxManager{repos: repos}, new(MockAuditLogRepository))

	repos.orders.On("FindByID", mock.Anything, int64(42)).Return(model.Order{
		ID: 42, Status: model.OrderStatusShipped,
	}, nil)

	err := uc.UpdateStatus(context.Background(), 9, 42, AdminUpdateOrderStatusInput{Status: "PAID"})

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	repos.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminUpdateOrderStatus_CancelRestoresStock(t *testing.T) {
	repos := newStubTxRepos()
	auditRepo := new(MockAuditLogRepository)
	uc := NewAdminOrderUsecase(&stubTxManager{repos: repos}, auditRepo)

	variantID := int64(30)
	repos.orders.On("FindByID", mock.Anything, int64(42)).Return(model.Order{
		ID: 42, Status: model.OrderStatusPaid,
	}, nil)
	repos.orderItems.On("ListByOrderID", mock.Anything, int64(42)).Return([]model.OrderItem{
		{OrderID: 42, ProductID: 10, Quantity: 2},
		{OrderID: 42, ProductID: 11, VariantID: &variantID, Quantity: 1},
	}, nil)
	repos.inventory.On("IncreaseStock", mock.Anything, int64(10), int64(2)).Return(nil)
	repos.inventory.On("IncreaseVariantStock", mock.Anything, variantID, int64(1)).Return(nil)
	repos.orders.On("UpdateStatus", mock.Anything, int64(42), model.OrderStatusCanceled).Return(nil)
	auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	err := uc.UpdateStatus(context.Background(), 9, 42, AdminUpdateOrderStatusInput{Status: "CANCELED"})

	assert.NoError(t, err)
	repos.inventory.AssertExpectations(t)
}

func TestAdminUpdateOrderStatus_SameStatusIsNoop(t *testing.T) {
	repos := newStubTxRepos()
	uc := NewAdminOrderUsecase(&stubTxManager{repos: repos}, new(MockAuditLogRepository))

	repos.orders.On("FindByID", mock.Anything, int64(42)).Return(model.Order{
		ID: 42, Status: model.OrderStatusPaid,
	}, nil)

	err := uc.UpdateStatus(context.Background(), 9, 42, AdminUpdateOrderStatusInput{Status: "PAID"})

	assert.NoError(t, err)
	repos.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminUpdateOrderStatus_CompletedIsTerminal(t *testing.T) {
	repos := newStubTxRepos()
	uc := NewAdminOrderUsecase(&stubTxManager{repos: repos}, new(MockAuditLogRepository))

	repos.orders.On("FindByID", mock.Anything, int64(42)).Return(model.Order{
		ID: 42, Status: model.OrderStatusCompleted,
	}, nil)

	err := uc.UpdateStatus(context.Background(), 9, 42, AdminUpdateOrderStatusInput{Status: "CANCELED"})

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
}

func TestAdminUpdateOrderStatus_InvalidStatusValue(t *testing.T) {
	uc := NewAdminOrderUsecase(&stubTxManager{repos: newStubTxRepos()}, new(MockAuditLogRepository))

	err := uc.UpdateStatus(context.Background(), 9, 42, AdminUpdateOrderStatusInput{Status: "REFUNDED"})

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
}
