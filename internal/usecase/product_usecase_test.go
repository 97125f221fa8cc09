package usecase

import (
	"context"
	"net/http"
	"testing"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newProductUsecaseForTest() (*ProductUsecase, *MockProductRepository, *MockInventoryRepository, *MockAuditLogRepository) {
	productRepo := new(MockProductRepository)
	inventoryRepo := new(MockInventoryRepository)
	auditRepo := new(MockAuditLogRepository)
	return NewProductUsecase(productRepo, inventoryRepo, auditRepo), productRepo, inventoryRepo, auditRepo
}

func TestGetProductDetail_InactiveIsHidden(t *testing.T) {
	uc, productRepo, _, _ := newProductUsecaseForTest()

	productRepo.On("FindByID", mock.Anything, int64(10)).Return(model.Product{
		ID: 10, IsActive: false,
	}, nil)

	_, err := uc.GetProductDetail(context.Background(), 10)

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
}

func TestListPublicProducts_InvalidRange(t *testing.T) {
	uc, _, _, _ := newProductUsecaseForTest()

	minP := int64(5000)
	maxP := int64(1000)
	_, err := uc.ListPublicProducts(context.Background(), ListProductsInput{
		Page: 1, Limit: 20, MinPrice: &minP, MaxPrice: &maxP,
	})

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
}

func TestAdminUpdateInventory_WritesAuditLog(t *testing.T) {
	uc, productRepo, inventoryRepo, auditRepo := newProductUsecaseForTest()

	productRepo.On("FindByID", mock.Anything, int64(10)).Return(model.Product{
		ID: 10, Stock: 3, IsActive: true,
	}, nil)
	inventoryRepo.On("SetStock", mock.Anything, int64(10), int64(8)).Return(nil)
	auditRepo.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdateStock &&
			l.BeforeJSON == `{"stock":3}` &&
			l.AfterJSON == `{"stock":8}`
	})).Return(nil)

	err := uc.AdminUpdateInventory(context.Background(), 9, 10, 8)

	assert.NoError(t, err)
	auditRepo.AssertExpectations(t)
}

func TestAdminUpdateInventory_NegativeStockRejected(t *testing.T) {
	uc, _, inventoryRepo, _ := newProductUsecaseForTest()

	err := uc.AdminUpdateInventory(context.Background(), 9, 10, -1)

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	inventoryRepo.AssertNotCalled(t, "SetStock", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminCreateProduct_Validation(t *testing.T) {
	uc, productRepo, _, _ := newProductUsecaseForTest()

	_, err := uc.AdminCreateProduct(context.Background(), 9, AdminCreateProductInput{Name: "", Price: 100})
	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)

	_, err = uc.AdminCreateProduct(context.Background(), 9, AdminCreateProductInput{Name: "X", Price: -1})
	he, ok = AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)

	productRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAdminDeleteProduct_NotFound(t *testing.T) {
	uc, productRepo, _, _ := newProductUsecaseForTest()

	productRepo.On("SoftDelete", mock.Anything, int64(10)).Return(repo.ErrNotFound)

	err := uc.AdminDeleteProduct(context.Background(), 9, 10)

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
}
