package usecase

import (
	"context"

	"shop/internal/domain/model"
	"shop/internal/infra/gateway"
	repo "shop/internal/repository"

	"github.com/stretchr/testify/mock"
)

// =====================
// Mock: OrderRepository
// =====================

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *MockOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (model.Order, error) {
	args := m.Called(ctx, orderNumber)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *MockOrderRepository) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	os, _ := args.Get(0).([]model.Order)
	return os, int64(args.Int(1)), args.Error(2)
}

func (m *MockOrderRepository) Create(ctx context.Context, order model.Order) (int64, error) {
	args := m.Called(ctx, order)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateSnapToken(ctx context.Context, orderID int64, token string) error {
	args := m.Called(ctx, orderID, token)
	return args.Error(0)
}

func (m *MockOrderRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	os, _ := args.Get(0).([]model.Order)
	return os, int64(args.Int(1)), args.Error(2)
}

// =====================
// Mock: OrderItemRepository
// =====================

type MockOrderItemRepository struct {
	mock.Mock
}

func (m *MockOrderItemRepository) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *MockOrderItemRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

// =====================
// Mock: CartRepository
// =====================

type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) GetOrCreateActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	args := m.Called(ctx, userID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *MockCartRepository) FindActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	args := m.Called(ctx, userID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *MockCartRepository) UpdateStatus(ctx context.Context, cartID int64, status model.CartStatus) error {
	args := m.Called(ctx, cartID, status)
	return args.Error(0)
}

func (m *MockCartRepository) Clear(ctx context.Context, cartID int64) error {
	args := m.Called(ctx, cartID)
	return args.Error(0)
}

// =====================
// Mock: CartItemRepository
// =====================

type MockCartItemRepository struct {
	mock.Mock
}

func (m *MockCartItemRepository) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	args := m.Called(ctx, cartID)
	items, _ := args.Get(0).([]model.CartItem)
	return items, args.Error(1)
}

func (m *MockCartItemRepository) UpsertLine(ctx context.Context, cartID int64, productID int64, variantID *int64, addQty int64, unitPriceSnapshot int64) error {
	args := m.Called(ctx, cartID, productID, variantID, addQty, unitPriceSnapshot)
	return args.Error(0)
}

func (m *MockCartItemRepository) UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error {
	args := m.Called(ctx, cartItemID, qty)
	return args.Error(0)
}

func (m *MockCartItemRepository) DeleteByID(ctx context.Context, cartItemID int64) error {
	args := m.Called(ctx, cartItemID)
	return args.Error(0)
}

func (m *MockCartItemRepository) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	args := m.Called(ctx, cartItemID)
	it, _ := args.Get(0).(model.CartItem)
	return it, args.Error(1)
}

func (m *MockCartItemRepository) IsOwnedByUser(ctx context.Context, cartItemID int64, userID int64) (bool, error) {
	args := m.Called(ctx, cartItemID, userID)
	return args.Bool(0), args.Error(1)
}

// =====================
// Mock: InventoryRepository
// =====================

type MockInventoryRepository struct {
	mock.Mock
}

func (m *MockInventoryRepository) SetStock(ctx context.Context, productID int64, newStock int64) error {
	args := m.Called(ctx, productID, newStock)
	return args.Error(0)
}

func (m *MockInventoryRepository) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	args := m.Called(ctx, productID, qty)
	return args.Bool(0), args.Error(1)
}

func (m *MockInventoryRepository) DecreaseVariantStockIfEnough(ctx context.Context, variantID int64, qty int64) (bool, error) {
	args := m.Called(ctx, variantID, qty)
	return args.Bool(0), args.Error(1)
}

func (m *MockInventoryRepository) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	args := m.Called(ctx, productID, qty)
	return args.Error(0)
}

func (m *MockInventoryRepository) IncreaseVariantStock(ctx context.Context, variantID int64, qty int64) error {
	args := m.Called(ctx, variantID, qty)
	return args.Error(0)
}

// =====================
// Mock: ProductRepository
// =====================

type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	args := m.Called(ctx, q)
	ps, _ := args.Get(0).([]model.Product)
	return ps, int64(args.Int(1)), args.Error(2)
}

func (m *MockProductRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *MockProductRepository) FindVariantByID(ctx context.Context, variantID int64) (model.ProductVariant, error) {
	args := m.Called(ctx, variantID)
	v, _ := args.Get(0).(model.ProductVariant)
	return v, args.Error(1)
}

func (m *MockProductRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).(model.Product)
	return res, args.Error(1)
}

func (m *MockProductRepository) Update(ctx context.Context, p model.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockProductRepository) SoftDelete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// =====================
// Mock: PaymentRepository
// =====================

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, p model.Payment) (int64, error) {
	args := m.Called(ctx, p)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MockPaymentRepository) FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error) {
	args := m.Called(ctx, orderID)
	p, _ := args.Get(0).(model.Payment)
	return p, args.Error(1)
}

func (m *MockPaymentRepository) Update(ctx context.Context, p model.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

// =====================
// Mock: CouponRepository
// =====================

type MockCouponRepository struct {
	mock.Mock
}

func (m *MockCouponRepository) FindByCode(ctx context.Context, code string) (model.Coupon, error) {
	args := m.Called(ctx, code)
	c, _ := args.Get(0).(model.Coupon)
	return c, args.Error(1)
}

func (m *MockCouponRepository) IncrementUsageIfAvailable(ctx context.Context, couponID int64) (bool, error) {
	args := m.Called(ctx, couponID)
	return args.Bool(0), args.Error(1)
}

// =====================
// Mock: UserRepository
// =====================

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, userID int64) (model.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(model.User)
	return u, args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(model.User)
	return u, args.Error(1)
}

// =====================
// Mock: AuditLogRepository
// =====================

type MockAuditLogRepository struct {
	mock.Mock
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockAuditLogRepository) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

// =====================
// Mock: ゲートウェイ / Publisher
// =====================

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) CreateSession(ctx context.Context, req gateway.SessionRequest) (gateway.Session, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(gateway.Session)
	return s, args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, data any) error {
	args := m.Called(ctx, routingKey, data)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// =====================
// TxManagerのスタブ（モックrepo一式をそのままfnに渡す）
// =====================

type stubTxRepos struct {
	orders     *MockOrderRepository
	orderItems *MockOrderItemRepository
	carts      *MockCartRepository
	cartItems  *MockCartItemRepository
	inventory  *MockInventoryRepository
	products   *MockProductRepository
	payments   *MockPaymentRepository
	coupons    *MockCouponRepository
}

func newStubTxRepos() *stubTxRepos {
	return &stubTxRepos{
		orders:     new(MockOrderRepository),
		orderItems: new(MockOrderItemRepository),
		carts:      new(MockCartRepository),
		cartItems:  new(MockCartItemRepository),
		inventory:  new(MockInventoryRepository),
		products:   new(MockProductRepository),
		payments:   new(MockPaymentRepository),
		coupons:    new(MockCouponRepository),
	}
}

func (r *stubTxRepos) Orders() repo.OrderRepository         { return r.orders }
func (r *stubTxRepos) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *stubTxRepos) Carts() repo.CartRepository           { return r.carts }
func (r *stubTxRepos) CartItems() repo.CartItemRepository   { return r.cartItems }
func (r *stubTxRepos) Inventory() repo.InventoryRepository  { return r.inventory }
func (r *stubTxRepos) Products() repo.ProductRepository     { return r.products }
func (r *stubTxRepos) Payments() repo.PaymentRepository     { return r.payments }
func (r *stubTxRepos) Coupons() repo.CouponRepository       { return r.coupons }

type stubTxManager struct {
	repos *stubTxRepos
}

func (tm *stubTxManager) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(tm.repos)
}
