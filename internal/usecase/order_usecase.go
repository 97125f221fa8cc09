package usecase

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shop/internal/domain/model"
	"shop/internal/infra/gateway"
	repo "shop/internal/repository"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ゲートウェイ呼び出しの上限時間。超えても注文自体は成立させる。
const gatewaySessionTimeout = 10 * time.Second

type OrderUsecase struct {
	tx       repo.TransactionManager
	userRepo repo.UserRepository
	gw       gateway.Client
	logger   echo.Logger
}

func NewOrderUsecase(tx repo.TransactionManager, userRepo repo.UserRepository, gw gateway.Client, logger echo.Logger) *OrderUsecase {
	return &OrderUsecase{tx: tx, userRepo: userRepo, gw: gw, logger: logger}
}

type CheckoutInput struct {
	ShipName       string
	ShipPhone      string
	ShipAddress    string
	ShipCity       string
	ShipPostalCode string
	PaymentMethod  string
	ShippingCost   int64
	Note           string
	CouponCode     string
}

type OrderItemOutput struct {
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

type PaymentOutput struct {
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type OrderOutput struct {
	ID            int64             `json:"id"`
	OrderNumber   string            `json:"order_number"`
	UserID        int64             `json:"user_id"`
	Status        string            `json:"status"`
	Subtotal      int64             `json:"subtotal"`
	ShippingCost  int64             `json:"shipping_cost"`
	Discount      int64             `json:"discount"`
	Total         int64             `json:"total"`
	PaymentMethod string            `json:"payment_method"`
	SnapToken     string            `json:"snap_token,omitempty"`
	RedirectURL   string            `json:"redirect_url,omitempty"`
	Note          string            `json:"note,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Items         []OrderItemOutput `json:"items"`
	Payment       *PaymentOutput    `json:"payment,omitempty"`
}

// 4.2のチェックアウト。
// 在庫は「全行検証してから減らす」。1行でも足りなければ何も変更しない。
// ゲートウェイのセッション作成失敗は注文を巻き戻さない（トークン無しで返す）。
func (u *OrderUsecase) Checkout(ctx context.Context, userID int64, in CheckoutInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := validateShipping(in); err != nil {
		return OrderOutput{}, err
	}
	method := model.PaymentMethod(strings.TrimSpace(in.PaymentMethod))
	if !model.ValidPaymentMethod(method) {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_method")
	}
	if in.ShippingCost < 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid shipping_cost")
	}
	if len(in.Note) > 1000 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "note too long")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//ACTIVEカート取得
		cart, err := r.Carts().FindActiveByUserID(ctx, userID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusBadRequest, "cart empty")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//カート明細取得
		cartItems, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if len(cartItems) == 0 {
			return NewHTTPError(http.StatusBadRequest, "cart empty")
		}

		//全行の在庫を先に検証する（1行でも足りなければここで中断。減算はまだ）
		type resolvedLine struct {
			item      model.CartItem
			product   model.Product
			unitPrice int64
		}
		lines := make([]resolvedLine, 0, len(cartItems))
		for _, ci := range cartItems {
			p, err := r.Products().FindByID(ctx, ci.ProductID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusBadRequest, "invalid")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !p.IsActive {
				return NewHTTPError(http.StatusBadRequest, "invalid")
			}

			unitPrice := p.Price
			effectiveStock := p.Stock
			if ci.VariantID != nil {
				v, err := r.Products().FindVariantByID(ctx, *ci.VariantID)
				if err == repo.ErrNotFound {
					return NewHTTPError(http.StatusBadRequest, "invalid")
				}
				if err != nil {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
				unitPrice = p.Price + v.PriceAdjustment
				effectiveStock = v.Stock
			}

			if effectiveStock < ci.Quantity {
				return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("insufficient stock: %s", p.Name))
			}

			lines = append(lines, resolvedLine{item: ci, product: p, unitPrice: unitPrice})
		}

		//在庫減算（条件付きUPDATE。同時注文で競り負けた行があれば全体を巻き戻す）
		var subtotal int64 = 0
		orderItems := make([]model.OrderItem, 0, len(lines))
		now := time.Now()
		for _, ln := range lines {
			var ok bool
			var err error
			if ln.item.VariantID != nil {
				ok, err = r.Inventory().DecreaseVariantStockIfEnough(ctx, *ln.item.VariantID, ln.item.Quantity)
			} else {
				ok, err = r.Inventory().DecreaseStockIfEnough(ctx, ln.item.ProductID, ln.item.Quantity)
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !ok {
				return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("insufficient stock: %s", ln.product.Name))
			}

			//スナップショット（解決済み単価＝基本価格＋バリエーション加算）
			orderItems = append(orderItems, model.OrderItem{
				ProductID:           ln.item.ProductID,
				VariantID:           ln.item.VariantID,
				ProductNameSnapshot: ln.product.Name,
				UnitPriceSnapshot:   ln.unitPrice,
				Quantity:            ln.item.Quantity,
				CreatedAt:           now,
			})
			subtotal += ln.unitPrice * ln.item.Quantity
		}

		//クーポン（指定時のみ）。消費はこのトランザクションの中で確定する。
		var discount int64 = 0
		if strings.TrimSpace(in.CouponCode) != "" {
			code := strings.ToUpper(strings.TrimSpace(in.CouponCode))
			coupon, err := r.Coupons().FindByCode(ctx, code)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusBadRequest, "invalid coupon")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if reason, ok := couponUsable(coupon, subtotal, now); !ok {
				return NewHTTPError(http.StatusBadRequest, reason)
			}

			used, err := r.Coupons().IncrementUsageIfAvailable(ctx, coupon.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !used {
				return NewHTTPError(http.StatusBadRequest, "coupon usage limit reached")
			}
			discount = coupon.DiscountFor(subtotal)
		}

		total := subtotal + in.ShippingCost - discount

		//注文作成（UNPAID）
		orderNumber := "ORD-" + uuid.NewString()
		order := model.Order{
			OrderNumber:    orderNumber,
			UserID:         userID,
			Status:         model.OrderStatusUnpaid,
			Subtotal:       subtotal,
			ShippingCost:   in.ShippingCost,
			Discount:       discount,
			Total:          total,
			ShipName:       strings.TrimSpace(in.ShipName),
			ShipPhone:      strings.TrimSpace(in.ShipPhone),
			ShipAddress:    strings.TrimSpace(in.ShipAddress),
			ShipCity:       strings.TrimSpace(in.ShipCity),
			ShipPostalCode: strings.TrimSpace(in.ShipPostalCode),
			PaymentMethod:  method,
			Note:           in.Note,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		order.ID = orderID

		//注文明細一括作成
		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//カートをCHECKED_OUTにして、明細をクリア（再注文防止）
		if err := r.Carts().UpdateStatus(ctx, cart.ID, model.CartStatusCheckedOut); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = toOrderOutput(order, orderItems)

		//codはゲートウェイを呼ばない
		if method == model.PaymentMethodCOD {
			return nil
		}

		//ゲートウェイセッション作成。失敗しても注文は成立させる（トークン無し）。
		session, err := u.createGatewaySession(ctx, order, orderItems)
		if err != nil {
			u.logger.Warnf("gateway session failed for %s: %v", orderNumber, err)
			return nil
		}

		if err := r.Orders().UpdateSnapToken(ctx, orderID, session.Token); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if _, err := r.Payments().Create(ctx, model.Payment{
			OrderID:   orderID,
			Status:    model.PaymentStatusPending,
			Amount:    total,
			SnapToken: session.Token,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out.SnapToken = session.Token
		out.RedirectURL = session.RedirectURL
		out.Payment = &PaymentOutput{Status: string(model.PaymentStatusPending), Amount: total}
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// 合計がGrossAmtと一致するように、送料と割引も疑似明細として積む。
func (u *OrderUsecase) createGatewaySession(ctx context.Context, order model.Order, items []model.OrderItem) (gateway.Session, error) {
	user, err := u.userRepo.FindByID(ctx, order.UserID)
	if err != nil {
		return gateway.Session{}, err
	}

	sessionItems := make([]gateway.SessionItem, 0, len(items)+2)
	for _, it := range items {
		id := fmt.Sprintf("P%d", it.ProductID)
		if it.VariantID != nil {
			id = fmt.Sprintf("P%d-V%d", it.ProductID, *it.VariantID)
		}
		sessionItems = append(sessionItems, gateway.SessionItem{
			ID:       id,
			Name:     it.ProductNameSnapshot,
			Price:    it.UnitPriceSnapshot,
			Quantity: it.Quantity,
		})
	}
	if order.ShippingCost > 0 {
		sessionItems = append(sessionItems, gateway.SessionItem{
			ID:       "SHIPPING",
			Name:     "Shipping",
			Price:    order.ShippingCost,
			Quantity: 1,
		})
	}
	if order.Discount > 0 {
		sessionItems = append(sessionItems, gateway.SessionItem{
			ID:       "DISCOUNT",
			Name:     "Discount",
			Price:    -order.Discount,
			Quantity: 1,
		})
	}

	gwCtx, cancel := context.WithTimeout(ctx, gatewaySessionTimeout)
	defer cancel()

	return u.gw.CreateSession(gwCtx, gateway.SessionRequest{
		OrderNumber:   order.OrderNumber,
		GrossAmount:   order.Total,
		CustomerName:  user.Name,
		CustomerEmail: user.Email,
		CustomerPhone: user.Phone,
		Items:         sessionItems,
	})
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, 1, 50)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = toOrderOutput(o, items)

		//支払い情報があれば添える
		p, err := r.Payments().FindByOrderID(ctx, orderID)
		if err == nil {
			out.Payment = &PaymentOutput{Status: string(p.Status), Amount: p.Amount}
		} else if err != repo.ErrNotFound {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func validateShipping(in CheckoutInput) error {
	name := strings.TrimSpace(in.ShipName)
	if name == "" || len(name) > 100 {
		return NewHTTPError(http.StatusBadRequest, "invalid ship_name")
	}
	phone := strings.TrimSpace(in.ShipPhone)
	if phone == "" || len(phone) > 20 {
		return NewHTTPError(http.StatusBadRequest, "invalid ship_phone")
	}
	addr := strings.TrimSpace(in.ShipAddress)
	if addr == "" || len(addr) > 255 {
		return NewHTTPError(http.StatusBadRequest, "invalid ship_address")
	}
	city := strings.TrimSpace(in.ShipCity)
	if city == "" || len(city) > 100 {
		return NewHTTPError(http.StatusBadRequest, "invalid ship_city")
	}
	postal := strings.TrimSpace(in.ShipPostalCode)
	if postal == "" || len(postal) > 10 {
		return NewHTTPError(http.StatusBadRequest, "invalid ship_postal_code")
	}
	return nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
		})
	}

	return OrderOutput{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        string(o.Status),
		Subtotal:      o.Subtotal,
		ShippingCost:  o.ShippingCost,
		Discount:      o.Discount,
		Total:         o.Total,
		PaymentMethod: string(o.PaymentMethod),
		SnapToken:     o.SnapToken,
		Note:          o.Note,
		CreatedAt:     o.CreatedAt,
		Items:         outItems,
	}
}
