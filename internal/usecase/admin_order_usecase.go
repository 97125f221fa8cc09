package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
)

// 管理者が進められる遷移。前進のみで、後退は許さない。
// キャンセルは出荷前（UNPAID/PAID/PROCESSING）だけ。
var adminOrderTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusUnpaid:     {model.OrderStatusPaid, model.OrderStatusCanceled},
	model.OrderStatusPaid:       {model.OrderStatusProcessing, model.OrderStatusCanceled},
	model.OrderStatusProcessing: {model.OrderStatusShipped, model.OrderStatusCanceled},
	model.OrderStatusShipped:    {model.OrderStatusCompleted},
}

type AdminOrderUsecase struct {
	tx        repo.TransactionManager
	auditRepo repo.AuditLogRepository
}

func NewAdminOrderUsecase(tx repo.TransactionManager, auditRepo repo.AuditLogRepository) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, auditRepo: auditRepo}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

// 注文一覧（管理者）
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) ([]OrderOutput, int64, error) {
	if f.Page < 1 {
		return nil, 0, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return nil, 0, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	var outs []OrderOutput
	var total int64

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, n, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		total = n

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
		return nil, 0, err
	}
	return outs, total, nil
}

// ステータス更新。CANCELEDへ落とすときは在庫も戻す。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) error {
	if actorAdminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	newStatus := model.OrderStatus(strings.ToUpper(strings.TrimSpace(in.Status)))
	switch newStatus {
	case model.OrderStatusPaid, model.OrderStatusProcessing,
		model.OrderStatusShipped, model.OrderStatusCompleted,
		model.OrderStatusCanceled:
		// OK
	default:
		return NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// すでに同じなら何もしない（200）
		if o.Status == newStatus {
			return nil
		}
		if !transitionAllowed(o.Status, newStatus) {
			return NewHTTPError(http.StatusBadRequest, "invalid transition")
		}

		if newStatus == model.OrderStatusCanceled {
			if err := restoreStock(ctx, r, orderID); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		beforeStatus := string(o.Status)
		if err := r.Orders().UpdateStatus(ctx, orderID, newStatus); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//監査ログ（UPDATE_ORDER_STATUS）
		if err := u.auditRepo.Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   `{"status":"` + beforeStatus + `"}`,
			AfterJSON:    `{"status":"` + string(newStatus) + `"}`,
			CreatedAt:    time.Now(),
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		return nil
	})
}

func transitionAllowed(from, to model.OrderStatus) bool {
	for _, s := range adminOrderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
