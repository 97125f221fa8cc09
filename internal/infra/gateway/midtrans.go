package gateway

import (
	"context"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
)

// 決済セッション（ホスト型決済ページ）の1明細。
// 明細合計がGrossAmtと一致しないとゲートウェイ側で弾かれるので、
// 送料も疑似明細として積むこと。
type SessionItem struct {
	ID       string
	Name     string
	Price    int64
	Quantity int64
}

type SessionRequest struct {
	OrderNumber   string
	GrossAmount   int64
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Items         []SessionItem
}

type Session struct {
	Token       string
	RedirectURL string
}

// ゲートウェイに必要なのはセッション作成だけ。
// テストではこのインタフェースを差し替える。
type Client interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type MidtransClient struct {
	snap snapAPI
}

// serverKeyとenv（sandbox/production）からSnapクライアントを組む
func NewMidtransClient(serverKey string, production bool) *MidtransClient {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}

	c := &snap.Client{}
	c.New(serverKey, env)
	return &MidtransClient{snap: c}
}

// SDKはcontextを受けないので、selectでctxの期限を効かせる。
func (m *MidtransClient) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	items := make([]midtrans.ItemDetails, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, midtrans.ItemDetails{
			ID:    it.ID,
			Name:  it.Name,
			Price: it.Price,
			Qty:   int32(it.Quantity),
		})
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderNumber,
			GrossAmt: req.GrossAmount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
		},
		Items: &items,
	}

	type result struct {
		session Session
		err     error
	}

	ch := make(chan result, 1)
	go func() {
		resp, midErr := m.snap.CreateTransaction(snapReq)
		if midErr != nil {
			ch <- result{err: midErr}
			return
		}
		ch <- result{session: Session{Token: resp.Token, RedirectURL: resp.RedirectURL}}
	}()

	select {
	case <-ctx.Done():
		return Session{}, ctx.Err()
	case r := <-ch:
		return r.session, r.err
	}
}
