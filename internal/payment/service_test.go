package payment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/order"
)

type memRepo struct {
	mu       sync.Mutex
	payments map[string]Payment
}

func newMemRepo() *memRepo { return &memRepo{payments: map[string]Payment{}} }

func (m *memRepo) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = *p
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *memRepo) Update(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; !ok {
		return ErrNotFound
	}
	m.payments[p.ID] = *p
	return nil
}

func (m *memRepo) CompletedForOrder(_ context.Context, orderID string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.OrderID == orderID && p.Status == StatusCompleted {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

type fakeOrders struct {
	orders map[string]*order.Order
	paid   []string
}

func (f *fakeOrders) Get(_ context.Context, p *auth.Principal, id string) (*order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if !o.VisibleTo(p) {
		return nil, order.ErrForbidden
	}
	return o, nil
}

func (f *fakeOrders) MarkPaid(_ context.Context, orderID, txID, gateway string) error {
	f.paid = append(f.paid, orderID+":"+gateway)
	f.orders[orderID].Payment.Status = order.PaymentCompleted
	return nil
}

type fakeGateway struct {
	charges  []Charge
	result   Result
	err      error
	status   Result
	refunded []decimal.Decimal
}

func (g *fakeGateway) Name() string { return "stripe" }

func (g *fakeGateway) Charge(_ context.Context, c Charge) (Result, error) {
	g.charges = append(g.charges, c)
	return g.result, g.err
}

func (g *fakeGateway) Status(context.Context, string) (Result, error) { return g.status, nil }

func (g *fakeGateway) Refund(_ context.Context, _ string, amount decimal.Decimal) error {
	g.refunded = append(g.refunded, amount)
	return nil
}

var buyer = &auth.Principal{UserID: "c1", Role: auth.RoleUser}

func money(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func fixtures() (*memRepo, *fakeOrders) {
	return newMemRepo(), &fakeOrders{orders: map[string]*order.Order{
		"o1": {ID: "o1", CustomerID: "c1", Status: order.StatusPending, Total: decimal.RequireFromString("99.90"),
			Payment: order.Payment{Status: order.PaymentPending}},
	}}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(9990), MinorUnits(decimal.RequireFromString("99.90")))
	assert.Equal(t, int64(1), MinorUnits(decimal.RequireFromString("0.005")))
	assert.Equal(t, int64(100000), MinorUnits(decimal.NewFromInt(1000)))
}

func TestProcess_OfflineCardCompletesAndMarksOrderPaid(t *testing.T) {
	repo, orders := fixtures()
	svc := NewService(repo, orders, nil)

	pay, err := svc.Process(context.Background(), buyer, ProcessRequest{
		Amount: money("99.90"), Currency: "usd", PaymentMethod: "credit_card", OrderID: "o1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, pay.Status)
	assert.Equal(t, "offline", pay.Gateway)
	assert.Equal(t, "USD", pay.Currency)
	assert.Contains(t, pay.TransactionID, "txn_")
	assert.Equal(t, []string{"o1:offline"}, orders.paid)

	_, err = svc.Process(context.Background(), buyer, ProcessRequest{
		Amount: money("99.90"), Currency: "USD", PaymentMethod: "credit_card", OrderID: "o1",
	})
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestProcess_CashStaysPending(t *testing.T) {
	repo, orders := fixtures()
	svc := NewService(repo, orders, nil)

	pay, err := svc.Process(context.Background(), buyer, ProcessRequest{
		Amount: money("99.90"), Currency: "EUR", PaymentMethod: "cash", OrderID: "o1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, pay.Status)
	assert.Empty(t, orders.paid)

	got, err := svc.Get(context.Background(), buyer, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestProcess_AmountMismatch(t *testing.T) {
	repo, orders := fixtures()
	svc := NewService(repo, orders, nil)

	_, err := svc.Process(context.Background(), buyer, ProcessRequest{
		Amount: money("10"), Currency: "USD", PaymentMethod: "paypal", OrderID: "o1",
	})
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.Empty(t, repo.payments)
}

func TestProcess_RejectsClosedOrders(t *testing.T) {
	for _, st := range []order.Status{order.StatusCancelled, order.StatusRefunded, order.StatusShipped} {
		t.Run(string(st), func(t *testing.T) {
			repo, orders := fixtures()
			orders.orders["o1"].Status = st
			gw := &fakeGateway{result: Result{TransactionID: "pi_1", Status: StatusCompleted}}
			svc := NewService(repo, orders, gw)

			_, err := svc.Process(context.Background(), buyer, ProcessRequest{
				Amount: money("99.90"), Currency: "USD", PaymentMethod: "stripe", OrderID: "o1",
			})
			assert.ErrorIs(t, err, ErrOrderNotPayable)
			assert.Empty(t, gw.charges)
			assert.Empty(t, repo.payments)
			assert.Empty(t, orders.paid)
		})
	}
}

func TestProcess_ChargeKeyFollowsOrder(t *testing.T) {
	repo, orders := fixtures()
	gw := &fakeGateway{result: Result{TransactionID: "pi_1", Status: StatusPending}}
	svc := NewService(repo, orders, gw)
	ctx := context.Background()
	req := ProcessRequest{
		Amount: money("99.90"), Currency: "USD", PaymentMethod: "stripe", OrderID: "o1", PaymentMethodID: "pm_card",
	}

	_, err := svc.Process(ctx, buyer, req)
	require.NoError(t, err)
	_, err = svc.Process(ctx, buyer, req)
	require.NoError(t, err)

	require.Len(t, gw.charges, 2)
	assert.Equal(t, "order-o1-stripe-pm_card", gw.charges[0].IdempotencyKey)
	assert.Equal(t, gw.charges[0].IdempotencyKey, gw.charges[1].IdempotencyKey)

	_, err = svc.Process(ctx, buyer, ProcessRequest{
		Amount: money("5"), Currency: "USD", PaymentMethod: "stripe",
	})
	require.NoError(t, err)
	assert.NotEqual(t, gw.charges[0].IdempotencyKey, gw.charges[2].IdempotencyKey)
}

func TestProcess_StandalonePayment(t *testing.T) {
	repo, orders := fixtures()
	svc := NewService(repo, orders, nil)

	pay, err := svc.Process(context.Background(), buyer, ProcessRequest{
		Amount: money("12.5"), Currency: "GBP", PaymentMethod: "paypal",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, pay.Status)
	assert.Empty(t, orders.paid)
}

func TestProcess_GatewayErrorRecordsFailure(t *testing.T) {
	repo, orders := fixtures()
	svc := NewService(repo, orders, &fakeGateway{err: errors.New("card declined")})

	_, err := svc.Process(context.Background(), buyer, ProcessRequest{
		Amount: money("99.90"), Currency: "USD", PaymentMethod: "stripe", OrderID: "o1",
	})
	assert.ErrorIs(t, err, ErrPaymentFailed)
	require.Len(t, repo.payments, 1)
	for _, p := range repo.payments {
		assert.Equal(t, StatusFailed, p.Status)
		assert.Equal(t, "card declined", p.FailureReason)
	}
}

func TestGet_RefreshesPendingFromGateway(t *testing.T) {
	repo, orders := fixtures()
	gw := &fakeGateway{
		result: Result{TransactionID: "pi_1", Status: StatusPending},
		status: Result{TransactionID: "pi_1", Status: StatusCompleted},
	}
	svc := NewService(repo, orders, gw)
	ctx := context.Background()

	pay, err := svc.Process(ctx, buyer, ProcessRequest{
		Amount: money("99.90"), Currency: "USD", PaymentMethod: "stripe", OrderID: "o1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, pay.Status)

	_, err = svc.Get(ctx, &auth.Principal{UserID: "other", Role: auth.RoleUser}, pay.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := svc.Get(ctx, buyer, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, []string{"o1:stripe"}, orders.paid)
}

func TestRefundOrder(t *testing.T) {
	repo, orders := fixtures()
	gw := &fakeGateway{result: Result{TransactionID: "pi_9", Status: StatusCompleted}}
	svc := NewService(repo, orders, gw)
	ctx := context.Background()

	pay, err := svc.Process(ctx, buyer, ProcessRequest{
		Amount: money("99.90"), Currency: "USD", PaymentMethod: "debit_card", OrderID: "o1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RefundOrder(ctx, orders.orders["o1"], decimal.RequireFromString("50")))
	require.Len(t, gw.refunded, 1)
	assert.Equal(t, StatusRefunded, repo.payments[pay.ID].Status)

	require.NoError(t, svc.RefundOrder(ctx, &order.Order{ID: "nopay"}, decimal.Zero))
}
