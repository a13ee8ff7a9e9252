package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/events"
)

type stockedProduct struct {
	name   string
	seller string
	price  decimal.Decimal
	stock  int
}

type memRepo struct {
	mu       sync.Mutex
	orders   map[string]*Order
	products map[string]*stockedProduct
	seq      int
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[string]*Order{}, products: map[string]*stockedProduct{}}
}

func (m *memRepo) Create(_ context.Context, o *Order, finalize func(*Order) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range o.Items {
		it := &o.Items[i]
		p, ok := m.products[it.ProductID]
		if !ok {
			return ErrProductUnavailable
		}
		if p.stock < it.Quantity {
			return ErrInsufficientStock
		}
		it.Name, it.SellerID, it.Price = p.name, p.seller, p.price
	}
	for _, it := range o.Items {
		m.products[it.ProductID].stock -= it.Quantity
	}
	m.seq++
	o.OrderNumber = FormatNumber(o.CreatedAt, m.seq)
	if err := finalize(o); err != nil {
		return err
	}
	o.MarkLoaded()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	cp.StatusHistory = append([]StatusEntry(nil), o.StatusHistory...)
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Order{}
	for _, o := range m.orders {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if f.SellerID != "" && !o.HasSeller(f.SellerID) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out, int64(len(out)), nil
}

func (m *memRepo) Update(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != o.LoadedStatus() {
		return ErrConcurrentUpdate
	}
	o.MarkLoaded()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memRepo) CancelAndRestock(ctx context.Context, o *Order) error {
	if err := m.Update(ctx, o); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range o.Items {
		if p, ok := m.products[it.ProductID]; ok {
			p.stock += it.Quantity
		}
	}
	return nil
}

func (m *memRepo) Statistics(_ context.Context, customerID string) (Stats, error) {
	return Stats{}, nil
}

func (m *memRepo) StalePending(_ context.Context, before time.Time, limit int) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.Status == StatusPending && o.Payment.Status == PaymentPending && o.CreatedAt.Before(before) {
			out = append(out, *o)
		}
	}
	return out, nil
}

type fakeRefunder struct {
	amounts []decimal.Decimal
	err     error
}

func (f *fakeRefunder) RefundOrder(_ context.Context, _ *Order, amount decimal.Decimal) error {
	f.amounts = append(f.amounts, amount)
	return f.err
}

var (
	customer  = &auth.Principal{UserID: "c1", Role: auth.RoleUser}
	stranger  = &auth.Principal{UserID: "c2", Role: auth.RoleUser}
	admin     = &auth.Principal{UserID: "a1", Role: auth.RoleAdmin}
	moderator = &auth.Principal{UserID: "m1", Role: auth.RoleModerator}
)

func testAddress() Address {
	return Address{FirstName: "Ana", LastName: "Gil", Email: "ana@x.io", Street: "1 Main",
		City: "Bogota", State: "DC", ZipCode: "110111", Country: "CO"}
}

func newTestService(t *testing.T) (*Service, *memRepo, *events.Recorder) {
	t.Helper()
	repo := newMemRepo()
	repo.products["p1"] = &stockedProduct{name: "Trail 29", seller: "s1", price: d("500"), stock: 3}
	repo.products["p2"] = &stockedProduct{name: "Helmet", seller: "s2", price: d("50"), stock: 10}
	rec := &events.Recorder{}
	store := NewMemoryStore()
	svc := NewService(repo, rec, store, store, 10)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc, repo, rec
}

func placeReq(items ...ItemInput) PlaceOrderRequest {
	return PlaceOrderRequest{Items: items, ShippingAddress: testAddress(), PaymentMethod: PaymentCreditCard}
}

func TestPlace(t *testing.T) {
	svc, repo, rec := newTestService(t)
	ctx := context.Background()

	o, replayed, err := svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p1", Quantity: 2}, ItemInput{ProductID: "p2", Quantity: 1}), "")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "BH202405010001", o.OrderNumber)
	assert.Equal(t, StatusPending, o.Status)
	assert.True(t, o.Subtotal.Equal(d("1050")))
	assert.True(t, o.Tax.Equal(d("105")))
	assert.True(t, o.Total.Equal(d("1155")))
	assert.Equal(t, "Trail 29", o.Items[0].Name)
	assert.Equal(t, o.ShippingAddress, o.BillingAddress)
	assert.Equal(t, 1, repo.products["p1"].stock)
	assert.Equal(t, []string{events.OrderCreated}, rec.Types())

	st, err := svc.Status(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st)
}

func TestPlace_InsufficientStock(t *testing.T) {
	svc, repo, rec := newTestService(t)
	_, _, err := svc.Place(context.Background(), customer, placeReq(ItemInput{ProductID: "p1", Quantity: 4}), "")
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 3, repo.products["p1"].stock)
	assert.Empty(t, rec.Types())
}

func TestPlace_Idempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	req := placeReq(ItemInput{ProductID: "p2", Quantity: 1})

	first, _, err := svc.Place(ctx, customer, req, "key-1")
	require.NoError(t, err)
	second, replayed, err := svc.Place(ctx, customer, req, "key-1")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 9, repo.products["p2"].stock)

	third, replayed, err := svc.Place(ctx, stranger, req, "key-1")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestPlace_KeyHeldByRunningRequest(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, reserved, err := svc.idem.Reserve(ctx, customer.UserID, "key-2")
	require.NoError(t, err)
	require.True(t, reserved)

	_, _, err = svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p2", Quantity: 1}), "key-2")
	assert.ErrorIs(t, err, ErrRequestInProgress)
	assert.Equal(t, 10, repo.products["p2"].stock)
	assert.Empty(t, repo.orders)
}

func TestPlace_FailedCreateFreesKey(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p1", Quantity: 9}), "key-3")
	require.ErrorIs(t, err, ErrInsufficientStock)

	o, replayed, err := svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p1", Quantity: 1}), "key-3")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 2, repo.products["p1"].stock)

	again, replayed, err := svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p1", Quantity: 1}), "key-3")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, o.ID, again.ID)
}

func TestPlace_ConcurrentSameKeyCreatesOnce(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	req := placeReq(ItemInput{ProductID: "p2", Quantity: 1})

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []string
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, replayed, err := svc.Place(ctx, customer, req, "key-4")
			if errors.Is(err, ErrRequestInProgress) {
				return
			}
			if !assert.NoError(t, err) || replayed {
				return
			}
			mu.Lock()
			created = append(created, o.ID)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, created, 1)
	assert.Len(t, repo.orders, 1)
	assert.Equal(t, 9, repo.products["p2"].stock)
}

func TestGet_Visibility(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p1", Quantity: 1}), "")
	require.NoError(t, err)

	_, err = svc.Get(ctx, customer, o.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, &auth.Principal{UserID: "s1", Role: auth.RoleSeller}, o.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, stranger, o.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Get(ctx, admin, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	svc, _, rec := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p1", Quantity: 1}), "")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, admin, o.ID, UpdateStatusRequest{Status: StatusShipped})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := svc.UpdateStatus(ctx, admin, o.ID, UpdateStatusRequest{Status: StatusConfirmed, Note: "checked"})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Len(t, got.StatusHistory, 2)
	assert.Equal(t, []string{events.OrderCreated, events.OrderStatusChanged}, rec.Types())

	st, _ := svc.Status(ctx, o.ID)
	assert.Equal(t, StatusConfirmed, st)
}

func TestCancel_RestoresStock(t *testing.T) {
	svc, repo, rec := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p1", Quantity: 2}), "")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, stranger, o.ID, "nope")
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := svc.Cancel(ctx, customer, o.ID, "wrong size")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 3, repo.products["p1"].stock)
	assert.Contains(t, rec.Types(), events.OrderCancelled)

	_, err = svc.Cancel(ctx, customer, o.ID, "again")
	assert.ErrorIs(t, err, ErrCannotCancel)
}

func TestUpdateStatus_CancelledRoutesThroughCancel(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p2", Quantity: 4}), "")
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, admin, o.ID, UpdateStatusRequest{Status: StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, "Cancelled by staff", got.Cancellation.Reason)
	assert.Equal(t, 10, repo.products["p2"].stock)
}

// deliver walks a confirmed order to delivered.
func deliver(t *testing.T, svc *Service, id string) {
	t.Helper()
	for _, s := range []Status{StatusProcessing, StatusShipped, StatusDelivered} {
		_, err := svc.UpdateStatus(context.Background(), admin, id, UpdateStatusRequest{Status: s})
		require.NoError(t, err)
	}
}

func TestRefund(t *testing.T) {
	svc, _, rec := newTestService(t)
	refunder := &fakeRefunder{}
	svc.SetRefunder(refunder)
	ctx := context.Background()

	o, _, err := svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p2", Quantity: 2}), "")
	require.NoError(t, err)

	_, err = svc.Refund(ctx, admin, o.ID, RefundRequest{Reason: "early"})
	assert.ErrorIs(t, err, ErrCannotRefund)

	require.NoError(t, svc.MarkPaid(ctx, o.ID, "pi_1", "stripe"))
	deliver(t, svc, o.ID)

	amount := d("40")
	got, err := svc.Refund(ctx, admin, o.ID, RefundRequest{Reason: "scratched", Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, got.Status)
	assert.Equal(t, PaymentRefunded, got.Payment.Status)
	require.Len(t, refunder.amounts, 1)
	assert.True(t, refunder.amounts[0].Equal(amount))
	assert.Contains(t, rec.Types(), events.OrderRefunded)
}

func TestUpdateStatus_RefundRequiresAdmin(t *testing.T) {
	svc, repo, _ := newTestService(t)
	refunder := &fakeRefunder{}
	svc.SetRefunder(refunder)
	ctx := context.Background()

	o, _, err := svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p2", Quantity: 1}), "")
	require.NoError(t, err)
	require.NoError(t, svc.MarkPaid(ctx, o.ID, "pi_3", "stripe"))
	deliver(t, svc, o.ID)

	_, err = svc.UpdateStatus(ctx, moderator, o.ID, UpdateStatusRequest{Status: StatusRefunded, Note: "asked nicely"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Refund(ctx, moderator, o.ID, RefundRequest{Reason: "x"})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, refunder.amounts)
	assert.Equal(t, StatusDelivered, repo.orders[o.ID].Status)
	assert.Equal(t, PaymentCompleted, repo.orders[o.ID].Payment.Status)

	got, err := svc.UpdateStatus(ctx, admin, o.ID, UpdateStatusRequest{Status: StatusRefunded})
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, got.Status)
	assert.Len(t, refunder.amounts, 1)
}

func TestRefund_GatewayFailureKeepsOrder(t *testing.T) {
	svc, repo, _ := newTestService(t)
	svc.SetRefunder(&fakeRefunder{err: errors.New("gateway down")})
	ctx := context.Background()

	o, _, err := svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p2", Quantity: 1}), "")
	require.NoError(t, err)
	require.NoError(t, svc.MarkPaid(ctx, o.ID, "pi_2", "stripe"))
	deliver(t, svc, o.ID)

	_, err = svc.Refund(ctx, admin, o.ID, RefundRequest{Reason: "x"})
	assert.Error(t, err)
	assert.Equal(t, StatusDelivered, repo.orders[o.ID].Status)
}

func TestMarkPaid_ConfirmsPending(t *testing.T) {
	svc, _, rec := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p2", Quantity: 1}), "")
	require.NoError(t, err)

	require.NoError(t, svc.MarkPaid(ctx, o.ID, "tx-1", "offline"))
	got, err := svc.Get(ctx, customer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, PaymentCompleted, got.Payment.Status)
	assert.Contains(t, rec.Types(), events.OrderPaid)

	require.NoError(t, svc.MarkPaid(ctx, o.ID, "tx-1", "offline"))
}

func TestExpireStale(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	o, _, err := svc.Place(ctx, customer, placeReq(ItemInput{ProductID: "p1", Quantity: 1}), "")
	require.NoError(t, err)

	n, err := svc.ExpireStale(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	svc.now = func() time.Time { return time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC) }
	n, err = svc.ExpireStale(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StatusCancelled, repo.orders[o.ID].Status)
	assert.Equal(t, 3, repo.products["p1"].stock)
}
