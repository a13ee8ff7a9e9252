package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/events"
	"github.com/MikeMC777/bikerhub/internal/logger"
)

var (
	ErrForbidden         = errors.New("access denied")
	ErrRequestInProgress = errors.New("an order with this idempotency key is still being placed")
)

// Refunder returns money for a paid order through its payment gateway.
type Refunder interface {
	RefundOrder(ctx context.Context, o *Order, amount decimal.Decimal) error
}

type Service struct {
	repo      Repository
	publisher events.Publisher
	cache     StatusCache
	idem      Idempotency
	refunder  Refunder
	taxRate   decimal.Decimal
	now       func() time.Time
}

// NewService builds the order service; taxRate is a percentage of the subtotal.
func NewService(repo Repository, publisher events.Publisher, cache StatusCache, idem Idempotency, taxRate float64) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		cache:     cache,
		idem:      idem,
		taxRate:   decimal.NewFromFloat(taxRate),
		now:       time.Now,
	}
}

// SetRefunder wires the payment side after both services exist.
func (s *Service) SetRefunder(r Refunder) { s.refunder = r }

// Place creates an order for p. A repeated idempotency key returns the order
// created the first time and replayed=true.
func (s *Service) Place(ctx context.Context, p *auth.Principal, req PlaceOrderRequest, idemKey string) (o *Order, replayed bool, err error) {
	if err := req.Normalize(); err != nil {
		return nil, false, err
	}
	idemKey = strings.TrimSpace(idemKey)
	if idemKey != "" {
		id, reserved, err := s.idem.Reserve(ctx, p.UserID, idemKey)
		switch {
		case err != nil:
			logger.FromContext(ctx).Warn("idempotency reserve failed", zap.Error(err))
			idemKey = ""
		case reserved:
		case id == "":
			return nil, false, ErrRequestInProgress
		default:
			prev, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return nil, false, err
			}
			return prev, true, nil
		}
	}

	now := s.now().UTC()
	o = &Order{
		ID:              uuid.NewString(),
		CustomerID:      p.UserID,
		Items:           req.Lines(),
		Status:          StatusPending,
		Shipping:        Shipping{Method: ShippingStandard},
		Payment:         Payment{Method: req.PaymentMethod, Status: PaymentPending},
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.ShippingAddress,
		Notes:           Notes{Customer: strings.TrimSpace(req.Notes)},
		IsGift:          req.IsGift,
		GiftMessage:     req.GiftMessage,
		Tags:            req.Tags,
		CreatedAt:       now,
	}
	if o.Tags == nil {
		o.Tags = []string{}
	}
	if req.BillingAddress != nil {
		o.BillingAddress = *req.BillingAddress
	}
	if req.ShippingMethod != "" {
		o.Shipping.Method = req.ShippingMethod
	}
	if req.ShippingCost != nil {
		o.Shipping.Cost = *req.ShippingCost
	}
	if d := req.Discount; d != nil {
		o.Discount = Discount{Code: d.Code, Type: d.Type, Value: d.Value}
		if o.Discount.Type == "" {
			o.Discount.Type = DiscountFixed
		}
	}
	for i := range o.Items {
		o.Items[i].ID = uuid.NewString()
	}
	o.appendHistory(StatusPending, "Order placed", p.UserID, now)

	err = s.repo.Create(ctx, o, func(o *Order) error {
		o.Recalculate()
		o.ApplyTax(s.taxRate)
		o.Recalculate()
		return nil
	})
	if err != nil {
		if idemKey != "" {
			if rerr := s.idem.Release(ctx, p.UserID, idemKey); rerr != nil {
				logger.FromContext(ctx).Warn("idempotency release failed", zap.Error(rerr))
			}
		}
		return nil, false, err
	}

	if idemKey != "" {
		if err := s.idem.Remember(ctx, p.UserID, idemKey, o.ID); err != nil {
			logger.FromContext(ctx).Warn("idempotency save failed", zap.Error(err))
		}
	}
	s.cacheStatus(ctx, o)
	s.publish(ctx, events.OrderCreated, o.ID, createdPayload(o))
	logger.FromContext(ctx).Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("total", o.Total.StringFixed(2)))
	return o, false, nil
}

// Get returns the order when p may see it.
func (s *Service) Get(ctx context.Context, p *auth.Principal, id string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.VisibleTo(p) {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, int64, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Statistics(ctx context.Context, customerID string) (Stats, error) {
	return s.repo.Statistics(ctx, customerID)
}

// Status answers from the cache first, then storage.
func (s *Service) Status(ctx context.Context, id string) (Status, error) {
	if st, ok, err := s.cache.GetStatus(ctx, id); err == nil && ok {
		return st, nil
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	s.cacheStatus(ctx, o)
	return o.Status, nil
}

// UpdateStatus is the staff transition endpoint. Cancellation and refund go
// through their own flows so stock and payment stay consistent.
func (s *Service) UpdateStatus(ctx context.Context, p *auth.Principal, id string, req UpdateStatusRequest) (*Order, error) {
	switch req.Status {
	case StatusCancelled:
		reason := req.Note
		if reason == "" {
			reason = "Cancelled by staff"
		}
		return s.Cancel(ctx, p, id, reason)
	case StatusRefunded:
		reason := req.Note
		if reason == "" {
			reason = "Refunded by staff"
		}
		return s.Refund(ctx, p, id, RefundRequest{Reason: reason})
	}

	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if err := o.ChangeStatus(req.Status, req.Note, p.UserID, s.now().UTC()); err != nil {
		return nil, err
	}
	if req.TrackingNumber != "" {
		o.Shipping.TrackingNumber = req.TrackingNumber
	}
	if req.Carrier != "" {
		o.Shipping.Carrier = req.Carrier
	}
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, err
	}
	s.statusChanged(ctx, o, from, req.Note, p.UserID)
	return o, nil
}

// Cancel cancels the order for its customer or staff and restores stock.
func (s *Service) Cancel(ctx context.Context, p *auth.Principal, id, reason string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Role.IsStaff() && o.CustomerID != p.UserID {
		return nil, ErrForbidden
	}
	if err := s.cancel(ctx, o, reason, p.UserID); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) cancel(ctx context.Context, o *Order, reason, by string) error {
	from := o.Status
	if err := o.Cancel(reason, by, s.now().UTC()); err != nil {
		return err
	}
	if o.Payment.Status == PaymentCompleted {
		amt := o.Total
		o.Cancellation.RefundAmount = &amt
	}
	if err := s.repo.CancelAndRestock(ctx, o); err != nil {
		return err
	}
	s.cacheStatus(ctx, o)
	s.publish(ctx, events.OrderCancelled, o.ID, events.OrderStatusPayload{
		OrderID: o.ID, OrderNumber: o.OrderNumber, From: string(from), To: string(o.Status),
		Note: reason, UpdatedBy: by,
	})
	return nil
}

// Refund refunds a delivered order, through the gateway when it was paid online.
// Only admins may refund.
func (s *Service) Refund(ctx context.Context, p *auth.Principal, id string, req RefundRequest) (*Order, error) {
	if p == nil || p.Role != auth.RoleAdmin {
		return nil, ErrForbidden
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	paid := o.Payment.Status == PaymentCompleted
	if err := o.ProcessRefund(req.Amount, req.Reason, p.UserID, s.now().UTC()); err != nil {
		return nil, err
	}
	if paid && s.refunder != nil {
		if err := s.refunder.RefundOrder(ctx, o, o.Refund.Amount); err != nil {
			return nil, fmt.Errorf("refund payment: %w", err)
		}
	}
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, err
	}
	s.cacheStatus(ctx, o)
	s.publish(ctx, events.OrderRefunded, o.ID, events.OrderRefundedPayload{
		OrderID: o.ID, OrderNumber: o.OrderNumber, Amount: o.Refund.Amount.StringFixed(2), Reason: req.Reason,
	})
	return o, nil
}

// MarkPaid records a completed payment against the order.
func (s *Service) MarkPaid(ctx context.Context, orderID, transactionID, gateway string) error {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Payment.Status == PaymentCompleted {
		return nil
	}
	from := o.Status
	o.MarkPaid(transactionID, gateway, s.now().UTC())
	if err := s.repo.Update(ctx, o); err != nil {
		return err
	}
	s.publish(ctx, events.OrderPaid, o.ID, events.OrderStatusPayload{
		OrderID: o.ID, OrderNumber: o.OrderNumber, From: string(from), To: string(o.Status), Note: transactionID,
	})
	if from != o.Status {
		s.statusChanged(ctx, o, from, "Payment received", "")
	}
	return nil
}

// ExpireStale cancels pending unpaid orders older than ttl and returns how
// many were cancelled.
func (s *Service) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	log := logger.FromContext(ctx)
	stale, err := s.repo.StalePending(ctx, s.now().UTC().Add(-ttl), 100)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range stale {
		o := &stale[i]
		if err := s.cancel(ctx, o, fmt.Sprintf("Payment not received within %s", ttl), "system"); err != nil {
			log.Warn("expire order failed", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

func (s *Service) statusChanged(ctx context.Context, o *Order, from Status, note, by string) {
	s.cacheStatus(ctx, o)
	s.publish(ctx, events.OrderStatusChanged, o.ID, events.OrderStatusPayload{
		OrderID: o.ID, OrderNumber: o.OrderNumber, From: string(from), To: string(o.Status),
		Note: note, UpdatedBy: by,
	})
}

func (s *Service) cacheStatus(ctx context.Context, o *Order) {
	if err := s.cache.SetStatus(ctx, o.ID, o.Status); err != nil {
		logger.FromContext(ctx).Warn("cache order status", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, eventType, orderID string, payload interface{}) {
	log := logger.FromContext(ctx)
	env, err := events.New(eventType, orderID, payload)
	if err != nil {
		log.Error("build event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		log.Warn("publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}

func createdPayload(o *Order) events.OrderCreatedPayload {
	items := make([]events.OrderItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = events.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price.StringFixed(2)}
	}
	return events.OrderCreatedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		Items:       items,
		Total:       o.Total.StringFixed(2),
	}
}
