package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/logger"
	"github.com/MikeMC777/bikerhub/internal/order"
)

// Orders is the order side a payment settles against.
type Orders interface {
	Get(ctx context.Context, p *auth.Principal, id string) (*order.Order, error)
	MarkPaid(ctx context.Context, orderID, transactionID, gateway string) error
}

type Service struct {
	repo     Repository
	orders   Orders
	gateways map[string]Gateway
	online   Gateway
	offline  Gateway
}

// NewService uses online (may be nil) for card-like methods and offline for the rest.
func NewService(repo Repository, orders Orders, online Gateway) *Service {
	s := &Service{
		repo:     repo,
		orders:   orders,
		offline:  OfflineGateway{},
		online:   online,
		gateways: map[string]Gateway{},
	}
	s.gateways[s.offline.Name()] = s.offline
	if online != nil {
		s.gateways[online.Name()] = online
	}
	return s
}

func (s *Service) gatewayFor(method string) Gateway {
	switch method {
	case "stripe", "credit_card", "debit_card":
		if s.online != nil {
			return s.online
		}
	}
	return s.offline
}

// Process charges req for p. When the charge completes against an order the
// order is marked paid.
func (s *Service) Process(ctx context.Context, p *auth.Principal, req ProcessRequest) (*Payment, error) {
	log := logger.FromContext(ctx)
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount cannot be negative", ErrPaymentFailed)
	}
	amount := req.Amount.Round(2)

	if req.OrderID != "" {
		o, err := s.orders.Get(ctx, p, req.OrderID)
		if err != nil {
			return nil, err
		}
		if o.Payment.Status == order.PaymentCompleted {
			return nil, ErrAlreadyPaid
		}
		if o.Status != order.StatusPending && o.Status != order.StatusConfirmed {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotPayable, o.Status)
		}
		if !amount.Equal(o.Total) {
			return nil, fmt.Errorf("%w: expected %s", ErrAmountMismatch, o.Total.StringFixed(2))
		}
	}

	gw := s.gatewayFor(req.PaymentMethod)
	pay := &Payment{
		ID:            uuid.NewString(),
		OrderID:       req.OrderID,
		CustomerID:    p.UserID,
		Amount:        amount,
		Currency:      strings.ToUpper(req.Currency),
		PaymentMethod: req.PaymentMethod,
		Gateway:       gw.Name(),
		Status:        StatusPending,
	}
	if err := s.repo.Create(ctx, pay); err != nil {
		return nil, err
	}

	res, err := gw.Charge(ctx, Charge{
		Amount:          amount,
		Currency:        pay.Currency,
		Method:          req.PaymentMethod,
		Description:     "BikerHUB order " + req.OrderID,
		OrderID:         req.OrderID,
		PaymentMethodID: req.PaymentMethodID,
		IdempotencyKey:  chargeKey(pay, req.PaymentMethodID),
	})
	if err != nil {
		pay.Status = StatusFailed
		pay.FailureReason = err.Error()
		if uerr := s.repo.Update(ctx, pay); uerr != nil {
			log.Error("record failed payment", zap.String("payment_id", pay.ID), zap.Error(uerr))
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	pay.TransactionID, pay.Status, pay.FailureReason = res.TransactionID, res.Status, res.FailureReason
	if err := s.repo.Update(ctx, pay); err != nil {
		return nil, err
	}
	log.Info("payment processed",
		zap.String("payment_id", pay.ID),
		zap.String("gateway", pay.Gateway),
		zap.String("status", string(pay.Status)))

	if err := s.settle(ctx, pay); err != nil {
		return nil, err
	}
	return pay, nil
}

// chargeKey scopes gateway idempotency to the order so that concurrent
// attempts with the same payment method collapse into one charge.
func chargeKey(pay *Payment, methodID string) string {
	if pay.OrderID == "" {
		return pay.ID
	}
	key := "order-" + pay.OrderID + "-" + pay.PaymentMethod
	if methodID != "" {
		key += "-" + methodID
	}
	return key
}

func (s *Service) settle(ctx context.Context, pay *Payment) error {
	if pay.Status != StatusCompleted || pay.OrderID == "" {
		return nil
	}
	if err := s.orders.MarkPaid(ctx, pay.OrderID, pay.TransactionID, pay.Gateway); err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	return nil
}

// Get returns the payment, refreshing a pending one from its gateway.
func (s *Service) Get(ctx context.Context, p *auth.Principal, id string) (*Payment, error) {
	pay, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pay.CustomerID != p.UserID && !p.Role.IsStaff() {
		return nil, ErrForbidden
	}
	if pay.Status != StatusPending || pay.TransactionID == "" {
		return pay, nil
	}
	gw, ok := s.gateways[pay.Gateway]
	if !ok {
		return pay, nil
	}
	res, err := gw.Status(ctx, pay.TransactionID)
	if errors.Is(err, ErrNoRemoteStatus) {
		return pay, nil
	}
	if err != nil {
		logger.FromContext(ctx).Warn("refresh payment status", zap.String("payment_id", pay.ID), zap.Error(err))
		return pay, nil
	}
	if res.Status == pay.Status {
		return pay, nil
	}
	pay.Status, pay.FailureReason = res.Status, res.FailureReason
	if err := s.repo.Update(ctx, pay); err != nil {
		return nil, err
	}
	return pay, s.settle(ctx, pay)
}

// RefundOrder returns amount of the order's completed payment.
func (s *Service) RefundOrder(ctx context.Context, o *order.Order, amount decimal.Decimal) error {
	pay, err := s.repo.CompletedForOrder(ctx, o.ID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	gw, ok := s.gateways[pay.Gateway]
	if !ok {
		return fmt.Errorf("unknown gateway %q", pay.Gateway)
	}
	if err := gw.Refund(ctx, pay.TransactionID, amount); err != nil {
		return err
	}
	pay.Status = StatusRefunded
	return s.repo.Update(ctx, pay)
}
