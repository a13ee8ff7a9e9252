// Package payment charges orders through a payment gateway and records the result.
package payment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

var (
	ErrNotFound        = errors.New("payment not found")
	ErrForbidden       = errors.New("access denied")
	ErrAlreadyPaid     = errors.New("order is already paid")
	ErrOrderNotPayable = errors.New("order cannot be paid in its current status")
	ErrAmountMismatch  = errors.New("amount does not match the order total")
	ErrPaymentFailed   = errors.New("payment failed")
	ErrNoRemoteStatus  = errors.New("gateway does not report payment status")
)

type Payment struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"orderId,omitempty"`
	CustomerID    string          `json:"customerId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"paymentMethod"`
	Gateway       string          `json:"gateway"`
	Status        Status          `json:"status"`
	TransactionID string          `json:"transactionId,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// ProcessRequest payload of a payment.
// swagger:model ProcessPaymentRequest
type ProcessRequest struct {
	Amount          *decimal.Decimal `json:"amount"          binding:"required" swaggertype:"number" example:"149.90"`
	Currency        string           `json:"currency"        binding:"required,oneof=USD EUR GBP" example:"USD"`
	PaymentMethod   string           `json:"paymentMethod"   binding:"required" example:"credit_card"`
	OrderID         string           `json:"orderId"`
	PaymentMethodID string           `json:"paymentMethodId"`
}

// Charge is what a gateway is asked to collect.
type Charge struct {
	Amount          decimal.Decimal
	Currency        string
	Method          string
	Description     string
	OrderID         string
	PaymentMethodID string
	IdempotencyKey  string
}

// Result is a gateway's view of a charge.
type Result struct {
	TransactionID string
	Status        Status
	FailureReason string
}

// MinorUnits converts an amount to the integer cents gateways expect.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}
