package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/bikerhub/internal/auth"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:  {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {StatusRefunded: true},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

type PaymentMethod string

const (
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentDebitCard    PaymentMethod = "debit_card"
	PaymentPayPal       PaymentMethod = "paypal"
	PaymentStripe       PaymentMethod = "stripe"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCash         PaymentMethod = "cash"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type ShippingMethod string

const (
	ShippingStandard  ShippingMethod = "standard"
	ShippingExpress   ShippingMethod = "express"
	ShippingOvernight ShippingMethod = "overnight"
	ShippingPickup    ShippingMethod = "pickup"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrCannotCancel      = errors.New("order cannot be cancelled in its current status")
	ErrCannotRefund      = errors.New("order cannot be refunded in its current status")
	ErrConcurrentUpdate  = errors.New("order was modified concurrently")
	ErrInvalidOrder      = errors.New("invalid order")
)

type Item struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"orderId,omitempty"`
	ProductID string          `json:"productId"`
	SellerID  string          `json:"sellerId,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
}

type StatusEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

type Shipping struct {
	Cost              decimal.Decimal `json:"cost"`
	Method            ShippingMethod  `json:"method"`
	EstimatedDelivery *time.Time      `json:"estimatedDelivery,omitempty"`
	TrackingNumber    string          `json:"trackingNumber,omitempty"`
	Carrier           string          `json:"carrier,omitempty"`
}

// Discount: Value is the percent for percentage discounts and the amount
// for fixed ones; Amount is the resolved reduction.
type Discount struct {
	Amount decimal.Decimal `json:"amount"`
	Value  decimal.Decimal `json:"value"`
	Code   string          `json:"code,omitempty"`
	Type   DiscountType    `json:"type,omitempty"`
}

type Payment struct {
	Method        PaymentMethod    `json:"method"`
	Status        PaymentStatus    `json:"status"`
	TransactionID string           `json:"transactionId,omitempty"`
	Gateway       string           `json:"gateway,omitempty"`
	PaidAt        *time.Time       `json:"paidAt,omitempty"`
	RefundedAt    *time.Time       `json:"refundedAt,omitempty"`
	RefundAmount  *decimal.Decimal `json:"refundAmount,omitempty"`
}

type Address struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName"  binding:"required"`
	Email     string `json:"email"     binding:"required,email"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
	Street    string `json:"street"    binding:"required"`
	City      string `json:"city"      binding:"required"`
	State     string `json:"state"     binding:"required"`
	ZipCode   string `json:"zipCode"   binding:"required"`
	Country   string `json:"country"   binding:"required"`
}

type Notes struct {
	Customer string `json:"customer,omitempty"`
	Internal string `json:"internal,omitempty"`
}

type Cancellation struct {
	Reason       string           `json:"reason"`
	RequestedBy  string           `json:"requestedBy"`
	RequestedAt  time.Time        `json:"requestedAt"`
	ApprovedBy   string           `json:"approvedBy,omitempty"`
	ApprovedAt   *time.Time       `json:"approvedAt,omitempty"`
	RefundAmount *decimal.Decimal `json:"refundAmount,omitempty"`
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundApproved  RefundStatus = "approved"
	RefundRejected  RefundStatus = "rejected"
	RefundProcessed RefundStatus = "processed"
)

type Refund struct {
	Reason      string          `json:"reason"`
	Amount      decimal.Decimal `json:"amount"`
	RequestedBy string          `json:"requestedBy"`
	RequestedAt time.Time       `json:"requestedAt"`
	ProcessedBy string          `json:"processedBy,omitempty"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
	Status      RefundStatus    `json:"status"`
}

type Order struct {
	ID                string            `json:"id"`
	OrderNumber       string            `json:"orderNumber"`
	CustomerID        string            `json:"customerId"`
	Items             []Item            `json:"items"`
	Status            Status            `json:"status"`
	StatusHistory     []StatusEntry     `json:"statusHistory"`
	Subtotal          decimal.Decimal   `json:"subtotal"`
	Tax               decimal.Decimal   `json:"tax"`
	Shipping          Shipping          `json:"shipping"`
	Discount          Discount          `json:"discount"`
	Total             decimal.Decimal   `json:"total"`
	Payment           Payment           `json:"payment"`
	BillingAddress    Address           `json:"billingAddress"`
	ShippingAddress   Address           `json:"shippingAddress"`
	Notes             Notes             `json:"notes"`
	EstimatedDelivery *time.Time        `json:"estimatedDelivery,omitempty"`
	ActualDelivery    *time.Time        `json:"actualDelivery,omitempty"`
	Cancellation      *Cancellation     `json:"cancellation,omitempty"`
	Refund            *Refund           `json:"refund,omitempty"`
	IsGift            bool              `json:"isGift"`
	GiftMessage       string            `json:"giftMessage,omitempty"`
	Tags              []string          `json:"tags"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`

	// status as loaded, used for optimistic updates
	loadedStatus Status
}

// Summary is the compact view used in listings and events.
type Summary struct {
	OrderNumber string          `json:"orderNumber"`
	Status      Status          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"itemCount"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (o *Order) Summary() Summary {
	return Summary{
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Total:       o.Total,
		ItemCount:   len(o.Items),
		CreatedAt:   o.CreatedAt,
	}
}

func (o *Order) IsDelivered() bool { return o.Status == StatusDelivered }
func (o *Order) IsCancelled() bool { return o.Status == StatusCancelled }
func (o *Order) IsRefunded() bool  { return o.Status == StatusRefunded }

func (o *Order) CanCancel() bool {
	switch o.Status {
	case StatusPending, StatusConfirmed, StatusProcessing:
		return true
	}
	return false
}

func (o *Order) CanRefund() bool { return o.IsDelivered() && !o.IsRefunded() }

// LoadedStatus is the status the order had when it was read from storage.
func (o *Order) LoadedStatus() Status { return o.loadedStatus }

// MarkLoaded records the current status as the stored one.
func (o *Order) MarkLoaded() { o.loadedStatus = o.Status }

// HasSeller reports whether any line was sold by sellerID.
func (o *Order) HasSeller(sellerID string) bool {
	for _, it := range o.Items {
		if it.SellerID == sellerID {
			return true
		}
	}
	return false
}

// VisibleTo reports whether p may read the order: the customer, a seller of
// one of its lines, or staff.
func (o *Order) VisibleTo(p *auth.Principal) bool {
	if p == nil {
		return false
	}
	return p.Role.IsStaff() || o.CustomerID == p.UserID || o.HasSeller(p.UserID)
}

var hundred = decimal.NewFromInt(100)

// Recalculate derives line totals, subtotal, the discount amount and total.
func (o *Order) Recalculate() {
	subtotal := decimal.Zero
	for i := range o.Items {
		it := &o.Items[i]
		it.Total = it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
		subtotal = subtotal.Add(it.Total)
	}
	o.Subtotal = subtotal

	switch o.Discount.Type {
	case DiscountPercentage:
		o.Discount.Amount = subtotal.Mul(o.Discount.Value).Div(hundred).Round(2)
	case DiscountFixed:
		o.Discount.Amount = o.Discount.Value
	}

	total := o.Subtotal.Add(o.Tax).Add(o.Shipping.Cost).Sub(o.Discount.Amount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	o.Total = total.Round(2)
}

// ApplyTax sets the tax as ratePercent of the subtotal.
func (o *Order) ApplyTax(ratePercent decimal.Decimal) {
	o.Tax = o.Subtotal.Mul(ratePercent).Div(hundred).Round(2)
}

func (o *Order) appendHistory(s Status, note, by string, at time.Time) {
	if note == "" {
		note = fmt.Sprintf("Status changed to %s", s)
	}
	o.StatusHistory = append(o.StatusHistory, StatusEntry{Status: s, Timestamp: at, Note: note, UpdatedBy: by})
	o.UpdatedAt = at
}

// ChangeStatus moves the order along the allowed transitions and records it.
func (o *Order) ChangeStatus(to Status, note, by string, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	if to == StatusDelivered {
		t := at
		o.ActualDelivery = &t
	}
	o.appendHistory(to, note, by, at)
	return nil
}

func (o *Order) Cancel(reason, by string, at time.Time) error {
	if !o.CanCancel() {
		return ErrCannotCancel
	}
	o.Status = StatusCancelled
	o.Cancellation = &Cancellation{Reason: reason, RequestedBy: by, RequestedAt: at}
	o.appendHistory(StatusCancelled, fmt.Sprintf("Order cancelled: %s", reason), by, at)
	return nil
}

// ProcessRefund refunds amount (the order total when nil).
func (o *Order) ProcessRefund(amount *decimal.Decimal, reason, by string, at time.Time) error {
	if !o.CanRefund() {
		return ErrCannotRefund
	}
	amt := o.Total
	if amount != nil {
		if amount.IsNegative() || amount.GreaterThan(o.Total) {
			return fmt.Errorf("%w: refund amount must be between 0 and %s", ErrInvalidOrder, o.Total.StringFixed(2))
		}
		amt = *amount
	}
	processedAt := at
	o.Refund = &Refund{
		Reason:      reason,
		Amount:      amt,
		RequestedBy: o.CustomerID,
		RequestedAt: at,
		ProcessedBy: by,
		ProcessedAt: &processedAt,
		Status:      RefundProcessed,
	}
	o.Status = StatusRefunded
	o.Payment.Status = PaymentRefunded
	o.Payment.RefundedAt = &processedAt
	o.Payment.RefundAmount = &amt
	o.appendHistory(StatusRefunded, fmt.Sprintf("Refund processed: %s", reason), by, at)
	return nil
}

// MarkPaid records a completed payment and confirms a pending order.
func (o *Order) MarkPaid(transactionID, gateway string, at time.Time) {
	paidAt := at
	o.Payment.Status = PaymentCompleted
	o.Payment.TransactionID = transactionID
	o.Payment.Gateway = gateway
	o.Payment.PaidAt = &paidAt
	if o.Status == StatusPending {
		o.Status = StatusConfirmed
		o.appendHistory(StatusConfirmed, "Payment received", "", at)
		return
	}
	o.UpdatedAt = at
}

// MarshalJSON adds the derived flags to the stored fields.
func (o Order) MarshalJSON() ([]byte, error) {
	type stored Order
	return json.Marshal(struct {
		stored
		OrderSummary Summary `json:"orderSummary"`
		IsDelivered  bool    `json:"isDelivered"`
		IsCancelled  bool    `json:"isCancelled"`
		IsRefunded   bool    `json:"isRefunded"`
		CanCancel    bool    `json:"canCancel"`
		CanRefund    bool    `json:"canRefund"`
	}{
		stored:       stored(o),
		OrderSummary: o.Summary(),
		IsDelivered:  o.IsDelivered(),
		IsCancelled:  o.IsCancelled(),
		IsRefunded:   o.IsRefunded(),
		CanCancel:    o.CanCancel(),
		CanRefund:    o.CanRefund(),
	})
}

// Stats aggregates orders, optionally for one customer.
type Stats struct {
	TotalOrders       int64           `json:"totalOrders"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
	PendingOrders     int64           `json:"pendingOrders"`
	ConfirmedOrders   int64           `json:"confirmedOrders"`
	DeliveredOrders   int64           `json:"deliveredOrders"`
	CancelledOrders   int64           `json:"cancelledOrders"`
}
