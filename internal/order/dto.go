package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidOrder, fmt.Sprintf(format, args...))
}

// ItemInput is one requested line.
// swagger:model OrderItemInput
type ItemInput struct {
	ProductID string `json:"productId" binding:"required" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity  int    `json:"quantity"  binding:"required,gte=1" example:"2"`
}

type DiscountInput struct {
	Code  string          `json:"code"`
	Type  DiscountType    `json:"type"  binding:"omitempty,oneof=percentage fixed"`
	Value decimal.Decimal `json:"value" swaggertype:"number"`
}

// PlaceOrderRequest payload of order placement. Totals are computed server side;
// a supplied total is only checked for sign.
// swagger:model PlaceOrderRequest
type PlaceOrderRequest struct {
	Items           []ItemInput      `json:"items"           binding:"required,min=1,dive"`
	ShippingAddress Address          `json:"shippingAddress" binding:"required"`
	BillingAddress  *Address         `json:"billingAddress"`
	PaymentMethod   PaymentMethod    `json:"paymentMethod"   binding:"required,oneof=credit_card debit_card paypal stripe bank_transfer cash" example:"credit_card"`
	ShippingMethod  ShippingMethod   `json:"shippingMethod"  binding:"omitempty,oneof=standard express overnight pickup"`
	ShippingCost    *decimal.Decimal `json:"shippingCost"    swaggertype:"number"`
	Discount        *DiscountInput   `json:"discount"`
	Notes           string           `json:"notes"           binding:"omitempty,max=500"`
	IsGift          bool             `json:"isGift"`
	GiftMessage     string           `json:"giftMessage"     binding:"omitempty,max=200"`
	Tags            []string         `json:"tags"`
	Total           *decimal.Decimal `json:"total"           swaggertype:"number"`
}

// Normalize trims the addresses and checks what the binding tags cannot.
func (r *PlaceOrderRequest) Normalize() error {
	if len(r.Items) == 0 {
		return invalid("order must contain at least one item")
	}
	if r.Total != nil && r.Total.IsNegative() {
		return invalid("total cannot be negative")
	}
	if r.ShippingCost != nil && r.ShippingCost.IsNegative() {
		return invalid("shipping cost cannot be negative")
	}
	if d := r.Discount; d != nil {
		if d.Value.IsNegative() {
			return invalid("discount cannot be negative")
		}
		if d.Type == DiscountPercentage && d.Value.GreaterThan(hundred) {
			return invalid("percentage discount cannot exceed 100")
		}
	}
	if err := r.ShippingAddress.normalize("shippingAddress"); err != nil {
		return err
	}
	if r.BillingAddress != nil {
		if err := r.BillingAddress.normalize("billingAddress"); err != nil {
			return err
		}
	}
	return nil
}

// Lines merges repeated products into single lines, keeping first-seen order.
func (r *PlaceOrderRequest) Lines() []Item {
	idx := map[string]int{}
	var out []Item
	for _, in := range r.Items {
		id := strings.TrimSpace(in.ProductID)
		if i, ok := idx[id]; ok {
			out[i].Quantity += in.Quantity
			continue
		}
		idx[id] = len(out)
		out = append(out, Item{ProductID: id, Quantity: in.Quantity})
	}
	return out
}

func (a *Address) normalize(field string) error {
	required := []struct {
		name string
		v    *string
	}{
		{"firstName", &a.FirstName}, {"lastName", &a.LastName}, {"email", &a.Email},
		{"street", &a.Street}, {"city", &a.City}, {"state", &a.State},
		{"zipCode", &a.ZipCode}, {"country", &a.Country},
	}
	for _, r := range required {
		*r.v = strings.TrimSpace(*r.v)
		if *r.v == "" {
			return invalid("%s.%s is required", field, r.name)
		}
	}
	a.Email = strings.ToLower(a.Email)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Company = strings.TrimSpace(a.Company)
	return nil
}

// swagger:model UpdateStatusRequest
type UpdateStatusRequest struct {
	Status         Status `json:"status"         binding:"required,oneof=pending confirmed processing shipped delivered cancelled refunded" example:"shipped"`
	Note           string `json:"note"           binding:"omitempty,max=500"`
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier"`
}

// swagger:model CancelRequest
type CancelRequest struct {
	Reason string `json:"reason" binding:"required,max=500" example:"Ordered the wrong size"`
}

// swagger:model RefundRequest
type RefundRequest struct {
	Reason string           `json:"reason" binding:"required,max=500" example:"Damaged in transit"`
	Amount *decimal.Decimal `json:"amount" swaggertype:"number"`
}

// ListFilter scopes order listings. Empty fields do not filter.
type ListFilter struct {
	CustomerID string
	SellerID   string
	Status     Status
	Page       int
	Limit      int
	SortBy     string
	SortOrder  string
}

func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
}

func (f ListFilter) Offset() int { return (f.Page - 1) * f.Limit }

var sortColumns = map[string]string{
	"createdAt":   "o.created_at",
	"updatedAt":   "o.updated_at",
	"total":       "o.total",
	"status":      "o.status",
	"orderNumber": "o.order_number",
}

func (f ListFilter) orderClause() string {
	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "o.created_at"
	}
	dir := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		dir = "ASC"
	}
	return col + " " + dir
}
