// Package cart keeps per user carts and wishlists and turns a cart into an order.
package cart

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrNotInCart          = errors.New("product is not in the cart")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInsufficientStock  = errors.New("insufficient stock")
)

type Line struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"addedAt"`
}

type Cart struct {
	Items []Line          `json:"items"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// Summarize orders the lines by insertion and computes the totals.
func Summarize(lines []Line) Cart {
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].AddedAt.Before(lines[j].AddedAt) })
	c := Cart{Items: lines, Total: decimal.Zero}
	if c.Items == nil {
		c.Items = []Line{}
	}
	for _, l := range lines {
		c.Total = c.Total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		c.Count += l.Quantity
	}
	c.Total = c.Total.Round(2)
	return c
}

// swagger:model AddToCartRequest
type AddRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"  binding:"omitempty,gte=1"`
}

// swagger:model UpdateCartRequest
type UpdateRequest struct {
	Quantity int `json:"quantity"`
}
