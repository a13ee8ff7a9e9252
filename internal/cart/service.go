package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/logger"
	"github.com/MikeMC777/bikerhub/internal/order"
	"github.com/MikeMC777/bikerhub/internal/product"
)

// Catalog is the product side the cart reads prices from.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
	AdjustFavorites(ctx context.Context, id string, delta int) error
}

type Orders interface {
	Place(ctx context.Context, p *auth.Principal, req order.PlaceOrderRequest, idemKey string) (*order.Order, bool, error)
}

type Service struct {
	store   Store
	catalog Catalog
	orders  Orders
	now     func() time.Time
}

func NewService(store Store, catalog Catalog, orders Orders) *Service {
	return &Service{store: store, catalog: catalog, orders: orders, now: time.Now}
}

func (s *Service) Get(ctx context.Context, userID string) (Cart, error) {
	lines, err := s.store.Lines(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	return Summarize(lines), nil
}

func (s *Service) purchasable(ctx context.Context, productID string) (*product.Product, error) {
	p, err := s.catalog.GetByID(ctx, productID)
	if errors.Is(err, product.ErrNotFound) {
		return nil, ErrProductUnavailable
	}
	if err != nil {
		return nil, err
	}
	if p.Status != product.StatusActive || p.Availability == product.AvailabilityDiscontinued {
		return nil, ErrProductUnavailable
	}
	return p, nil
}

func checkStock(p *product.Product, qty int) error {
	if p.Stock.TrackInventory && qty > p.Stock.Quantity {
		return fmt.Errorf("%w: only %d of %s left", ErrInsufficientStock, p.Stock.Quantity, p.Name)
	}
	return nil
}

// Add puts qty of the product in the cart; an existing line grows.
func (s *Service) Add(ctx context.Context, userID string, req AddRequest) (Cart, error) {
	qty := req.Quantity
	if qty < 1 {
		qty = 1
	}
	p, err := s.purchasable(ctx, req.ProductID)
	if err != nil {
		return Cart{}, err
	}
	line, err := s.store.Line(ctx, userID, p.ID)
	if err != nil {
		return Cart{}, err
	}
	if line == nil {
		line = &Line{ProductID: p.ID, AddedAt: s.now().UTC()}
	}
	line.Quantity += qty
	if err := checkStock(p, line.Quantity); err != nil {
		return Cart{}, err
	}
	line.Name, line.Price, line.Image = p.Name, p.CurrentPrice(), p.PrimaryImage()
	if err := s.store.Save(ctx, userID, *line); err != nil {
		return Cart{}, err
	}
	return s.Get(ctx, userID)
}

// Update sets the line quantity; zero or less removes the line.
func (s *Service) Update(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	if qty <= 0 {
		return s.Remove(ctx, userID, productID)
	}
	line, err := s.store.Line(ctx, userID, productID)
	if err != nil {
		return Cart{}, err
	}
	if line == nil {
		return Cart{}, ErrNotInCart
	}
	p, err := s.purchasable(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	if err := checkStock(p, qty); err != nil {
		return Cart{}, err
	}
	line.Quantity = qty
	line.Price = p.CurrentPrice()
	if err := s.store.Save(ctx, userID, *line); err != nil {
		return Cart{}, err
	}
	return s.Get(ctx, userID)
}

func (s *Service) Remove(ctx context.Context, userID, productID string) (Cart, error) {
	ok, err := s.store.Remove(ctx, userID, productID)
	if err != nil {
		return Cart{}, err
	}
	if !ok {
		return Cart{}, ErrNotInCart
	}
	return s.Get(ctx, userID)
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.store.Clear(ctx, userID)
}

// swagger:model CheckoutRequest
type CheckoutRequest struct {
	ShippingAddress order.Address        `json:"shippingAddress" binding:"required"`
	BillingAddress  *order.Address       `json:"billingAddress"`
	PaymentMethod   order.PaymentMethod  `json:"paymentMethod"   binding:"required,oneof=credit_card debit_card paypal stripe bank_transfer cash"`
	ShippingMethod  order.ShippingMethod `json:"shippingMethod"  binding:"omitempty,oneof=standard express overnight pickup"`
	Notes           string               `json:"notes"           binding:"omitempty,max=500"`
}

// Checkout places an order for the cart contents and empties the cart.
func (s *Service) Checkout(ctx context.Context, p *auth.Principal, req CheckoutRequest, idemKey string) (*order.Order, error) {
	lines, err := s.store.Lines(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].AddedAt.Before(lines[j].AddedAt) })

	items := make([]order.ItemInput, len(lines))
	for i, l := range lines {
		items[i] = order.ItemInput{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	o, _, err := s.orders.Place(ctx, p, order.PlaceOrderRequest{
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		ShippingMethod:  req.ShippingMethod,
		Notes:           req.Notes,
	}, idemKey)
	if err != nil {
		return nil, err
	}
	if err := s.store.Clear(ctx, p.UserID); err != nil {
		logger.FromContext(ctx).Warn("clear cart after checkout", zap.String("user_id", p.UserID), zap.Error(err))
	}
	return o, nil
}

// ToggleWishlist adds or removes the product and reports whether it is now wished.
func (s *Service) ToggleWishlist(ctx context.Context, userID, productID string) (bool, error) {
	if _, err := s.catalog.GetByID(ctx, productID); err != nil {
		return false, err
	}
	// the favorite count only moves by what the set actually changed
	removed, err := s.store.RemoveWish(ctx, userID, productID)
	if err != nil {
		return false, err
	}
	if removed {
		return false, s.catalog.AdjustFavorites(ctx, productID, -1)
	}
	added, err := s.store.AddWish(ctx, userID, productID)
	if err != nil {
		return false, err
	}
	if !added {
		return true, nil
	}
	return true, s.catalog.AdjustFavorites(ctx, productID, 1)
}

func (s *Service) Wishlist(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.store.Wishlist(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
