package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeMC777/bikerhub/internal/analytics"
	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/cart"
	"github.com/MikeMC777/bikerhub/internal/config"
	"github.com/MikeMC777/bikerhub/internal/health"
	"github.com/MikeMC777/bikerhub/internal/order"
	"github.com/MikeMC777/bikerhub/internal/payment"
	"github.com/MikeMC777/bikerhub/internal/product"
	"github.com/MikeMC777/bikerhub/internal/upload"
	"github.com/MikeMC777/bikerhub/internal/user"
)

//
// ---------- STUBS & FAKES ----------
//

var (
	adminP  = &auth.Principal{UserID: "admin-1", Username: "admin", Role: auth.RoleAdmin}
	sellerP = &auth.Principal{UserID: "seller-1", Username: "seller", Role: auth.RoleSeller}
	riderP  = &auth.Principal{UserID: "rider-1", Username: "rider", Role: auth.RoleUser}
)

// stubAccounts resolves bearer tokens "admin", "seller" and "rider".
type stubAccounts struct {
	loggedOut      []string
	revokedRefresh []string
}

func (s *stubAccounts) Authenticate(_ context.Context, token string) (*auth.Principal, error) {
	switch token {
	case "admin":
		return adminP, nil
	case "seller":
		return sellerP, nil
	case "rider":
		return riderP, nil
	case "expired":
		return nil, auth.ErrExpiredToken
	}
	return nil, auth.ErrInvalidToken
}

func (s *stubAccounts) Register(_ context.Context, in user.RegisterRequest) (*user.AuthResponse, error) {
	if in.Email == "taken@bikerhub.com" {
		return nil, user.ErrAlreadyExist
	}
	return &user.AuthResponse{
		User:      &user.User{ID: uuid.NewString(), Username: in.Username, Email: in.Email, Role: auth.RoleUser},
		TokenPair: &auth.TokenPair{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: time.Now().Add(time.Hour)},
	}, nil
}

func (s *stubAccounts) Login(_ context.Context, in user.LoginRequest) (*user.AuthResponse, error) {
	if in.Password != "s3cret!" {
		return nil, auth.ErrInvalidCredentials
	}
	return &user.AuthResponse{
		User:      &user.User{ID: riderP.UserID, Email: in.Email},
		TokenPair: &auth.TokenPair{AccessToken: "rider", RefreshToken: "refresh", ExpiresAt: time.Now().Add(time.Hour)},
	}, nil
}

func (s *stubAccounts) Refresh(_ context.Context, token string) (*user.AuthResponse, error) {
	if token != "refresh" {
		return nil, auth.ErrInvalidTokenType
	}
	return &user.AuthResponse{TokenPair: &auth.TokenPair{AccessToken: "rider", RefreshToken: "refresh-2"}}, nil
}

func (s *stubAccounts) Logout(_ context.Context, p *auth.Principal, refreshToken string) error {
	s.loggedOut = append(s.loggedOut, p.UserID)
	if refreshToken != "" {
		s.revokedRefresh = append(s.revokedRefresh, refreshToken)
	}
	return nil
}

func (s *stubAccounts) Profile(_ context.Context, id string) (*user.User, error) {
	return &user.User{ID: id, Username: "rider"}, nil
}

func (s *stubAccounts) UpdateProfile(_ context.Context, id string, in user.UpdateProfileRequest) (*user.User, error) {
	u := &user.User{ID: id}
	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	return u, nil
}

func (s *stubAccounts) List(_ context.Context, f user.ListFilter) ([]user.User, int64, error) {
	return []user.User{{ID: "u1"}, {ID: "u2"}}, 2, nil
}

func (s *stubAccounts) SetRole(_ context.Context, id string, role auth.Role) (*user.User, error) {
	return &user.User{ID: id, Role: role}, nil
}

func (s *stubAccounts) SetStatus(_ context.Context, id string, st user.Status) (*user.User, error) {
	return &user.User{ID: id, Status: st}, nil
}

func (s *stubAccounts) Delete(_ context.Context, id string) error {
	if id == "missing" {
		return user.ErrNotFound
	}
	return nil
}

// stubProducts implements product.Repository in memory.
type stubProducts struct {
	items map[string]*product.Product
	views map[string]int
}

func newStubProducts() *stubProducts {
	return &stubProducts{items: map[string]*product.Product{}, views: map[string]int{}}
}

func (s *stubProducts) put(p product.Product) *product.Product {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.BeforeSave()
	s.items[p.ID] = &p
	return &p
}

func (s *stubProducts) Create(_ context.Context, p *product.Product) error {
	p.BeforeSave()
	cp := *p
	s.items[p.ID] = &cp
	return nil
}

func (s *stubProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := s.items[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *stubProducts) GetBySlug(_ context.Context, slug string) (*product.Product, error) {
	for _, p := range s.items {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, product.ErrNotFound
}

func (s *stubProducts) List(_ context.Context, q product.Query) ([]product.Product, int64, error) {
	out := []product.Product{}
	for _, p := range s.items {
		if q.Q != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Q)) {
			continue
		}
		if q.MinPrice != nil && p.CurrentPrice().LessThan(*q.MinPrice) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, int64(len(out)), nil
}

func (s *stubProducts) Highlighted(_ context.Context, h product.Highlight, _ int) ([]product.Product, error) {
	out := []product.Product{}
	for _, p := range s.items {
		if h == product.HighlightFeatured && p.IsFeatured {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *stubProducts) LowStock(_ context.Context, _ int) ([]product.Product, error) {
	out := []product.Product{}
	for _, p := range s.items {
		if p.Stock.TrackInventory && p.IsLowStock() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *stubProducts) Update(_ context.Context, p *product.Product) error {
	if _, ok := s.items[p.ID]; !ok {
		return product.ErrNotFound
	}
	p.BeforeSave()
	cp := *p
	s.items[p.ID] = &cp
	return nil
}

func (s *stubProducts) UpdateStock(_ context.Context, id string, qty int, op product.StockOperation) (*product.Product, error) {
	p, ok := s.items[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p.ApplyStock(qty, op)
	cp := *p
	return &cp, nil
}

func (s *stubProducts) IncrementViews(_ context.Context, id string) error {
	s.views[id]++
	return nil
}

func (s *stubProducts) AdjustFavorites(_ context.Context, id string, delta int) error {
	p, ok := s.items[id]
	if !ok {
		return product.ErrNotFound
	}
	p.FavoriteCount += delta
	return nil
}

func (s *stubProducts) Delete(_ context.Context, id string) (bool, error) {
	_, ok := s.items[id]
	delete(s.items, id)
	return ok, nil
}

// stubOrders keeps orders in memory and enforces the transition table.
type stubOrders struct {
	orders map[string]*order.Order
	byKey  map[string]string
	lastF  order.ListFilter
}

func newStubOrders() *stubOrders {
	return &stubOrders{orders: map[string]*order.Order{}, byKey: map[string]string{}}
}

func (s *stubOrders) Place(_ context.Context, p *auth.Principal, req order.PlaceOrderRequest, key string) (*order.Order, bool, error) {
	if id, ok := s.byKey[key]; ok && key != "" {
		return s.orders[id], true, nil
	}
	if err := req.Normalize(); err != nil {
		return nil, false, err
	}
	o := &order.Order{ID: uuid.NewString(), OrderNumber: "BH2401010001", CustomerID: p.UserID, Status: order.StatusPending}
	for _, it := range req.Lines() {
		if it.Quantity > 10 {
			return nil, false, fmt.Errorf("%w: only 10 left", order.ErrInsufficientStock)
		}
		o.Items = append(o.Items, it)
	}
	s.orders[o.ID] = o
	if key != "" {
		s.byKey[key] = o.ID
	}
	return o, false, nil
}

func (s *stubOrders) Get(_ context.Context, p *auth.Principal, id string) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if !o.VisibleTo(p) {
		return nil, order.ErrForbidden
	}
	return o, nil
}

func (s *stubOrders) List(_ context.Context, f order.ListFilter) ([]order.Order, int64, error) {
	s.lastF = f
	out := []order.Order{}
	for _, o := range s.orders {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, *o)
	}
	return out, int64(len(out)), nil
}

func (s *stubOrders) Statistics(_ context.Context, customerID string) (order.Stats, error) {
	return order.Stats{TotalOrders: int64(len(s.orders))}, nil
}

func (s *stubOrders) Status(_ context.Context, id string) (order.Status, error) {
	o, ok := s.orders[id]
	if !ok {
		return "", order.ErrNotFound
	}
	return o.Status, nil
}

func (s *stubOrders) UpdateStatus(_ context.Context, p *auth.Principal, id string, req order.UpdateStatusRequest) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if err := o.ChangeStatus(req.Status, req.Note, p.UserID, time.Now()); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *stubOrders) Cancel(_ context.Context, p *auth.Principal, id, reason string) (*order.Order, error) {
	o, err := s.Get(context.Background(), p, id)
	if err != nil {
		return nil, err
	}
	if err := o.Cancel(reason, p.UserID, time.Now()); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *stubOrders) Refund(_ context.Context, p *auth.Principal, id string, req order.RefundRequest) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if err := o.ProcessRefund(req.Amount, req.Reason, p.UserID, time.Now()); err != nil {
		return nil, err
	}
	return o, nil
}

type stubPayments struct{}

func (stubPayments) Process(_ context.Context, p *auth.Principal, req payment.ProcessRequest) (*payment.Payment, error) {
	if req.OrderID == "paid" {
		return nil, payment.ErrAlreadyPaid
	}
	return &payment.Payment{ID: "pay-1", CustomerID: p.UserID, Amount: *req.Amount, Currency: req.Currency, Status: payment.StatusCompleted}, nil
}

func (stubPayments) Get(_ context.Context, _ *auth.Principal, id string) (*payment.Payment, error) {
	if id != "pay-1" {
		return nil, payment.ErrNotFound
	}
	return &payment.Payment{ID: id, Status: payment.StatusPending}, nil
}

type stubUploads struct{ saved int }

func (s *stubUploads) SaveForm(_ context.Context, owner string, form *multipart.Form) ([]upload.File, error) {
	files := form.File["files"]
	if len(files) == 0 {
		return nil, upload.ErrNoFiles
	}
	out := make([]upload.File, len(files))
	for i, fh := range files {
		out[i] = upload.File{Key: uuid.NewString(), OriginalName: fh.Filename, OwnerID: owner, Size: fh.Size}
	}
	s.saved += len(out)
	return out, nil
}

func (s *stubUploads) List(_ context.Context, _ *auth.Principal, _, _ int) ([]upload.File, int64, error) {
	return []upload.File{}, 0, nil
}

func (s *stubUploads) Delete(_ context.Context, p *auth.Principal, key string) error {
	if key == "someone-elses" && p.Role != auth.RoleAdmin {
		return upload.ErrForbidden
	}
	return nil
}

type stubAnalytics struct{}

func (stubAnalytics) Overview(context.Context) (analytics.Overview, error) {
	return analytics.Overview{TotalUsers: 3, TotalOrders: 2, TotalRevenue: decimal.NewFromInt(150)}, nil
}

func (stubAnalytics) Sales(context.Context) (analytics.Sales, error) { return analytics.Sales{}, nil }

type stubHealth struct{ healthy bool }

func (s stubHealth) Check(context.Context) health.Report {
	st := health.StatusUp
	if !s.healthy {
		st = health.StatusDown
	}
	return health.Report{Healthy: s.healthy, Checks: map[string]string{"database": st}, Uptime: time.Minute}
}

type fixture struct {
	accounts *stubAccounts
	products *stubProducts
	orders   *stubOrders
	uploads  *stubUploads
	router   *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		accounts: &stubAccounts{},
		products: newStubProducts(),
		orders:   newStubOrders(),
		uploads:  &stubUploads{},
	}
	cfg := &config.Config{
		Server:   config.ServerConfig{Env: "test"},
		Security: config.SecurityConfig{CORSOrigins: []string{"http://localhost:3000"}, BodyLimit: 10 << 20},
		Upload:   config.UploadConfig{MaxFileSize: 5 << 20, MaxFiles: 5, PublicPath: "/uploads"},
	}
	f.router = newRouter(routerOptions{cfg: cfg, log: zap.NewNop()}, services{
		accounts:  f.accounts,
		products:  f.products,
		orders:    f.orders,
		payments:  stubPayments{},
		uploads:   f.uploads,
		analytics: stubAnalytics{},
		cart:      cart.NewService(cart.NewMemoryStore(), f.products, f.orders),
		health:    stubHealth{healthy: true},
	})
	return f
}

func init() {
	gin.SetMode(gin.TestMode)
	gin.DefaultWriter = io.Discard
	log.SetOutput(io.Discard)
}
