package main

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/httpx"
	"github.com/MikeMC777/bikerhub/internal/order"
)

const idempotencyHeader = "Idempotency-Key"

type orderService interface {
	Place(ctx context.Context, p *auth.Principal, req order.PlaceOrderRequest, idemKey string) (*order.Order, bool, error)
	Get(ctx context.Context, p *auth.Principal, id string) (*order.Order, error)
	List(ctx context.Context, f order.ListFilter) ([]order.Order, int64, error)
	Statistics(ctx context.Context, customerID string) (order.Stats, error)
	Status(ctx context.Context, id string) (order.Status, error)
	UpdateStatus(ctx context.Context, p *auth.Principal, id string, req order.UpdateStatusRequest) (*order.Order, error)
	Cancel(ctx context.Context, p *auth.Principal, id, reason string) (*order.Order, error)
	Refund(ctx context.Context, p *auth.Principal, id string, req order.RefundRequest) (*order.Order, error)
}

func orderFilter(c *gin.Context) order.ListFilter {
	page, limit := pageParams(c)
	return order.ListFilter{
		Status:    order.Status(c.Query("status")),
		Page:      page,
		Limit:     limit,
		SortBy:    c.DefaultQuery("sortBy", "createdAt"),
		SortOrder: c.DefaultQuery("sortOrder", "desc"),
	}
}

func listOrders(c *gin.Context, svc orderService, f order.ListFilter) {
	if f.Status != "" && !f.Status.Valid() {
		httpx.Fail(c, httpx.BadRequest("Invalid order status"))
		return
	}
	orders, total, err := svc.List(c.Request.Context(), f)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.Paginated(c, orders, httpx.NewPagination(f.Page, f.Limit, total))
}

// listOrdersHandler lists the caller's orders; staff may pass all=true.
func listOrdersHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := httpx.CurrentPrincipal(c)
		f := orderFilter(c)
		if !(p.Role.IsStaff() && c.Query("all") == "true") {
			f.CustomerID = p.UserID
		}
		listOrders(c, svc, f)
	}
}

// sellerOrdersHandler lists orders containing the seller's products.
func sellerOrdersHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := httpx.CurrentPrincipal(c)
		f := orderFilter(c)
		f.SellerID = p.UserID
		if p.Role == auth.RoleAdmin && c.Query("seller") != "" {
			f.SellerID = c.Query("seller")
		}
		listOrders(c, svc, f)
	}
}

func orderStatsHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := httpx.CurrentPrincipal(c)
		customerID := p.UserID
		if p.Role.IsStaff() {
			customerID = c.Query("customer")
		}
		stats, err := svc.Statistics(c.Request.Context(), customerID)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "", stats)
	}
}

func getOrderHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.Get(c.Request.Context(), httpx.CurrentPrincipal(c), c.Param("id"))
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "", o)
	}
}

func orderStatusHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := svc.Status(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "", gin.H{"id": c.Param("id"), "status": st})
	}
}

func placeOrderHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in order.PlaceOrderRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		o, replayed, err := svc.Place(c.Request.Context(), httpx.CurrentPrincipal(c), in, c.GetHeader(idempotencyHeader))
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		if replayed {
			httpx.OK(c, "Order already created", o)
			return
		}
		httpx.Created(c, "Order created successfully", o)
	}
}

func updateOrderStatusHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in order.UpdateStatusRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		o, err := svc.UpdateStatus(c.Request.Context(), httpx.CurrentPrincipal(c), c.Param("id"), in)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "Order status updated", o)
	}
}

func cancelOrderHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in order.CancelRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		o, err := svc.Cancel(c.Request.Context(), httpx.CurrentPrincipal(c), c.Param("id"), in.Reason)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "Order cancelled successfully", o)
	}
}

func refundOrderHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in order.RefundRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		o, err := svc.Refund(c.Request.Context(), httpx.CurrentPrincipal(c), c.Param("id"), in)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "Order refunded successfully", o)
	}
}
