package main

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/cart"
	"github.com/MikeMC777/bikerhub/internal/httpx"
	"github.com/MikeMC777/bikerhub/internal/order"
)

type cartService interface {
	Get(ctx context.Context, userID string) (cart.Cart, error)
	Add(ctx context.Context, userID string, req cart.AddRequest) (cart.Cart, error)
	Update(ctx context.Context, userID, productID string, qty int) (cart.Cart, error)
	Remove(ctx context.Context, userID, productID string) (cart.Cart, error)
	Clear(ctx context.Context, userID string) error
	Checkout(ctx context.Context, p *auth.Principal, req cart.CheckoutRequest, idemKey string) (*order.Order, error)
	ToggleWishlist(ctx context.Context, userID, productID string) (bool, error)
	Wishlist(ctx context.Context, userID string) ([]string, error)
}

func getCartHandler(svc cartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, err := svc.Get(c.Request.Context(), httpx.CurrentPrincipal(c).UserID)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "", ct)
	}
}

func addToCartHandler(svc cartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in cart.AddRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		ct, err := svc.Add(c.Request.Context(), httpx.CurrentPrincipal(c).UserID, in)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "Added to cart", ct)
	}
}

func updateCartHandler(svc cartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in cart.UpdateRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		ct, err := svc.Update(c.Request.Context(), httpx.CurrentPrincipal(c).UserID, c.Param("productId"), in.Quantity)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "Cart updated", ct)
	}
}

func removeFromCartHandler(svc cartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, err := svc.Remove(c.Request.Context(), httpx.CurrentPrincipal(c).UserID, c.Param("productId"))
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "Removed from cart", ct)
	}
}

func clearCartHandler(svc cartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Clear(c.Request.Context(), httpx.CurrentPrincipal(c).UserID); err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "Cart cleared", nil)
	}
}

func checkoutHandler(svc cartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in cart.CheckoutRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		o, err := svc.Checkout(c.Request.Context(), httpx.CurrentPrincipal(c), in, c.GetHeader(idempotencyHeader))
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.Created(c, "Order created successfully", o)
	}
}

func wishlistHandler(svc cartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := svc.Wishlist(c.Request.Context(), httpx.CurrentPrincipal(c).UserID)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "", ids)
	}
}

func toggleWishlistHandler(svc cartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		productID := c.Param("productId")
		in, err := svc.ToggleWishlist(c.Request.Context(), httpx.CurrentPrincipal(c).UserID, productID)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		msg := "Removed from wishlist"
		if in {
			msg = "Added to wishlist"
		}
		httpx.OK(c, msg, gin.H{"productId": productID, "inWishlist": in})
	}
}
