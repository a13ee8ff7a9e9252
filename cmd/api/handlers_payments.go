package main

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/httpx"
	"github.com/MikeMC777/bikerhub/internal/payment"
)

type paymentService interface {
	Process(ctx context.Context, p *auth.Principal, req payment.ProcessRequest) (*payment.Payment, error)
	Get(ctx context.Context, p *auth.Principal, id string) (*payment.Payment, error)
}

func processPaymentHandler(svc paymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in payment.ProcessRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		pay, err := svc.Process(c.Request.Context(), httpx.CurrentPrincipal(c), in)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "Payment processed successfully", pay)
	}
}

func paymentStatusHandler(svc paymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		pay, err := svc.Get(c.Request.Context(), httpx.CurrentPrincipal(c), c.Param("id"))
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "", pay)
	}
}
