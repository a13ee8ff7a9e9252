package main

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/bikerhub/internal/analytics"
	"github.com/MikeMC777/bikerhub/internal/httpx"
)

type analyticsService interface {
	Overview(ctx context.Context) (analytics.Overview, error)
	Sales(ctx context.Context) (analytics.Sales, error)
}

func analyticsOverviewHandler(svc analyticsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.Overview(c.Request.Context())
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "", o)
	}
}

func salesAnalyticsHandler(svc analyticsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := svc.Sales(c.Request.Context())
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "", s)
	}
}
