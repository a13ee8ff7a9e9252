package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/bikerhub/internal/health"
)

type healthChecker interface {
	Check(ctx context.Context) health.Report
}

type healthResponse struct {
	Status      string            `json:"status"`
	Message     string            `json:"message"`
	Timestamp   string            `json:"timestamp"`
	Environment string            `json:"environment"`
	Uptime      float64           `json:"uptime"`
	Checks      map[string]string `json:"checks"`
}

func healthHandler(checker healthChecker, env string) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := checker.Check(c.Request.Context())
		resp := healthResponse{
			Status:      "success",
			Message:     "BikerHUB API is running",
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Environment: env,
			Uptime:      r.Uptime.Seconds(),
			Checks:      r.Checks,
		}
		code := http.StatusOK
		if !r.Healthy {
			resp.Status = "error"
			resp.Message = "BikerHUB API is degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	}
}
