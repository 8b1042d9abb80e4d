package handler

import (
	"net/http"

	"crypto-invoice-gateway/internal/adapter/http/dto"
	"crypto-invoice-gateway/internal/core/ports"
	"crypto-invoice-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// HealthCheck pings every dependency and reports 503 if any is down.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}

// Rates serves the conversion table, one whole coin per currency.
func Rates(oracle ports.ConversionOracle) gin.HandlerFunc {
	return func(c *gin.Context) {
		table := oracle.Rates()
		out := dto.RatesResponse{Rates: make(map[string]string, len(table))}
		for cur, rate := range table {
			out.Rates[string(cur)] = rate.String()
		}
		response.OK(c, out)
	}
}
