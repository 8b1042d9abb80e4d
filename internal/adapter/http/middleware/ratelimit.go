package middleware

import (
	"fmt"
	"strconv"
	"time"

	redisStore "crypto-invoice-gateway/internal/adapter/storage/redis"
	"crypto-invoice-gateway/pkg/apperror"
	"crypto-invoice-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// Endpoint groups sharing a counter.
const (
	GroupRegister = "merchants_register"
	GroupInvoices = "invoices_create"
	GroupOperator = "invoices_operator"
	GroupCashouts = "cashouts_create"
	GroupRead     = "read"
	GroupPublic   = "public"
)

// DefaultRateLimitRules returns the rate limits per endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		GroupRegister: {Limit: 5, Window: time.Hour},
		GroupInvoices: {Limit: 60, Window: time.Minute},
		GroupOperator: {Limit: 30, Window: time.Minute},
		GroupCashouts: {Limit: 10, Window: time.Minute},
		GroupRead:     {Limit: 120, Window: time.Minute},
		GroupPublic:   {Limit: 60, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Store errors let the request through.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys authenticated callers by subject, others by IP.
func extractIdentifier(c *gin.Context) string {
	if mid, ok := MerchantID(c); ok {
		return "sub:" + mid
	}
	return "ip:" + c.ClientIP()
}
