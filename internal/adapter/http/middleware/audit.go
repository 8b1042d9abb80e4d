package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog records operator requests against invoices after the handler has
// run. Unlike the transition entries written by the reconciler, these are
// kept for rejected requests too, along with the caller's IP.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodPost {
			return
		}
		action := mapRouteToAction(c.FullPath())
		if action == "" {
			return
		}

		var actor *string
		if mid, ok := MerchantID(c); ok {
			actor = &mid
		}

		details, _ := json.Marshal(map[string]any{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"request_id": c.GetString(CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			ActorID:      actor,
			Action:       action,
			ResourceType: "invoice",
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

func mapRouteToAction(route string) domain.AuditAction {
	switch route {
	case "/api/v1/invoices/:id/reconcile":
		return domain.AuditActionRequestReconcile
	case "/api/v1/invoices/:id/mark-paid":
		return domain.AuditActionRequestMarkPaid
	case "/api/v1/invoices/:id/fail":
		return domain.AuditActionRequestFail
	}
	return ""
}
