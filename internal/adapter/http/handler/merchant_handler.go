package handler

import (
	"crypto-invoice-gateway/internal/adapter/http/dto"
	"crypto-invoice-gateway/internal/adapter/http/middleware"
	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"
	"crypto-invoice-gateway/pkg/apperror"
	"crypto-invoice-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// MerchantHandler handles merchant registration and self-service endpoints.
type MerchantHandler struct {
	merchantSvc  ports.MerchantService
	reportingSvc ports.ReportingService
}

// NewMerchantHandler creates a new merchant handler.
func NewMerchantHandler(merchantSvc ports.MerchantService, reportingSvc ports.ReportingService) *MerchantHandler {
	return &MerchantHandler{merchantSvc: merchantSvc, reportingSvc: reportingSvc}
}

// Register handles POST /api/v1/merchants. The merchant id is the token subject.
func (h *MerchantHandler) Register(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.RegisterMerchantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.merchantSvc.Register(c.Request.Context(), ports.RegisterMerchantRequest{
		MerchantID:   merchantID,
		BusinessName: req.BusinessName,
		WebhookURL:   req.WebhookURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// GetProfile returns the authenticated merchant's profile.
func (h *MerchantHandler) GetProfile(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	profile, err := h.merchantSvc.GetProfile(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, profile)
}

// UpdateWebhookURL sets or clears the merchant's webhook URL.
func (h *MerchantHandler) UpdateWebhookURL(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if req.WebhookURL != nil && *req.WebhookURL == "" {
		req.WebhookURL = nil
	}

	profile, err := h.merchantSvc.UpdateWebhookURL(c.Request.Context(), merchantID, req.WebhookURL)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, profile)
}

// SetPreferredCurrency handles PUT /api/v1/merchants/me/currency.
func (h *MerchantHandler) SetPreferredCurrency(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.SetCurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	acct, err := h.merchantSvc.SetPreferredCurrency(c.Request.Context(), merchantID, domain.ParseCurrency(req.Currency))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, acct)
}

// GetBalance handles GET /api/v1/merchants/me/balance.
func (h *MerchantHandler) GetBalance(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	acct, err := h.reportingSvc.GetBalance(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, acct)
}

// GetDashboard handles GET /api/v1/merchants/me/dashboard.
func (h *MerchantHandler) GetDashboard(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	stats, err := h.reportingSvc.GetDashboard(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, stats)
}
