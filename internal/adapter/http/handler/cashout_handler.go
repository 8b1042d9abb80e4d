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

// HeaderIdempotencyKey carries the client's retry key for cashouts.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

// CashoutHandler handles cashout endpoints.
type CashoutHandler struct {
	cashoutSvc ports.CashoutService
}

// NewCashoutHandler creates a new CashoutHandler.
func NewCashoutHandler(cashoutSvc ports.CashoutService) *CashoutHandler {
	return &CashoutHandler{cashoutSvc: cashoutSvc}
}

// Create handles POST /api/v1/cashouts.
func (h *CashoutHandler) Create(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	idemKey := c.GetHeader(HeaderIdempotencyKey)
	if len(idemKey) > maxIdempotencyKeyLen {
		response.Error(c, apperror.Validation("Idempotency-Key is too long"))
		return
	}

	var req dto.CreateCashoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.cashoutSvc.CreateCashout(c.Request.Context(), ports.CashoutCreateRequest{
		MerchantID:     merchantID,
		Amount:         req.Amount,
		TargetCurrency: domain.ParseCurrency(req.TargetCurrency),
		BankDetails:    req.BankDetails,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// List handles GET /api/v1/cashouts.
func (h *CashoutHandler) List(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	list, err := h.cashoutSvc.ListForMerchant(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, list)
}
