package handler

import (
	"strconv"

	"crypto-invoice-gateway/internal/adapter/http/dto"
	"crypto-invoice-gateway/internal/adapter/http/middleware"
	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"
	"crypto-invoice-gateway/pkg/apperror"
	"crypto-invoice-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// InvoiceHandler handles invoice lifecycle endpoints.
type InvoiceHandler struct {
	invoiceSvc ports.InvoiceService
	reconciler ports.PaymentReconciler
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(invoiceSvc ports.InvoiceService, reconciler ports.PaymentReconciler) *InvoiceHandler {
	return &InvoiceHandler{invoiceSvc: invoiceSvc, reconciler: reconciler}
}

// Create handles POST /api/v1/invoices.
func (h *InvoiceHandler) Create(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	inv, err := h.invoiceSvc.CreateInvoice(c.Request.Context(), ports.CreateInvoiceRequest{
		MerchantID:  merchantID,
		FiatAmount:  req.FiatAmount,
		Currency:    domain.ParseCurrency(req.Currency),
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, inv)
}

// List handles GET /api/v1/invoices.
func (h *InvoiceHandler) List(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	list, err := h.invoiceSvc.ListInvoices(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, list)
}

// Get handles GET /api/v1/invoices/:id.
func (h *InvoiceHandler) Get(c *gin.Context) {
	merchantID, invoiceID, ok := bindInvoiceRequest(c)
	if !ok {
		return
	}

	inv, err := h.invoiceSvc.GetInvoice(c.Request.Context(), merchantID, invoiceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, inv)
}

// QRCode handles GET /api/v1/invoices/:id/qr?size=N and returns a PNG.
func (h *InvoiceHandler) QRCode(c *gin.Context) {
	merchantID, invoiceID, ok := bindInvoiceRequest(c)
	if !ok {
		return
	}

	size := 0
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Error(c, apperror.Validation("size must be a non-negative integer"))
			return
		}
		size = n
	}

	png, err := h.invoiceSvc.QRCode(c.Request.Context(), merchantID, invoiceID, size)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.PNG(c, png)
}

// Reconcile handles POST /api/v1/invoices/:id/reconcile. Only the owner may
// trigger an on-demand check; the poller covers everything else.
func (h *InvoiceHandler) Reconcile(c *gin.Context) {
	merchantID, invoiceID, ok := bindInvoiceRequest(c)
	if !ok {
		return
	}

	if _, err := h.invoiceSvc.GetInvoice(c.Request.Context(), merchantID, invoiceID); err != nil {
		response.Error(c, err)
		return
	}

	status, err := h.reconciler.Reconcile(c.Request.Context(), invoiceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ReconcileResponse{InvoiceID: invoiceID, Status: string(status)})
}

// MarkPaid handles POST /api/v1/invoices/:id/mark-paid.
func (h *InvoiceHandler) MarkPaid(c *gin.Context) {
	merchantID, invoiceID, ok := bindInvoiceRequest(c)
	if !ok {
		return
	}

	status, err := h.reconciler.MarkPaid(c.Request.Context(), merchantID, invoiceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ReconcileResponse{InvoiceID: invoiceID, Status: string(status)})
}

// Fail handles POST /api/v1/invoices/:id/fail.
func (h *InvoiceHandler) Fail(c *gin.Context) {
	merchantID, invoiceID, ok := bindInvoiceRequest(c)
	if !ok {
		return
	}

	status, err := h.reconciler.Fail(c.Request.Context(), merchantID, invoiceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ReconcileResponse{InvoiceID: invoiceID, Status: string(status)})
}

// PaymentInfo handles GET /api/v1/pay/:id for any authenticated caller.
func (h *InvoiceHandler) PaymentInfo(c *gin.Context) {
	var uri dto.InvoiceURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	info, err := h.invoiceSvc.PaymentInfo(c.Request.Context(), uri.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, info)
}

// bindInvoiceRequest extracts the caller and the :id parameter, writing the
// error response itself when either is missing or malformed.
func bindInvoiceRequest(c *gin.Context) (merchantID, invoiceID string, ok bool) {
	merchantID, ok = middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return "", "", false
	}

	var uri dto.InvoiceURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return "", "", false
	}
	return merchantID, uri.ID, true
}
