package dto

import "github.com/shopspring/decimal"

// RegisterMerchantRequest is the request body for merchant registration.
// The merchant id is taken from the bearer token, never the body.
type RegisterMerchantRequest struct {
	BusinessName string  `json:"business_name" binding:"required,min=1,max=100"`
	WebhookURL   *string `json:"webhook_url,omitempty" binding:"omitempty,safe_url"`
}

// UpdateWebhookRequest sets or clears the webhook endpoint.
type UpdateWebhookRequest struct {
	WebhookURL *string `json:"webhook_url" binding:"omitempty,safe_url"`
}

// SetCurrencyRequest changes the merchant's preferred fiat currency.
type SetCurrencyRequest struct {
	Currency string `json:"currency" binding:"required,currency_code"`
}

// CreateInvoiceRequest is the request body for invoice creation.
// Amount bounds are enforced by the invoice service.
type CreateInvoiceRequest struct {
	FiatAmount  decimal.Decimal `json:"fiat_amount"`
	Currency    string          `json:"currency" binding:"required,currency_code"`
	Description *string         `json:"description,omitempty" binding:"omitempty,max=500"`
}

// CreateCashoutRequest is the request body for a cashout.
type CreateCashoutRequest struct {
	Amount         int64   `json:"amount" binding:"required,gt=0"`
	TargetCurrency string  `json:"target_currency" binding:"required,currency_code"`
	BankDetails    *string `json:"bank_details,omitempty" binding:"omitempty,max=500"`
}

// ReconcileResponse reports the invoice status after a reconcile, mark-paid or fail.
type ReconcileResponse struct {
	InvoiceID string `json:"invoice_id"`
	Status    string `json:"status"`
}

// RatesResponse lists the whole-coin price per supported currency.
type RatesResponse struct {
	Rates map[string]string `json:"rates"`
}

// InvoiceURI binds the :id path parameter.
type InvoiceURI struct {
	ID string `uri:"id" binding:"required,safe_id,max=32"`
}
