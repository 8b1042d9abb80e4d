package domain

// Confirmation is what the chain reports for an address at one instant.
type Confirmation struct {
	Balance       int64 `json:"balance"`       // satoshi received
	Confirmations int   `json:"confirmations"` // depth of the shallowest funding output
}

// TargetStatus derives the status the evidence justifies for amount.
// ok is false when the evidence justifies no movement.
func (c Confirmation) TargetStatus(amount int64, minConfirmations int) (InvoiceStatus, bool) {
	if c.Balance < amount {
		return "", false
	}
	if c.Confirmations >= minConfirmations {
		return InvoiceStatusCompleted, true
	}
	return InvoiceStatusConfirmed, true
}
