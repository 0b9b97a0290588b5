package domain

// TransactionStatus is the lifecycle state of a checkout attempt
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"   // Ready succeeded, waiting for the gateway redirect
	StatusApproved  TransactionStatus = "approved"  // Approve succeeded
	StatusFailed    TransactionStatus = "failed"    // Approve rejected, timed out, or identifiers missing
	StatusCancelled TransactionStatus = "cancelled" // User cancelled on the gateway page
)

// Terminal reports whether no further transition is possible
func (s TransactionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusFailed || s == StatusCancelled
}

// OrderDetails is the cart snapshot frozen at ready time
type OrderDetails struct {
	Items       []CartItem `json:"cartItems"`   // Snapshot of the cart lines
	TotalAmount int64      `json:"totalAmount"` // Total in minor units
}

// Transaction is one checkout attempt against the payment gateway
type Transaction struct {
	PartnerOrderID       string            `json:"partner_order_id"` // Caller generated, unique per attempt
	GatewayTransactionID string            `json:"tid"`              // Issued by the gateway on ready
	Status               TransactionStatus `json:"status"`           // Lifecycle state
	OrderDetails         OrderDetails      `json:"orderDetails"`     // Frozen cart
}

// Receipt is what the customer sees after an approved payment
type Receipt struct {
	Number         string       `json:"receiptNumber"`    // Short cosmetic number
	PartnerOrderID string       `json:"partner_order_id"` // Reconciliation id
	OrderDetails   OrderDetails `json:"orderDetails"`     // What was paid for
	ApprovedAt     int64        `json:"approvedAt"`       // Unix millis
}
