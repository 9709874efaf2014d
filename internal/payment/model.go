package payment

import "time"

type Payment struct {
	ID            uint
	OrderID       uint
	OrderCode     int64
	PaymentLinkID string
	CheckoutURL   string
	Amount        int64
	Status        string
	Provider      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const (
	StatusPending   = "PENDING"
	StatusPaid      = "PAID"
	StatusCancelled = "CANCELLED"
)

// SessionRequest is what the reconciler hands the gateway when it needs a
// hosted payment page. ReturnURL/CancelURL fall back to the gateway defaults
// when left empty.
type SessionRequest struct {
	OrderCode   int64
	Amount      int64
	Description string
	ReturnURL   string
	CancelURL   string
}

type SessionResponse struct {
	CheckoutURL   string
	PaymentLinkID string
	Status        string
	QRCode        string
}

// WebhookPayload is the gateway callback envelope. Code "00" means the
// payment succeeded.
type WebhookPayload struct {
	Code      string      `json:"code"`
	Desc      string      `json:"desc"`
	Success   bool        `json:"success"`
	Data      WebhookData `json:"data"`
	Signature string      `json:"signature"`
}

type WebhookData struct {
	OrderCode           int64  `json:"orderCode"`
	Amount              int64  `json:"amount"`
	Description         string `json:"description"`
	Reference           string `json:"reference"`
	TransactionDateTime string `json:"transactionDateTime"`
	PaymentLinkID       string `json:"paymentLinkId"`
	Currency            string `json:"currency"`
	Code                string `json:"code"`
	Desc                string `json:"desc"`
}

const CodeSuccess = "00"
