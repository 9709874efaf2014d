package payment

import "context"

type Gateway interface {
	CreatePaymentSession(ctx context.Context, req SessionRequest) (*SessionResponse, error)
	VerifyWebhookSignature(payload *WebhookPayload) error
}
