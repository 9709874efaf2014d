package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

type Repository interface {
	SavePayment(ctx context.Context, p *Payment) error
	UpdateStatusByOrderCode(ctx context.Context, orderCode int64, status string) error
	GetPaymentByOrder(ctx context.Context, orderID uint) (*Payment, error)

	// SaveWebhookEvent records an inbound gateway callback. Redelivery with
	// the same (provider, event_id) returns the existing row instead of
	// creating one; alreadyProcessed reports whether a prior attempt
	// completed, so a retry of a failed delivery runs settlement again while
	// a completed one is only acknowledged.
	SaveWebhookEvent(
		ctx context.Context,
		provider string,
		eventID string,
		orderCode int64,
		payload json.RawMessage,
		signatureValid bool,
	) (webhookID int64, alreadyProcessed bool, err error)

	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SavePayment(ctx context.Context, p *Payment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (
			order_id,
			order_code,
			payment_link_id,
			checkout_url,
			amount,
			status,
			provider,
			currency
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		p.OrderID, p.OrderCode, p.PaymentLinkID, p.CheckoutURL, p.Amount, p.Status,
		"PAYOS", "VND",
	)
	return err
}

func (r *repository) UpdateStatusByOrderCode(ctx context.Context, orderCode int64, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = NOW() WHERE order_code = $2
	`, status, orderCode)
	return err
}

func (r *repository) GetPaymentByOrder(ctx context.Context, orderID uint) (*Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, order_code, payment_link_id, checkout_url, amount, status, created_at, updated_at
		FROM payments WHERE order_id = $1
	`, orderID)

	var p Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.OrderCode, &p.PaymentLinkID, &p.CheckoutURL,
		&p.Amount, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) SaveWebhookEvent(
	ctx context.Context,
	provider string,
	eventID string,
	orderCode int64,
	payload json.RawMessage,
	signatureValid bool,
) (int64, bool, error) {

	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_id,
		order_code,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (provider, event_id)
	DO NOTHING
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		q,
		provider,
		eventID,
		orderCode,
		signatureValid,
		payload,
	).Scan(&id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Conflict: the event was delivered before. Hand back the
			// existing row and whether it ever finished processing — a
			// delivery that failed mid-settlement must be retryable.
			var existingID int64
			var processed bool
			chkErr := r.db.QueryRowContext(ctx, `
				SELECT id, processed_at IS NOT NULL
				FROM payment_webhooks
				WHERE provider = $1 AND event_id = $2
			`, provider, eventID).Scan(&existingID, &processed)
			if chkErr != nil {
				return 0, false, chkErr
			}
			return existingID, processed, nil
		}
		return 0, false, err
	}

	return id, false, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	const q = `
	UPDATE payment_webhooks
	SET processed_at = now()
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	const q = `
	UPDATE payment_webhooks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID, reason)
	return err
}
