package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"pawmart-be/internal/logger"
	"pawmart-be/internal/order"
	"pawmart-be/internal/payment"

	"go.uber.org/zap"
)

const provider = "PAYOS"

// Handler receives the gateway's payment notifications.
type Handler struct {
	OrderSvc    order.Service
	Gateway     payment.Gateway
	PaymentRepo payment.Repository
}

func NewWebhookHandler(orderSvc order.Service, gateway payment.Gateway, payRepo payment.Repository) *Handler {
	return &Handler{
		OrderSvc:    orderSvc,
		Gateway:     gateway,
		PaymentRepo: payRepo,
	}
}

func (h *Handler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("handler", "payos_webhook"))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var payload payment.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("invalid webhook payload", zap.Error(err))
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	log = log.With(
		zap.Int64("order_code", payload.Data.OrderCode),
		zap.String("code", payload.Code),
	)

	if err := h.Gateway.VerifyWebhookSignature(&payload); err != nil {
		log.Warn("webhook signature rejected", zap.Error(err))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	eventID := payload.Data.Reference
	if eventID == "" {
		eventID = fmt.Sprintf("%d:%s", payload.Data.OrderCode, payload.Code)
	}

	webhookID, alreadyProcessed, err := h.PaymentRepo.SaveWebhookEvent(
		ctx, provider, eventID, payload.Data.OrderCode, json.RawMessage(body), true,
	)
	if err != nil {
		log.Error("failed to record webhook event", zap.Error(err))
		http.Error(w, "failed to record webhook", http.StatusInternalServerError)
		return
	}
	if alreadyProcessed {
		// Redelivery of an event that already went through. A redelivery
		// whose first attempt FAILED falls through and runs settlement again;
		// the paid gate keeps that from double-applying.
		log.Info("processed webhook event acknowledged")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
		return
	}

	if err := h.OrderSvc.SettlePayment(ctx, &payload); err != nil {
		if mErr := h.PaymentRepo.MarkWebhookFailed(ctx, webhookID, err.Error()); mErr != nil {
			log.Error("failed to mark webhook failed", zap.Error(mErr))
		}

		if errors.Is(err, order.ErrOrderNotFound) {
			log.Warn("webhook for unknown order", zap.Error(err))
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}

		// Non-2xx so the gateway retries; the replay gate makes the retry
		// safe.
		log.Error("settlement failed", zap.Error(err))
		http.Error(w, "failed to settle payment", http.StatusInternalServerError)
		return
	}

	if err := h.PaymentRepo.MarkWebhookProcessed(ctx, webhookID); err != nil {
		log.Error("failed to mark webhook processed", zap.Error(err))
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}
