package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
)

// webhookMaxBodyBytes はStripeが推奨するWebhookペイロードの上限。
const webhookMaxBodyBytes = 65536

// BillingServiceInterface はWebhookハンドラーが必要とするサービスインターフェース。
type BillingServiceInterface interface {
	ProcessWebhook(ctx context.Context, payload []byte, sigHeader string) error
}

// BillingHandler はStripe WebhookのHTTPハンドラー。
type BillingHandler struct {
	service BillingServiceInterface
}

// NewBillingHandler はBillingHandlerを生成する。
func NewBillingHandler(service BillingServiceInterface) *BillingHandler {
	return &BillingHandler{service: service}
}

// Webhook はStripeからのイベント通知を受け取る。
// 署名検証の失敗は400で応答し、Stripe側のリトライに委ねる。
// POST /webhooks/billing
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, webhookMaxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if err := h.service.ProcessWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		slog.Warn("webhookの処理に失敗しました",
			slog.String("error", err.Error()),
		)
		http.Error(w, "webhook processing failed", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}
