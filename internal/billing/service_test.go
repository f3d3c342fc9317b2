package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/hitoshi/teamgate/internal/model"
)

// --- モック ---

type mockAccountRepo struct {
	linkFn   func(ctx context.Context, accountID, customerID string) (bool, error)
	updateFn func(ctx context.Context, customerID string, subscriptionID, productID, planName, status *string) (bool, error)
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return nil, nil
}
func (m *mockAccountRepo) FindByUserID(ctx context.Context, userID string) (*model.Account, error) {
	return nil, nil
}
func (m *mockAccountRepo) LinkStripeCustomer(ctx context.Context, accountID, customerID string) (bool, error) {
	if m.linkFn != nil {
		return m.linkFn(ctx, accountID, customerID)
	}
	return true, nil
}
func (m *mockAccountRepo) UpdateSubscriptionByCustomerID(ctx context.Context, customerID string, subscriptionID, productID, planName, status *string) (bool, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, customerID, subscriptionID, productID, planName, status)
	}
	return true, nil
}

func newEvent(t *testing.T, eventType stripe.EventType, object any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("failed to marshal event object: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_test",
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

// Stripe-Signatureヘッダを実際の署名方式（t=...,v1=HMAC-SHA256）で生成する。
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// --- テスト ---

func TestHandleEvent_CheckoutCompleted_LinksCustomer(t *testing.T) {
	var linkedAccount, linkedCustomer string
	repo := &mockAccountRepo{
		linkFn: func(ctx context.Context, accountID, customerID string) (bool, error) {
			linkedAccount = accountID
			linkedCustomer = customerID
			return true, nil
		},
	}
	svc := NewService(repo, "whsec_test")

	event := newEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"client_reference_id": "acct-1",
		"customer":            map[string]any{"id": "cus_123"},
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if linkedAccount != "acct-1" || linkedCustomer != "cus_123" {
		t.Errorf("linked (%q, %q), want (acct-1, cus_123)", linkedAccount, linkedCustomer)
	}
}

func TestHandleEvent_CheckoutCompleted_MissingReference_Ignored(t *testing.T) {
	repo := &mockAccountRepo{
		linkFn: func(ctx context.Context, accountID, customerID string) (bool, error) {
			t.Error("link should not be called without client_reference_id")
			return true, nil
		},
	}
	svc := NewService(repo, "whsec_test")

	event := newEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"customer": map[string]any{"id": "cus_123"},
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent should tolerate missing fields: %v", err)
	}
}

func TestHandleEvent_SubscriptionUpdated_AppliesColumns(t *testing.T) {
	var gotCustomer string
	var gotSub, gotProduct, gotPlan, gotStatus *string
	repo := &mockAccountRepo{
		updateFn: func(ctx context.Context, customerID string, subscriptionID, productID, planName, status *string) (bool, error) {
			gotCustomer = customerID
			gotSub, gotProduct, gotPlan, gotStatus = subscriptionID, productID, planName, status
			return true, nil
		},
	}
	svc := NewService(repo, "whsec_test")

	event := newEvent(t, stripe.EventTypeCustomerSubscriptionUpdated, map[string]any{
		"id":       "sub_456",
		"customer": map[string]any{"id": "cus_123"},
		"status":   "active",
		"items": map[string]any{
			"data": []any{
				map[string]any{
					"price": map[string]any{
						"id":       "price_1",
						"nickname": "Pro",
						"product":  map[string]any{"id": "prod_9"},
					},
				},
			},
		},
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if gotCustomer != "cus_123" {
		t.Errorf("customer = %q, want cus_123", gotCustomer)
	}
	if gotSub == nil || *gotSub != "sub_456" {
		t.Errorf("subscription ID = %v, want sub_456", gotSub)
	}
	if gotProduct == nil || *gotProduct != "prod_9" {
		t.Errorf("product ID = %v, want prod_9", gotProduct)
	}
	if gotPlan == nil || *gotPlan != "Pro" {
		t.Errorf("plan name = %v, want Pro", gotPlan)
	}
	if gotStatus == nil || *gotStatus != "active" {
		t.Errorf("status = %v, want active", gotStatus)
	}
}

func TestHandleEvent_SubscriptionDeleted_ClearsColumns(t *testing.T) {
	var gotSub, gotProduct, gotPlan, gotStatus *string
	repo := &mockAccountRepo{
		updateFn: func(ctx context.Context, customerID string, subscriptionID, productID, planName, status *string) (bool, error) {
			gotSub, gotProduct, gotPlan, gotStatus = subscriptionID, productID, planName, status
			return true, nil
		},
	}
	svc := NewService(repo, "whsec_test")

	event := newEvent(t, stripe.EventTypeCustomerSubscriptionDeleted, map[string]any{
		"id":       "sub_456",
		"customer": map[string]any{"id": "cus_123"},
		"status":   "canceled",
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if gotSub != nil || gotProduct != nil || gotPlan != nil {
		t.Error("subscription columns should be cleared on deletion")
	}
	if gotStatus == nil || *gotStatus != "canceled" {
		t.Errorf("status = %v, want canceled", gotStatus)
	}
}

// 未知のStripe顧客宛イベントはエラーにせず警告して受理すること
// （Stripe側の再送ループを避けるため200相当で応答する）
func TestHandleEvent_UnknownCustomer_AcceptedWithoutUpdate(t *testing.T) {
	updateCalled := false
	repo := &mockAccountRepo{
		updateFn: func(ctx context.Context, customerID string, subscriptionID, productID, planName, status *string) (bool, error) {
			updateCalled = true
			return false, nil
		},
	}
	svc := NewService(repo, "whsec_test")

	event := newEvent(t, stripe.EventTypeCustomerSubscriptionUpdated, map[string]any{
		"id":       "sub_456",
		"customer": map[string]any{"id": "cus_unknown"},
		"status":   "active",
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown customers should not fail the webhook: %v", err)
	}
	if !updateCalled {
		t.Error("update should have been attempted")
	}
}

// client_reference_idが既存アカウントに一致しないcheckoutも同様に受理すること
func TestHandleEvent_CheckoutCompleted_UnknownAccount_Accepted(t *testing.T) {
	repo := &mockAccountRepo{
		linkFn: func(ctx context.Context, accountID, customerID string) (bool, error) {
			return false, nil
		},
	}
	svc := NewService(repo, "whsec_test")

	event := newEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"client_reference_id": "acct-missing",
		"customer":            map[string]any{"id": "cus_123"},
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown accounts should not fail the webhook: %v", err)
	}
}

func TestHandleEvent_UnknownType_Ignored(t *testing.T) {
	repo := &mockAccountRepo{
		linkFn: func(ctx context.Context, accountID, customerID string) (bool, error) {
			t.Error("unknown events must not touch the repository")
			return true, nil
		},
		updateFn: func(ctx context.Context, customerID string, subscriptionID, productID, planName, status *string) (bool, error) {
			t.Error("unknown events must not touch the repository")
			return true, nil
		},
	}
	svc := NewService(repo, "whsec_test")

	event := newEvent(t, stripe.EventType("invoice.paid"), map[string]any{})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown event types should be ignored: %v", err)
	}
}

func TestProcessWebhook_ValidSignature(t *testing.T) {
	var linked bool
	repo := &mockAccountRepo{
		linkFn: func(ctx context.Context, accountID, customerID string) (bool, error) {
			linked = true
			return true, nil
		},
	}
	secret := "whsec_test"
	svc := NewService(repo, secret)

	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"api_version": "2025-03-31.basil",
		"data": {"object": {"client_reference_id": "acct-1", "customer": {"id": "cus_123"}}}
	}`)
	if err := svc.ProcessWebhook(context.Background(), payload, signPayload(payload, secret)); err != nil {
		t.Fatalf("ProcessWebhook failed: %v", err)
	}
	if !linked {
		t.Error("valid webhook should reach the repository")
	}
}

func TestProcessWebhook_InvalidSignature_Rejected(t *testing.T) {
	repo := &mockAccountRepo{
		linkFn: func(ctx context.Context, accountID, customerID string) (bool, error) {
			t.Error("unverified payloads must never reach the repository")
			return true, nil
		},
	}
	svc := NewService(repo, "whsec_test")

	payload := []byte(`{"id": "evt_1", "type": "checkout.session.completed", "data": {"object": {}}}`)
	if err := svc.ProcessWebhook(context.Background(), payload, signPayload(payload, "whsec_wrong")); err == nil {
		t.Error("wrong signing secret should be rejected")
	}
	if err := svc.ProcessWebhook(context.Background(), payload, "garbage"); err == nil {
		t.Error("malformed signature header should be rejected")
	}
}
