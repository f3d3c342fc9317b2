// Package billing はStripe Webhookの検証とアカウントへの反映を提供する。
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/hitoshi/teamgate/internal/repository"
)

// Service はStripe Webhookイベントのサービス層。
// 署名検証済みのイベントをアカウントのサブスクリプションカラムに反映する。
type Service struct {
	accountRepo   repository.AccountRepository
	webhookSecret string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accountRepo repository.AccountRepository, webhookSecret string) *Service {
	return &Service{
		accountRepo:   accountRepo,
		webhookSecret: webhookSecret,
	}
}

// ProcessWebhook はWebhookペイロードの署名を検証し、イベントを反映する。
// 署名不正はエラーを返す（ハンドラ側で400を返すこと）。
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		return fmt.Errorf("webhook署名の検証に失敗しました: %w", err)
	}
	return s.HandleEvent(ctx, &event)
}

// HandleEvent は検証済みイベントを種別ごとに処理する。
// 関知しないイベント種別は無視して正常終了する。
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		return s.handleSubscriptionChanged(ctx, event)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	default:
		slog.Debug("未対応のwebhookイベントを無視します",
			slog.String("event_type", string(event.Type)),
		)
		return nil
	}
}

// handleCheckoutCompleted はclient_reference_idで指定されたアカウントに
// Stripe顧客IDを紐付ける。
func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("checkout.sessionのパースに失敗しました: %w", err)
	}
	if session.ClientReferenceID == "" || session.Customer == nil {
		slog.Warn("checkout.session.completedに必要なフィールドがありません",
			slog.String("event_id", event.ID),
		)
		return nil
	}

	matched, err := s.accountRepo.LinkStripeCustomer(ctx, session.ClientReferenceID, session.Customer.ID)
	if err != nil {
		return fmt.Errorf("Stripe顧客の紐付けに失敗しました: %w", err)
	}
	if !matched {
		slog.Warn("client_reference_idに一致するアカウントがありません",
			slog.String("event_id", event.ID),
			slog.String("account_id", session.ClientReferenceID),
		)
		return nil
	}

	slog.Info("Stripe顧客を紐付けました",
		slog.String("account_id", session.ClientReferenceID),
		slog.String("stripe_customer_id", session.Customer.ID),
	)
	return nil
}

// handleSubscriptionChanged はサブスクリプションの作成・更新を
// アカウントのカラムに丸ごと反映する。
func (s *Service) handleSubscriptionChanged(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("subscriptionのパースに失敗しました: %w", err)
	}
	if sub.Customer == nil {
		slog.Warn("subscriptionイベントに顧客がありません",
			slog.String("event_id", event.ID),
		)
		return nil
	}

	subscriptionID := sub.ID
	status := string(sub.Status)
	var productID, planName *string
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		if price.Product != nil {
			pid := price.Product.ID
			productID = &pid
		}
		if price.Nickname != "" {
			name := price.Nickname
			planName = &name
		}
	}

	matched, err := s.accountRepo.UpdateSubscriptionByCustomerID(ctx, sub.Customer.ID, &subscriptionID, productID, planName, &status)
	if err != nil {
		return fmt.Errorf("サブスクリプションの更新に失敗しました: %w", err)
	}
	if !matched {
		slog.Warn("stripe_customer_idに一致するアカウントがありません",
			slog.String("event_id", event.ID),
			slog.String("stripe_customer_id", sub.Customer.ID),
		)
		return nil
	}

	slog.Info("サブスクリプションを反映しました",
		slog.String("stripe_customer_id", sub.Customer.ID),
		slog.String("subscription_id", subscriptionID),
		slog.String("status", status),
	)
	return nil
}

// handleSubscriptionDeleted はサブスクリプション関連カラムをクリアし、
// statusのみcanceledとして残す。
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("subscriptionのパースに失敗しました: %w", err)
	}
	if sub.Customer == nil {
		return nil
	}

	status := string(stripe.SubscriptionStatusCanceled)
	matched, err := s.accountRepo.UpdateSubscriptionByCustomerID(ctx, sub.Customer.ID, nil, nil, nil, &status)
	if err != nil {
		return fmt.Errorf("サブスクリプションの解約反映に失敗しました: %w", err)
	}
	if !matched {
		slog.Warn("stripe_customer_idに一致するアカウントがありません",
			slog.String("event_id", event.ID),
			slog.String("stripe_customer_id", sub.Customer.ID),
		)
		return nil
	}

	slog.Info("サブスクリプションの解約を反映しました",
		slog.String("stripe_customer_id", sub.Customer.ID),
	)
	return nil
}
