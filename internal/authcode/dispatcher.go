package authcode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wneessen/go-mail"
)

// MailConfig はSMTP経由のコード送付設定。
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MailDispatcher はSMTPでワンタイムコードをメール送付する。
type MailDispatcher struct {
	config MailConfig
}

// NewMailDispatcher はMailDispatcherを生成する。
func NewMailDispatcher(config MailConfig) *MailDispatcher {
	return &MailDispatcher{config: config}
}

// DispatchCode はコードをメールで送付する。
func (d *MailDispatcher) DispatchCode(ctx context.Context, email, code string) error {
	msg := mail.NewMsg()
	if err := msg.From(d.config.From); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	if err := msg.To(email); err != nil {
		return fmt.Errorf("failed to set mail to: %w", err)
	}
	msg.Subject("ログイン認証コード")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"ログイン認証コード: %s\n\nこのコードの有効期限は発行から10分です。\n心当たりがない場合はこのメールを破棄してください。\n", code))

	opts := []mail.Option{
		mail.WithPort(d.config.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if d.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(d.config.Username),
			mail.WithPassword(d.config.Password),
		)
	}

	client, err := mail.NewClient(d.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send code mail: %w", err)
	}
	return nil
}

const devCodeKeyPrefix = "devcode:"

// DevKVDispatcher は開発モード専用のディスパッチャ。
// コードをメール送付する代わりにKVストアへ平文で書き込み、
// 開発用エンドポイントからインライン表示できるようにする。
// 本番では決して使用しないこと。
type DevKVDispatcher struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewDevKVDispatcher はDevKVDispatcherを生成する。
func NewDevKVDispatcher(client redis.UniversalClient, ttl time.Duration) *DevKVDispatcher {
	return &DevKVDispatcher{client: client, ttl: ttl}
}

// DispatchCode はコードをKVストアに書き込む。
func (d *DevKVDispatcher) DispatchCode(ctx context.Context, email, code string) error {
	if err := d.client.Set(ctx, devCodeKeyPrefix+email, code, d.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	slog.Info("dev mode: auth code stored for inline display",
		slog.String("email", email),
	)
	return nil
}

// LookupCode は指定emailの保留中コードを返す。
// 保留中のコードが無い場合はErrChallengeNotFoundを返す。
func (d *DevKVDispatcher) LookupCode(ctx context.Context, email string) (string, error) {
	code, err := d.client.Get(ctx, devCodeKeyPrefix+email).Result()
	if err == redis.Nil {
		return "", ErrChallengeNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return code, nil
}

// compile-time interface checks
var (
	_ Dispatcher = (*MailDispatcher)(nil)
	_ Dispatcher = (*DevKVDispatcher)(nil)
)
