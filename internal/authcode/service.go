package authcode

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/hitoshi/teamgate/internal/model"
)

// codeLength はワンタイムコードの桁数。
const codeLength = 6

// Dispatcher はワンタイムコードの帯域外送付インターフェース。
type Dispatcher interface {
	// DispatchCode はコードをユーザーに届ける。
	DispatchCode(ctx context.Context, email, code string) error
}

// Service はコードベースのチャレンジ・レスポンス認証を統括する。
// 成功時に検証済みのAuthClaimを発行し、それ以外の状態を永続化しない。
type Service struct {
	store      *CodeStore
	dispatcher Dispatcher
}

// NewService はServiceを生成する。
func NewService(store *CodeStore, dispatcher Dispatcher) *Service {
	return &Service{store: store, dispatcher: dispatcher}
}

// RequestCode は新しいチャレンジを発行し、コードを帯域外で送付する。
// 戻り値のchallengeIDはCookieに保存され、/callbackでの照合に使われる。
func (s *Service) RequestCode(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if !isValidEmail(email) {
		return "", model.NewInvalidEmailError()
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	challengeID, err := generateChallengeID()
	if err != nil {
		return "", fmt.Errorf("failed to generate challenge ID: %w", err)
	}

	if err := s.store.Save(ctx, challengeID, email, hashCode(code)); err != nil {
		return "", fmt.Errorf("failed to save challenge: %w", err)
	}

	if err := s.dispatcher.DispatchCode(ctx, email, code); err != nil {
		return "", fmt.Errorf("failed to dispatch code: %w", err)
	}

	slog.Info("auth code issued",
		slog.String("challenge_id", challengeID),
	)
	return challengeID, nil
}

// VerifyCode は提出コードを照合し、成功時に検証済みAuthClaimを発行する。
// コードはシングルユースで、検証成功後の再提出は失敗する。
func (s *Service) VerifyCode(ctx context.Context, challengeID, code string) (*model.AuthClaim, error) {
	if code == "" {
		return nil, model.NewCodeMissingError()
	}
	if challengeID == "" {
		return nil, model.NewChallengeNotFoundError()
	}

	email, err := s.store.Consume(ctx, challengeID, hashCode(code))
	switch {
	case err == nil:
		slog.Info("auth code verified",
			slog.String("challenge_id", challengeID),
		)
		return &model.AuthClaim{Email: email}, nil
	case err == ErrChallengeNotFound:
		// 期限切れと未発行はストア上で区別できないため、期限切れとして扱う
		return nil, model.NewCodeExpiredError()
	case err == ErrChallengeConsumed:
		// 検証成功済みコードの再提出。期限切れではなく不正なコードとして扱う
		return nil, model.NewCodeInvalidError()
	case err == ErrCodeMismatch:
		return nil, model.NewCodeInvalidError()
	case err == ErrAttemptsExceeded:
		return nil, model.NewCodeAttemptsExceededError()
	default:
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}
}

// ResendCode は保留中チャレンジのコードを新しい値に差し替えて再送付する。
// チャレンジのTTLは延長しない。
func (s *Service) ResendCode(ctx context.Context, challengeID string) error {
	if challengeID == "" {
		return model.NewChallengeNotFoundError()
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	email, err := s.store.Rotate(ctx, challengeID, hashCode(code))
	if err == ErrChallengeNotFound {
		return model.NewChallengeNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("failed to rotate challenge: %w", err)
	}

	if err := s.dispatcher.DispatchCode(ctx, email, code); err != nil {
		return fmt.Errorf("failed to dispatch code: %w", err)
	}

	slog.Info("auth code resent",
		slog.String("challenge_id", challengeID),
	)
	return nil
}

// generateCode は暗号的に安全な6桁の数字コードを生成する。
func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeLength, n), nil
}

// generateChallengeID は不透明なチャレンジIDを生成する。
func generateChallengeID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashCode はコードの照合用ハッシュを計算する。
// 平文コードはストアに保存しない。
func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// isValidEmail はemailの形式を最小限に検証する。
func isValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}
