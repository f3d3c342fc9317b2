// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, identity, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeCodeExpired          = "CODE_EXPIRED"
	ErrCodeCodeInvalid          = "CODE_INVALID"
	ErrCodeCodeMissing          = "CODE_MISSING"
	ErrCodeCodeAttemptsExceeded = "CODE_ATTEMPTS_EXCEEDED"
	ErrCodeChallengeNotFound    = "CHALLENGE_NOT_FOUND"
	ErrCodeIdentityIntegrity    = "IDENTITY_INTEGRITY"
	ErrCodeStoreUnavailable     = "STORE_UNAVAILABLE"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeUserWithdrawn        = "USER_WITHDRAWN"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeMemberLimit          = "MEMBER_LIMIT"
	ErrCodeMemberDuplicate      = "MEMBER_DUPLICATE"
	ErrCodeMemberNotFound       = "MEMBER_NOT_FOUND"
	ErrCodeInvalidEmail         = "INVALID_EMAIL"
	ErrCodeInvalidRole          = "INVALID_ROLE"
)

// NewCodeExpiredError はワンタイムコード期限切れエラーを生成する。
// 再プロンプトで回復可能であり、致命的な失敗として扱わない。
func NewCodeExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeCodeExpired,
		Message:  "認証コードの有効期限が切れています。",
		Category: "auth",
		Action:   "コードを再送信して、新しいコードを入力してください。",
	}
}

// NewCodeInvalidError はワンタイムコード不一致エラーを生成する。
func NewCodeInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCodeInvalid,
		Message:  "認証コードが正しくありません。",
		Category: "auth",
		Action:   "メールに記載されたコードを確認して、再度入力してください。",
	}
}

// NewCodeMissingError はコード未入力エラーを生成する。
func NewCodeMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeCodeMissing,
		Message:  "認証コードが入力されていません。",
		Category: "validation",
		Action:   "認証コードを入力してください。",
	}
}

// NewCodeAttemptsExceededError は試行回数超過エラーを生成する。
func NewCodeAttemptsExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeCodeAttemptsExceeded,
		Message:  "認証コードの試行回数が上限に達しました。",
		Category: "auth",
		Action:   "最初からログインをやり直してください。",
	}
}

// NewChallengeNotFoundError は認証チャレンジ未検出エラーを生成する。
// チャレンジCookieの欠落・期限切れの両方で返される。
func NewChallengeNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeChallengeNotFound,
		Message:  "ログイン手続きが見つかりません。",
		Category: "auth",
		Action:   "最初からログインをやり直してください。",
	}
}

// NewIdentityIntegrityError はidentity整合性エラーを生成する。
// User/Account/AccountMemberの一部のみが作成された状態を検出した場合に返す。
// ログイン試行は失敗として扱い、中途半端なユーザーを返してはならない。
func NewIdentityIntegrityError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityIntegrity,
		Message:  "アカウント情報の作成に失敗しました。",
		Category: "identity",
		Action:   "しばらく待ってから再度ログインしてください。",
	}
}

// NewStoreUnavailableError はストア到達不能エラーを生成する。
// 認証状態の判定ではフェイルクローズド（未認証扱い）とする。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "セッションストアに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewForbiddenError はロール不一致エラーを生成する。
// HTTP 403としてそのまま返し、リトライはしない。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "このページへのアクセス権限がありません。",
		Category: "auth",
		Action:   "権限のあるアカウントでログインしてください。",
	}
}

// NewUserWithdrawnError は退会済みユーザーのログイン拒否エラーを生成する。
func NewUserWithdrawnError() *APIError {
	return &APIError{
		Code:     ErrCodeUserWithdrawn,
		Message:  "このアカウントは退会済みです。",
		Category: "auth",
		Action:   "サポートにお問い合わせください。",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewMemberLimitError はメンバー数上限エラーを生成する。
func NewMemberLimitError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeMemberLimit,
		Message:  fmt.Sprintf("アカウントのメンバー数が上限（%d人）に達しています。", limit),
		Category: "validation",
		Action:   "不要なメンバーを削除してから、新しいメンバーを招待してください。",
	}
}

// NewMemberDuplicateError は重複参加エラーを生成する。
func NewMemberDuplicateError() *APIError {
	return &APIError{
		Code:     ErrCodeMemberDuplicate,
		Message:  "このユーザーは既にアカウントのメンバーです。",
		Category: "validation",
		Action:   "メンバー一覧を確認してください。",
	}
}

// NewMemberNotFoundError はメンバー未検出エラーを生成する。
func NewMemberNotFoundError(memberID string) *APIError {
	return &APIError{
		Code:     ErrCodeMemberNotFound,
		Message:  fmt.Sprintf("指定されたメンバーが見つかりません: %s", memberID),
		Category: "validation",
		Action:   "メンバーIDを確認してください。",
	}
}

// NewInvalidEmailError は無効なメールアドレスエラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が正しくありません。",
		Category: "validation",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewInvalidRoleError は無効なロール指定エラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効なロールです: %s", role),
		Category: "validation",
		Action:   "ロールには owner、editor、viewer のいずれかを指定してください。",
	}
}
