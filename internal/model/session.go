// Package model はドメインモデルを定義する。
package model

// SessionUser はセッションに紐付く認証済みユーザーの最小情報。
type SessionUser struct {
	UserID string   `json:"userId"`
	Email  string   `json:"email"`
	Role   UserType `json:"role"`
}

// SessionData はKVストアに保存されるサーバーサイドのセッション内容。
// 値はリクエスト処理の最後に丸ごと置き換えて書き込む（フィールド単位のマージはしない）。
type SessionData struct {
	SessionUser *SessionUser `json:"sessionUser,omitempty"`
}

// Clone はSessionDataの深いコピーを返す。
// ミドルウェアが処理前のスナップショットを保持するために使用する。
func (d *SessionData) Clone() *SessionData {
	if d == nil {
		return &SessionData{}
	}
	c := &SessionData{}
	if d.SessionUser != nil {
		u := *d.SessionUser
		c.SessionUser = &u
	}
	return c
}

// Equal は2つのSessionDataを値として比較する。
func (d *SessionData) Equal(other *SessionData) bool {
	if d == nil || other == nil {
		return (d == nil || d.SessionUser == nil) && (other == nil || other.SessionUser == nil)
	}
	if d.SessionUser == nil || other.SessionUser == nil {
		return d.SessionUser == nil && other.SessionUser == nil
	}
	return *d.SessionUser == *other.SessionUser
}

// IsAuthenticated は認証済みユーザーが紐付いているかどうかを返す。
func (d *SessionData) IsAuthenticated() bool {
	return d != nil && d.SessionUser != nil
}

// AuthClaim はコード検証に成功した時点で発行される検証済みのidentity主張。
// IdentityReconcilerに一度だけ渡され、永続化はされない。
type AuthClaim struct {
	Email string
}
