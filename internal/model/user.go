// Package model はドメインモデルを定義する。
package model

import "time"

// UserType はユーザーの権限区分を表す。
type UserType string

const (
	// UserTypeUser は一般ユーザー。
	UserTypeUser UserType = "user"
	// UserTypeAdmin は管理者ユーザー。
	UserTypeAdmin UserType = "admin"
)

// IsValid はUserTypeが定義済みの値かどうかを判定する。
func (t UserType) IsValid() bool {
	return t == UserTypeUser || t == UserTypeAdmin
}

// User はサービス利用ユーザーを表す。
// 通常フローでは物理削除されず、退会時はDeletedAtのみ設定される（論理削除）。
type User struct {
	ID        string
	Email     string
	Name      string
	UserType  UserType
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// IsDeleted は論理削除済みかどうかを返す。
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// Account はユーザーが所有するプライマリアカウントを表す。
// user_idにUNIQUE制約があり、1ユーザーにつき必ず1件のみ存在する。
// 課金関連のカラムは課金が確立するまですべてNULL。
type Account struct {
	ID                   string
	UserID               string
	StripeCustomerID     *string
	StripeSubscriptionID *string
	StripeProductID      *string
	PlanName             *string
	SubscriptionStatus   *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// MemberStatus はアカウントメンバーの状態を表す。
type MemberStatus string

const (
	// MemberStatusPending は招待済み・未承諾の状態。
	MemberStatusPending MemberStatus = "pending"
	// MemberStatusActive は有効なメンバーの状態。
	MemberStatusActive MemberStatus = "active"
)

// MemberRole はアカウント内でのメンバーの役割を表す。
type MemberRole string

const (
	// MemberRoleOwner はアカウント所有者。初回ログイン時に自動付与される。
	MemberRoleOwner MemberRole = "owner"
	// MemberRoleEditor は編集権限を持つメンバー。
	MemberRoleEditor MemberRole = "editor"
	// MemberRoleViewer は閲覧のみのメンバー。
	MemberRoleViewer MemberRole = "viewer"
)

// IsValid はMemberRoleが定義済みの値かどうかを判定する。
func (r MemberRole) IsValid() bool {
	return r == MemberRoleOwner || r == MemberRoleEditor || r == MemberRoleViewer
}

// AccountMember はユーザーとアカウントの所属関係を表す。
// (user_id, account_id)に複合UNIQUE制約があり、同一アカウントへの重複参加を防ぐ。
type AccountMember struct {
	ID        string
	UserID    string
	AccountID string
	Status    MemberStatus
	Role      MemberRole
	CreatedAt time.Time
}
