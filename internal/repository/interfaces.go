// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/teamgate/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	// 論理削除済みユーザーも返す（呼び出し側でIsDeletedを判定する）。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は指定emailのユーザーを取得する。見つからない場合はnilを返す。
	// emailは保存時のまま大文字小文字を区別して照合する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// List は全ユーザーを作成日時の降順で取得する。論理削除済みユーザーを含む。
	List(ctx context.Context) ([]*model.User, error)

	// SoftDeleteByID は指定IDのユーザーのdeleted_atを設定する。
	// 物理削除は行わない。
	SoftDeleteByID(ctx context.Context, id string) error
}

// AccountRepository はプライマリアカウントの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByUserID は指定ユーザーのプライマリアカウントを取得する。
	// user_idはUNIQUEのため最大1件。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Account, error)

	// LinkStripeCustomer はアカウントにstripe_customer_idを紐付ける。
	// 該当アカウントが存在し更新された場合にtrueを返す。
	LinkStripeCustomer(ctx context.Context, accountID, customerID string) (bool, error)

	// UpdateSubscriptionByCustomerID はstripe_customer_idで特定したアカウントの
	// サブスクリプション関連カラムを更新する。
	// 各フィールドはnilの場合NULLに設定される（部分更新ではなく丸ごと置き換え）。
	// 該当アカウントが存在し更新された場合にtrueを返す。
	UpdateSubscriptionByCustomerID(ctx context.Context, customerID string, subscriptionID, productID, planName, status *string) (bool, error)
}

// AccountMemberRepository はアカウント所属の永続化インターフェース。
type AccountMemberRepository interface {
	// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AccountMember, error)

	// FindByUserAndAccount は(user_id, account_id)でメンバーを検索する。
	// 複合UNIQUEのため最大1件。見つからない場合はnilを返す。
	FindByUserAndAccount(ctx context.Context, userID, accountID string) (*model.AccountMember, error)

	// ListByAccountID はアカウントの全メンバーを作成日時の昇順で取得する。
	ListByAccountID(ctx context.Context, accountID string) ([]*model.AccountMember, error)

	// CountByAccountID はアカウントのメンバー数を返す。
	CountByAccountID(ctx context.Context, accountID string) (int, error)

	// Create はメンバーを作成する。(user_id, account_id)の重複時は
	// ON CONFLICT DO NOTHINGにより何も挿入せず、挿入有無をboolで返す。
	Create(ctx context.Context, member *model.AccountMember) (bool, error)

	// UpdateRole はメンバーのロールを更新する。
	UpdateRole(ctx context.Context, id string, role model.MemberRole) error
}

// ReconcileRepository はidentity整合化の多段UPSERTを単一トランザクションで
// 実行するインターフェース。
type ReconcileRepository interface {
	// EnsureUserAccount はUser/Account/AccountMemberの3行を1トランザクションで
	// 冪等にUPSERTし、確定後の3行を読み戻して返す。
	// 各INSERTはON CONFLICT DO NOTHINGで、既存行は一切上書きしない。
	// 渡されたuser/account/memberは新規作成時のみ使用される候補値。
	EnsureUserAccount(ctx context.Context, user *model.User, account *model.Account, member *model.AccountMember) (*model.User, *model.Account, *model.AccountMember, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
