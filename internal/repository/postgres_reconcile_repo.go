package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/teamgate/internal/model"
)

// PostgresReconcileRepo はidentity整合化の多段UPSERTを単一トランザクションで
// 実行するリポジトリ。
// 同時実行の安全性はアプリケーション側のロックではなく、
// users.email / accounts.user_id / account_members(user_id, account_id)の
// UNIQUE制約とON CONFLICT DO NOTHINGに委ねる。
type PostgresReconcileRepo struct {
	db TxBeginner
}

// NewPostgresReconcileRepo はPostgresReconcileRepoを生成する。
func NewPostgresReconcileRepo(db TxBeginner) *PostgresReconcileRepo {
	return &PostgresReconcileRepo{db: db}
}

// EnsureUserAccount はUser/Account/AccountMemberの3行を1トランザクションで
// 冪等にUPSERTし、確定後の3行を読み戻して返す。
// 既存行は一切上書きしない（emailの大文字小文字も保存時のまま維持される）。
// トランザクションがコミットできない場合は3行とも作成されない。
func (r *PostgresReconcileRepo) EnsureUserAccount(
	ctx context.Context,
	user *model.User,
	account *model.Account,
	member *model.AccountMember,
) (*model.User, *model.Account, *model.AccountMember, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to begin reconcile transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. userをemail一意でUPSERT（既存なら何もしない）し、確定行を読み戻す
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, user_type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (email) DO NOTHING`,
		user.ID, user.Email, user.Name, user.UserType, user.CreatedAt, user.UpdatedAt,
	); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	gotUser := &model.User{}
	err = tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		user.Email,
	).Scan(&gotUser.ID, &gotUser.Email, &gotUser.Name, &gotUser.UserType, &gotUser.CreatedAt, &gotUser.UpdatedAt, &gotUser.DeletedAt)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read back user: %w", err)
	}

	// 2. プライマリアカウントをuser_id一意でUPSERT。
	//    新規作成時は課金カラムをすべてNULLのままにする。
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		account.ID, gotUser.ID, account.CreatedAt, account.UpdatedAt,
	); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	gotAccount := &model.Account{}
	err = tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`,
		gotUser.ID,
	).Scan(
		&gotAccount.ID, &gotAccount.UserID,
		&gotAccount.StripeCustomerID, &gotAccount.StripeSubscriptionID,
		&gotAccount.StripeProductID, &gotAccount.PlanName, &gotAccount.SubscriptionStatus,
		&gotAccount.CreatedAt, &gotAccount.UpdatedAt,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read back account: %w", err)
	}

	// 3. 所有者メンバーシップを(user_id, account_id)一意でUPSERT
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO account_members (id, user_id, account_id, status, member_role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, account_id) DO NOTHING`,
		member.ID, gotUser.ID, gotAccount.ID, member.Status, member.Role, member.CreatedAt,
	); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to upsert account member: %w", err)
	}

	gotMember := &model.AccountMember{}
	err = tx.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM account_members
		 WHERE user_id = $1 AND account_id = $2`,
		gotUser.ID, gotAccount.ID,
	).Scan(&gotMember.ID, &gotMember.UserID, &gotMember.AccountID, &gotMember.Status, &gotMember.Role, &gotMember.CreatedAt)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read back account member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to commit reconcile transaction: %w", err)
	}

	return gotUser, gotAccount, gotMember, nil
}

// compile-time interface check
var _ ReconcileRepository = (*PostgresReconcileRepo)(nil)
