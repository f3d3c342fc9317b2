package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/teamgate/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const accountColumns = `id, user_id, stripe_customer_id, stripe_subscription_id,
	stripe_product_id, plan_name, subscription_status, created_at, updated_at`

func scanAccount(row *sql.Row) (*model.Account, error) {
	account := &model.Account{}
	err := row.Scan(
		&account.ID, &account.UserID,
		&account.StripeCustomerID, &account.StripeSubscriptionID,
		&account.StripeProductID, &account.PlanName, &account.SubscriptionStatus,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

// FindByUserID は指定ユーザーのプライマリアカウントを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByUserID(ctx context.Context, userID string) (*model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find account by user ID: %w", err)
	}
	return account, nil
}

// LinkStripeCustomer はアカウントにstripe_customer_idを紐付ける。
// 該当アカウントが無かった場合はfalseを返す。
func (r *PostgresAccountRepo) LinkStripeCustomer(ctx context.Context, accountID, customerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`,
		accountID, customerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to link stripe customer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// UpdateSubscriptionByCustomerID はstripe_customer_idで特定したアカウントの
// サブスクリプション関連カラムを更新する。nilのフィールドはNULLになる。
// 該当アカウントが無かった場合はfalseを返す。
func (r *PostgresAccountRepo) UpdateSubscriptionByCustomerID(ctx context.Context, customerID string, subscriptionID, productID, planName, status *string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET stripe_subscription_id = $2,
		     stripe_product_id = $3,
		     plan_name = $4,
		     subscription_status = $5,
		     updated_at = now()
		 WHERE stripe_customer_id = $1`,
		customerID, subscriptionID, productID, planName, status,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
