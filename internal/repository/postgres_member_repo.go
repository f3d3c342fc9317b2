package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/teamgate/internal/model"
)

// PostgresMemberRepo はPostgreSQLを使用したアカウントメンバーリポジトリ。
type PostgresMemberRepo struct {
	db *sql.DB
}

// NewPostgresMemberRepo はPostgresMemberRepoを生成する。
func NewPostgresMemberRepo(db *sql.DB) *PostgresMemberRepo {
	return &PostgresMemberRepo{db: db}
}

const memberColumns = `id, user_id, account_id, status, member_role, created_at`

// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
func (r *PostgresMemberRepo) FindByID(ctx context.Context, id string) (*model.AccountMember, error) {
	member := &model.AccountMember{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM account_members WHERE id = $1`,
		id,
	).Scan(&member.ID, &member.UserID, &member.AccountID, &member.Status, &member.Role, &member.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find member by ID: %w", err)
	}

	return member, nil
}

// FindByUserAndAccount は(user_id, account_id)でメンバーを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresMemberRepo) FindByUserAndAccount(ctx context.Context, userID, accountID string) (*model.AccountMember, error) {
	member := &model.AccountMember{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM account_members
		 WHERE user_id = $1 AND account_id = $2`,
		userID, accountID,
	).Scan(&member.ID, &member.UserID, &member.AccountID, &member.Status, &member.Role, &member.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find member: %w", err)
	}

	return member, nil
}

// ListByAccountID はアカウントの全メンバーを作成日時の昇順で取得する。
func (r *PostgresMemberRepo) ListByAccountID(ctx context.Context, accountID string) ([]*model.AccountMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM account_members
		 WHERE account_id = $1 ORDER BY created_at ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*model.AccountMember
	for rows.Next() {
		member := &model.AccountMember{}
		if err := rows.Scan(&member.ID, &member.UserID, &member.AccountID, &member.Status, &member.Role, &member.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return members, nil
}

// CountByAccountID はアカウントのメンバー数を返す。
func (r *PostgresMemberRepo) CountByAccountID(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM account_members WHERE account_id = $1`,
		accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}

// Create はメンバーを作成する。(user_id, account_id)の重複時は
// ON CONFLICT DO NOTHINGにより何も挿入せず、挿入有無をboolで返す。
func (r *PostgresMemberRepo) Create(ctx context.Context, member *model.AccountMember) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO account_members (id, user_id, account_id, status, member_role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, account_id) DO NOTHING`,
		member.ID, member.UserID, member.AccountID, member.Status, member.Role, member.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create member: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpdateRole はメンバーのロールを更新する。
func (r *PostgresMemberRepo) UpdateRole(ctx context.Context, id string, role model.MemberRole) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE account_members SET member_role = $2 WHERE id = $1`,
		id, role,
	)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AccountMemberRepository = (*PostgresMemberRepo)(nil)
