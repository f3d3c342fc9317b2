// Package identity は検証済みidentityとアカウントモデルの整合化を提供する。
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/teamgate/internal/model"
	"github.com/hitoshi/teamgate/internal/repository"
)

// Reconciler は検証済みemailをUser/Account/AccountMemberの三つ組へ冪等に整合させる。
// 同一emailに対して何度呼び出しても同じ三つ組が返り、
// 同時実行でもAccountが重複生成されないことをストレージ層の制約で保証する。
type Reconciler struct {
	repo repository.ReconcileRepository
}

// NewReconciler はReconcilerを生成する。
func NewReconciler(repo repository.ReconcileRepository) *Reconciler {
	return &Reconciler{repo: repo}
}

// Result は整合化後の三つ組。
type Result struct {
	User    *model.User
	Account *model.Account
	Member  *model.AccountMember
}

// Reconcile は検証済みclaimをもとにUser/Account/AccountMemberを冪等にUPSERTする。
// 3行は1トランザクションで確定し、部分的な状態は決して返さない。
// 整合化後に三つ組が揃っていない場合はIdentityIntegrityErrorを返し、
// 呼び出し側はログイン試行を失敗として扱うこと。
func (r *Reconciler) Reconcile(ctx context.Context, claim *model.AuthClaim) (*Result, error) {
	if claim == nil || claim.Email == "" {
		return nil, fmt.Errorf("auth claim is required")
	}

	now := time.Now()

	// 新規作成時のみ使われる候補行。既存行があればストレージ層で無視される。
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     claim.Email,
		UserType:  model.UserTypeUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	account := &model.Account{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	member := &model.AccountMember{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		AccountID: account.ID,
		Status:    model.MemberStatusActive,
		Role:      model.MemberRoleOwner,
		CreatedAt: now,
	}

	gotUser, gotAccount, gotMember, err := r.repo.EnsureUserAccount(ctx, user, account, member)
	if err != nil {
		slog.Error("identity reconciliation failed",
			slog.String("error", err.Error()),
		)
		return nil, model.NewIdentityIntegrityError()
	}

	// トランザクション確定後の整合性検査。欠けがあればデータ不整合であり、
	// 中途半端なユーザーを返さずログインを失敗させる。
	if gotUser == nil || gotAccount == nil || gotMember == nil ||
		gotAccount.UserID != gotUser.ID ||
		gotMember.UserID != gotUser.ID || gotMember.AccountID != gotAccount.ID {
		slog.Error("identity reconciliation produced inconsistent rows",
			slog.String("email", claim.Email),
		)
		return nil, model.NewIdentityIntegrityError()
	}

	// 退会済みユーザーの再ログインは拒否する
	if gotUser.IsDeleted() {
		return nil, model.NewUserWithdrawnError()
	}

	if gotUser.ID == user.ID {
		slog.Info("new user created",
			slog.String("user_id", gotUser.ID),
			slog.String("account_id", gotAccount.ID),
		)
	} else {
		slog.Info("existing user logged in",
			slog.String("user_id", gotUser.ID),
		)
	}

	return &Result{User: gotUser, Account: gotAccount, Member: gotMember}, nil
}
