// Package account はアカウントとメンバー管理のドメインロジックを提供する。
package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/teamgate/internal/model"
	"github.com/hitoshi/teamgate/internal/repository"
)

// Service はアカウント管理のサービス層。
// メンバーの招待・一覧・ロール変更のビジネスロジックを提供する。
type Service struct {
	accountRepo repository.AccountRepository
	memberRepo  repository.AccountMemberRepository
	userRepo    repository.UserRepository
	maxMembers  int // 0は無制限
}

// NewService はServiceの新しいインスタンスを生成する。
// maxMembersはアカウントあたりのメンバー上限（0で無制限）。
func NewService(
	accountRepo repository.AccountRepository,
	memberRepo repository.AccountMemberRepository,
	userRepo repository.UserRepository,
	maxMembers int,
) *Service {
	return &Service{
		accountRepo: accountRepo,
		memberRepo:  memberRepo,
		userRepo:    userRepo,
		maxMembers:  maxMembers,
	}
}

// GetByUserID はユーザーのプライマリアカウントを取得する。
func (s *Service) GetByUserID(ctx context.Context, userID string) (*model.Account, error) {
	account, err := s.accountRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewUserNotFoundError()
	}
	return account, nil
}

// ListMembers はアカウントの全メンバーを取得する。
func (s *Service) ListMembers(ctx context.Context, accountID string) ([]*model.AccountMember, error) {
	members, err := s.memberRepo.ListByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("メンバー一覧の取得に失敗しました: %w", err)
	}
	return members, nil
}

// InviteMember は既存ユーザーをアカウントに招待する。
// 招待されたメンバーはstatus=pendingで作成され、ロールはowner以外を指定する。
// メンバー上限に達している場合、または同じユーザーが既に所属している場合はエラー。
func (s *Service) InviteMember(ctx context.Context, accountID, email string, role model.MemberRole) (*model.AccountMember, error) {
	if !role.IsValid() || role == model.MemberRoleOwner {
		return nil, model.NewInvalidRoleError(string(role))
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil || user.IsDeleted() {
		return nil, model.NewUserNotFoundError()
	}

	// 上限チェック。Createの複合UNIQUEが最終防壁なので、ここは
	// 事前チェックで十分（僅かな競合超過は許容する）。
	if s.maxMembers > 0 {
		count, err := s.memberRepo.CountByAccountID(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("メンバー数の取得に失敗しました: %w", err)
		}
		if count >= s.maxMembers {
			return nil, model.NewMemberLimitError(s.maxMembers)
		}
	}

	member := &model.AccountMember{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		AccountID: accountID,
		Status:    model.MemberStatusPending,
		Role:      role,
	}

	inserted, err := s.memberRepo.Create(ctx, member)
	if err != nil {
		return nil, fmt.Errorf("メンバーの作成に失敗しました: %w", err)
	}
	if !inserted {
		return nil, model.NewMemberDuplicateError()
	}

	slog.Info("メンバーを招待しました",
		slog.String("account_id", accountID),
		slog.String("user_id", user.ID),
		slog.String("role", string(role)),
	)

	return member, nil
}

// UpdateMemberRole はメンバーのロールを変更する。
// ownerロールへの変更、およびownerメンバーのロール変更は許可しない。
func (s *Service) UpdateMemberRole(ctx context.Context, accountID, memberID string, role model.MemberRole) error {
	if !role.IsValid() || role == model.MemberRoleOwner {
		return model.NewInvalidRoleError(string(role))
	}

	member, err := s.memberRepo.FindByID(ctx, memberID)
	if err != nil {
		return fmt.Errorf("メンバーの取得に失敗しました: %w", err)
	}
	if member == nil || member.AccountID != accountID {
		return model.NewMemberNotFoundError(memberID)
	}
	if member.Role == model.MemberRoleOwner {
		return model.NewInvalidRoleError(string(model.MemberRoleOwner))
	}

	if err := s.memberRepo.UpdateRole(ctx, memberID, role); err != nil {
		return fmt.Errorf("ロールの更新に失敗しました: %w", err)
	}

	slog.Info("メンバーのロールを変更しました",
		slog.String("account_id", accountID),
		slog.String("member_id", memberID),
		slog.String("role", string(role)),
	)

	return nil
}
