// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/teamgate/internal/model"
	"github.com/hitoshi/teamgate/internal/repository"
)

// Service はユーザー管理のサービス層。
// 退会処理と管理者向けの一覧取得を提供する。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// Get は指定IDのユーザーを取得する。
// 論理削除済みユーザーは存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil || user.IsDeleted() {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// List は全ユーザーを取得する（管理者向け）。
// 論理削除済みユーザーも含めて返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 行は物理削除せずdeleted_atを設定する。アカウントとメンバー行は
// 課金履歴との突き合わせのため残す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}
	if user.IsDeleted() {
		// 冪等: 既に退会済みなら何もしない
		return nil
	}

	if err := s.userRepo.SoftDeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("退会処理に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
