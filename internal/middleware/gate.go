package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/teamgate/internal/model"
)

// authenticateEntryPath は未認証リクエストのリダイレクト先。
const authenticateEntryPath = "/authenticate"

// UserFinder はゲート通過時のユーザー生存確認に使うインターフェース。
type UserFinder interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	// 論理削除済みユーザーも返す（呼び出し側でIsDeletedを判定する）。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// NewRouteGate は配下のルートをロールで守るミドルウェアを返す。
// セッションに認証済みユーザーが無い場合は認証入口へリダイレクトし、
// ロールが一致しない場合は403を返す。一致した場合のみ通過させる。
//
// セッションの内容だけでは退会済みユーザーの生きたセッションを
// 排除できないため、リクエストごとにUserFinderでユーザーの生存を
// 再確認する。退会済み・未検出・照会失敗はいずれもセッションから
// ユーザーを外して認証入口へ戻す（フェイルクローズ）。
func NewRouteGate(requiredRole model.UserType, users UserFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := SessionFromContext(r.Context())
			if err != nil || sess.User() == nil {
				http.Redirect(w, r, authenticateEntryPath, http.StatusFound)
				return
			}

			user, err := users.FindByID(r.Context(), sess.User().UserID)
			if err != nil {
				slog.Warn("ゲートのユーザー照会に失敗したため認証入口へ戻します",
					slog.String("user_id", sess.User().UserID),
					slog.String("error", err.Error()),
				)
				http.Redirect(w, r, authenticateEntryPath, http.StatusFound)
				return
			}
			if user == nil || user.IsDeleted() {
				sess.ClearUser()
				http.Redirect(w, r, authenticateEntryPath, http.StatusFound)
				return
			}

			if sess.User().Role != requiredRole {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
