package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/teamgate/internal/middleware"
	"github.com/hitoshi/teamgate/internal/model"
)

// UserHandler はユーザー自身の操作のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	baseURL string
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, baseURL string) *UserHandler {
	return &UserHandler{service: service, baseURL: baseURL}
}

// Withdraw はセッションユーザー自身を退会させる（論理削除）。
// 退会後はセッションから認証済みユーザーを外し、トップへリダイレクトする。
// POST /dashboard/withdraw
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil || sess.User() == nil {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return
	}

	userID := sess.User().UserID
	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	sess.ClearUser()

	slog.Info("ユーザーが退会しました",
		slog.String("user_id", userID),
	)

	http.Redirect(w, r, h.baseURL, http.StatusFound)
}
