package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/teamgate/internal/model"
)

// UserServiceInterface は管理者ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	List(ctx context.Context) ([]*model.User, error)
	Withdraw(ctx context.Context, userID string) error
}

// AdminHandler は管理者向けのHTTPハンドラー。
// /admin/*配下はRouteGateでadminロールに制限されている前提。
type AdminHandler struct {
	service UserServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service UserServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// adminUserResponse は管理者向けユーザー一覧のJSON表現。
type adminUserResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	UserType  string     `json:"userType"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// ListUsers は全ユーザーを返す（論理削除済みを含む）。
// GET /admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]adminUserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, adminUserResponse{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			UserType:  string(u.UserType),
			CreatedAt: u.CreatedAt,
			DeletedAt: u.DeletedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"users": resp})
}

// WithdrawUser は指定ユーザーを退会させる（論理削除）。
// DELETE /admin/users/{id}
func (h *AdminHandler) WithdrawUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
