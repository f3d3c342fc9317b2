package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/teamgate/internal/middleware"
	"github.com/hitoshi/teamgate/internal/model"
)

// AccountServiceInterface はダッシュボードハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	GetByUserID(ctx context.Context, userID string) (*model.Account, error)
	ListMembers(ctx context.Context, accountID string) ([]*model.AccountMember, error)
	InviteMember(ctx context.Context, accountID, email string, role model.MemberRole) (*model.AccountMember, error)
	UpdateMemberRole(ctx context.Context, accountID, memberID string, role model.MemberRole) error
}

// AccountHandler はダッシュボード（アカウント・メンバー管理）のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// accountResponse はアカウントのJSON表現。
type accountResponse struct {
	ID                 string  `json:"id"`
	UserID             string  `json:"userId"`
	PlanName           *string `json:"planName"`
	SubscriptionStatus *string `json:"subscriptionStatus"`
}

// memberResponse はメンバーのJSON表現。
type memberResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	AccountID string `json:"accountId"`
	Status    string `json:"status"`
	Role      string `json:"role"`
}

func toMemberResponse(m *model.AccountMember) memberResponse {
	return memberResponse{
		ID:        m.ID,
		UserID:    m.UserID,
		AccountID: m.AccountID,
		Status:    string(m.Status),
		Role:      string(m.Role),
	}
}

// currentAccount はセッションユーザーのプライマリアカウントを解決する。
func (h *AccountHandler) currentAccount(w http.ResponseWriter, r *http.Request) (*model.Account, bool) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil || sess.User() == nil {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return nil, false
	}

	account, err := h.service.GetByUserID(r.Context(), sess.User().UserID)
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	return account, true
}

// GetAccount はセッションユーザーのアカウント情報を返す。
// GET /dashboard/account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accountResponse{
		ID:                 account.ID,
		UserID:             account.UserID,
		PlanName:           account.PlanName,
		SubscriptionStatus: account.SubscriptionStatus,
	})
}

// ListMembers はアカウントのメンバー一覧を返す。
// GET /dashboard/members
func (h *AccountHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), account.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]memberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, toMemberResponse(m))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"members": resp})
}

// inviteMemberRequest はメンバー招待リクエストのボディ。
type inviteMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// InviteMember は既存ユーザーをアカウントに招待する。
// POST /dashboard/members
func (h *AccountHandler) InviteMember(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	var req inviteMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidEmailError())
		return
	}

	member, err := h.service.InviteMember(r.Context(), account.ID, req.Email, model.MemberRole(req.Role))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toMemberResponse(member))
}

// updateRoleRequest はロール変更リクエストのボディ。
type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateMemberRole はメンバーのロールを変更する。
// PATCH /dashboard/members/{id}
func (h *AccountHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	memberID := chi.URLParam(r, "id")

	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRoleError(""))
		return
	}

	if err := h.service.UpdateMemberRole(r.Context(), account.ID, memberID, model.MemberRole(req.Role)); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
