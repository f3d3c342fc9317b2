package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/teamgate/internal/identity"
	"github.com/hitoshi/teamgate/internal/middleware"
	"github.com/hitoshi/teamgate/internal/model"
)

// challengeCookieName はコードフロー中のチャレンジIDを運ぶCookieの名前。
// メールアドレス自体はCookieに載せない。
const challengeCookieName = "authChallenge"

// AuthCodeServiceInterface は認証ハンドラーが必要とするコードフローのインターフェース。
type AuthCodeServiceInterface interface {
	RequestCode(ctx context.Context, email string) (string, error)
	VerifyCode(ctx context.Context, challengeID, code string) (*model.AuthClaim, error)
	ResendCode(ctx context.Context, challengeID string) error
}

// ReconcilerInterface は検証済みclaimのidentity整合化インターフェース。
type ReconcilerInterface interface {
	Reconcile(ctx context.Context, claim *model.AuthClaim) (*identity.Result, error)
}

// DevCodeLookup はdevモード専用の発行コード参照インターフェース。
type DevCodeLookup interface {
	// LookupCode は保留中コードを返す。無い場合はエラーを返す。
	LookupCode(ctx context.Context, email string) (string, error)
}

// AuthMetrics は認証フローのメトリクス記録インターフェース。
// nilを渡した場合は記録しない。
type AuthMetrics interface {
	RecordCodeIssued()
	RecordCodeVerified()
	RecordCodeFailed(reason string)
	RecordReconcile(outcome string)
	RecordReconcileLatency(duration time.Duration)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string
	CookieSecure bool
	ChallengeTTL time.Duration // チャレンジCookieの有効期間
}

// AuthHandler はコードベース認証フローのHTTPハンドラー。
type AuthHandler struct {
	codeService AuthCodeServiceInterface
	reconciler  ReconcilerInterface
	devLookup   DevCodeLookup // devモード以外はnil
	collector   AuthMetrics
	config      AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(codeService AuthCodeServiceInterface, reconciler ReconcilerInterface, devLookup DevCodeLookup, collector AuthMetrics, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		codeService: codeService,
		reconciler:  reconciler,
		devLookup:   devLookup,
		collector:   collector,
		config:      config,
	}
}

// Begin は認証フローの入口。
// GET /authenticate
func (h *AuthHandler) Begin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "メールアドレスをPOSTすると認証コードを送信します。",
	})
}

// requestCodeRequest はコード発行リクエストのボディ。
type requestCodeRequest struct {
	Email string `json:"email"`
}

// RequestCode はワンタイムコードを発行してメールで送信する。
// チャレンジIDをCookieに保存し、/callbackでコードと突き合わせる。
// POST /authenticate
func (h *AuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidEmailError())
		return
	}

	challengeID, err := h.codeService.RequestCode(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordCodeIssued()
	}

	h.setChallengeCookie(w, challengeID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "認証コードを送信しました。",
	})
}

// ResendCode は進行中のチャレンジのコードを再発行する。
// チャレンジの有効期限は延長しない。
// POST /authenticate/resend
func (h *AuthHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	challengeID := h.readChallengeCookie(r)
	if challengeID == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewChallengeNotFoundError())
		return
	}

	if err := h.codeService.ResendCode(r.Context(), challengeID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "認証コードを再送信しました。",
	})
}

// Callback はコードを検証し、identityを整合化してセッションを確立する。
// GET /callback?code=xxx
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		slog.Error("session middleware missing on callback route")
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewStoreUnavailableError())
		return
	}

	code := r.URL.Query().Get("code")
	challengeID := h.readChallengeCookie(r)

	claim, err := h.codeService.VerifyCode(r.Context(), challengeID, code)
	if err != nil {
		if h.collector != nil {
			h.collector.RecordCodeFailed(failureReason(err))
		}
		handleServiceError(w, err)
		return
	}
	if h.collector != nil {
		h.collector.RecordCodeVerified()
	}

	// チャレンジは消費済みなのでCookieを破棄する
	h.clearChallengeCookie(w)

	start := time.Now()
	result, err := h.reconciler.Reconcile(r.Context(), claim)
	if h.collector != nil {
		h.collector.RecordReconcileLatency(time.Since(start))
	}
	if err != nil {
		if h.collector != nil {
			h.collector.RecordReconcile("failed")
		}
		handleServiceError(w, err)
		return
	}
	if h.collector != nil {
		h.collector.RecordReconcile("ok")
	}

	sess.SetUser(&model.SessionUser{
		UserID: result.User.ID,
		Email:  result.User.Email,
		Role:   result.User.UserType,
	})

	slog.Info("セッションを確立しました",
		slog.String("user_id", result.User.ID),
	)

	http.Redirect(w, r, h.config.BaseURL, http.StatusFound)
}

// Signout はセッションから認証済みユーザーを外す。
// POST /signout
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err == nil {
		sess.ClearUser()
	}

	http.Redirect(w, r, h.config.BaseURL, http.StatusFound)
}

// Me は現在のセッションに紐付くユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil || sess.User() == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証されていません。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return
	}

	u := sess.User()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"userId": u.UserID,
		"email":  u.Email,
		"role":   string(u.Role),
	})
}

// DevCode は発行済みコードをそのまま返す（devモード専用）。
// 本番ルーティングには決して組み込まないこと。
// GET /auth/dev/code?email=xxx
func (h *AuthHandler) DevCode(w http.ResponseWriter, r *http.Request) {
	if h.devLookup == nil {
		http.NotFound(w, r)
		return
	}

	email := r.URL.Query().Get("email")
	code, err := h.devLookup.LookupCode(r.Context(), email)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewChallengeNotFoundError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"email": email,
		"code":  code,
	})
}

func (h *AuthHandler) setChallengeCookie(w http.ResponseWriter, challengeID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     challengeCookieName,
		Value:    challengeID,
		Path:     "/",
		MaxAge:   int(h.config.ChallengeTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearChallengeCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     challengeCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) readChallengeCookie(r *http.Request) string {
	cookie, err := r.Cookie(challengeCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// failureReason はメトリクスラベル用にコード検証エラーを分類する。
func failureReason(err error) string {
	apiErr, ok := err.(*model.APIError)
	if !ok {
		return "internal"
	}
	switch apiErr.Code {
	case model.ErrCodeCodeExpired:
		return "expired"
	case model.ErrCodeCodeInvalid:
		return "invalid"
	case model.ErrCodeCodeMissing:
		return "missing"
	case model.ErrCodeCodeAttemptsExceeded:
		return "attempts_exceeded"
	case model.ErrCodeChallengeNotFound:
		return "challenge_not_found"
	default:
		return "internal"
	}
}
