package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/teamgate/internal/authcode"
	"github.com/hitoshi/teamgate/internal/identity"
	"github.com/hitoshi/teamgate/internal/middleware"
	"github.com/hitoshi/teamgate/internal/model"
)

// --- モック ---

type mockAuthCodeService struct {
	requestCodeFn func(ctx context.Context, email string) (string, error)
	verifyCodeFn  func(ctx context.Context, challengeID, code string) (*model.AuthClaim, error)
	resendCodeFn  func(ctx context.Context, challengeID string) error
}

func (m *mockAuthCodeService) RequestCode(ctx context.Context, email string) (string, error) {
	if m.requestCodeFn != nil {
		return m.requestCodeFn(ctx, email)
	}
	return "challenge-1", nil
}
func (m *mockAuthCodeService) VerifyCode(ctx context.Context, challengeID, code string) (*model.AuthClaim, error) {
	if m.verifyCodeFn != nil {
		return m.verifyCodeFn(ctx, challengeID, code)
	}
	return &model.AuthClaim{Email: "u1@u.com"}, nil
}
func (m *mockAuthCodeService) ResendCode(ctx context.Context, challengeID string) error {
	if m.resendCodeFn != nil {
		return m.resendCodeFn(ctx, challengeID)
	}
	return nil
}

type mockReconciler struct {
	reconcileFn func(ctx context.Context, claim *model.AuthClaim) (*identity.Result, error)
}

func (m *mockReconciler) Reconcile(ctx context.Context, claim *model.AuthClaim) (*identity.Result, error) {
	if m.reconcileFn != nil {
		return m.reconcileFn(ctx, claim)
	}
	return &identity.Result{
		User:    &model.User{ID: "u1", Email: claim.Email, UserType: model.UserTypeUser},
		Account: &model.Account{ID: "a1", UserID: "u1"},
		Member:  &model.AccountMember{ID: "m1", UserID: "u1", AccountID: "a1", Role: model.MemberRoleOwner},
	}, nil
}

type mockDevLookup struct {
	code string
	err  error
}

func (m *mockDevLookup) LookupCode(ctx context.Context, email string) (string, error) {
	return m.code, m.err
}

func newTestAuthHandler(codeSvc AuthCodeServiceInterface, rec ReconcilerInterface) *AuthHandler {
	return NewAuthHandler(codeSvc, rec, nil, nil, AuthHandlerConfig{
		BaseURL:      "http://localhost:3000",
		ChallengeTTL: 10 * time.Minute,
	})
}

func sessionContext(req *http.Request, sess *middleware.Session) *http.Request {
	return req.WithContext(middleware.ContextWithSession(req.Context(), sess))
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- テスト ---

func TestRequestCode_SetsChallengeCookie(t *testing.T) {
	h := newTestAuthHandler(&mockAuthCodeService{
		requestCodeFn: func(ctx context.Context, email string) (string, error) {
			if email != "u1@u.com" {
				t.Errorf("email = %q, want u1@u.com", email)
			}
			return "challenge-xyz", nil
		},
	}, &mockReconciler{})

	req := httptest.NewRequest(http.MethodPost, "/authenticate", strings.NewReader(`{"email":"u1@u.com"}`))
	w := httptest.NewRecorder()
	h.RequestCode(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}

	cookie := findCookie(resp, challengeCookieName)
	if cookie == nil {
		t.Fatal("challenge cookie should be set")
	}
	if cookie.Value != "challenge-xyz" {
		t.Errorf("challenge cookie = %q, want challenge-xyz", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("challenge cookie should be HttpOnly")
	}
	if cookie.MaxAge != 600 {
		t.Errorf("challenge cookie MaxAge = %d, want 600", cookie.MaxAge)
	}
}

func TestRequestCode_InvalidEmail_Returns400(t *testing.T) {
	h := newTestAuthHandler(&mockAuthCodeService{
		requestCodeFn: func(ctx context.Context, email string) (string, error) {
			return "", model.NewInvalidEmailError()
		},
	}, &mockReconciler{})

	req := httptest.NewRequest(http.MethodPost, "/authenticate", strings.NewReader(`{"email":"not-an-email"}`))
	w := httptest.NewRecorder()
	h.RequestCode(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Result().StatusCode)
	}
	if findCookie(w.Result(), challengeCookieName) != nil {
		t.Error("challenge cookie must not be set on failure")
	}
}

func TestRequestCode_MalformedBody_Returns400(t *testing.T) {
	h := newTestAuthHandler(&mockAuthCodeService{}, &mockReconciler{})

	req := httptest.NewRequest(http.MethodPost, "/authenticate", strings.NewReader(`{`))
	w := httptest.NewRecorder()
	h.RequestCode(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Result().StatusCode)
	}
}

func TestCallback_Success_EstablishesSession(t *testing.T) {
	var verifiedChallenge, verifiedCode string
	h := newTestAuthHandler(&mockAuthCodeService{
		verifyCodeFn: func(ctx context.Context, challengeID, code string) (*model.AuthClaim, error) {
			verifiedChallenge = challengeID
			verifiedCode = code
			return &model.AuthClaim{Email: "u1@u.com"}, nil
		},
	}, &mockReconciler{})

	sess := &middleware.Session{ID: "s1", Data: &model.SessionData{}}
	req := httptest.NewRequest(http.MethodGet, "/callback?code=123456", nil)
	req.AddCookie(&http.Cookie{Name: challengeCookieName, Value: "challenge-xyz"})
	req = sessionContext(req, sess)

	w := httptest.NewRecorder()
	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "http://localhost:3000" {
		t.Errorf("Location = %q, want base URL", loc)
	}
	if verifiedChallenge != "challenge-xyz" || verifiedCode != "123456" {
		t.Errorf("verified (%q, %q), want (challenge-xyz, 123456)", verifiedChallenge, verifiedCode)
	}

	// セッションに認証済みユーザーが載ること
	if sess.User() == nil || sess.User().UserID != "u1" || sess.User().Role != model.UserTypeUser {
		t.Errorf("session user = %+v, want u1 with role user", sess.User())
	}

	// チャレンジCookieが破棄されること
	cookie := findCookie(resp, challengeCookieName)
	if cookie == nil || cookie.MaxAge != -1 {
		t.Error("challenge cookie should be expired after a successful exchange")
	}
}

func TestCallback_InvalidCode_Returns401(t *testing.T) {
	h := newTestAuthHandler(&mockAuthCodeService{
		verifyCodeFn: func(ctx context.Context, challengeID, code string) (*model.AuthClaim, error) {
			return nil, model.NewCodeInvalidError()
		},
	}, &mockReconciler{})

	sess := &middleware.Session{ID: "s1", Data: &model.SessionData{}}
	req := httptest.NewRequest(http.MethodGet, "/callback?code=000000", nil)
	req.AddCookie(&http.Cookie{Name: challengeCookieName, Value: "challenge-xyz"})
	req = sessionContext(req, sess)

	w := httptest.NewRecorder()
	h.Callback(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
	if sess.User() != nil {
		t.Error("failed verification must not authenticate the session")
	}
}

func TestCallback_MissingCode_Returns400(t *testing.T) {
	h := newTestAuthHandler(&mockAuthCodeService{
		verifyCodeFn: func(ctx context.Context, challengeID, code string) (*model.AuthClaim, error) {
			return nil, model.NewCodeMissingError()
		},
	}, &mockReconciler{})

	sess := &middleware.Session{ID: "s1", Data: &model.SessionData{}}
	req := sessionContext(httptest.NewRequest(http.MethodGet, "/callback", nil), sess)

	w := httptest.NewRecorder()
	h.Callback(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Result().StatusCode)
	}
}

func TestCallback_ReconcileFailure_FailsLogin(t *testing.T) {
	h := newTestAuthHandler(&mockAuthCodeService{}, &mockReconciler{
		reconcileFn: func(ctx context.Context, claim *model.AuthClaim) (*identity.Result, error) {
			return nil, model.NewIdentityIntegrityError()
		},
	})

	sess := &middleware.Session{ID: "s1", Data: &model.SessionData{}}
	req := httptest.NewRequest(http.MethodGet, "/callback?code=123456", nil)
	req.AddCookie(&http.Cookie{Name: challengeCookieName, Value: "challenge-xyz"})
	req = sessionContext(req, sess)

	w := httptest.NewRecorder()
	h.Callback(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Result().StatusCode)
	}
	if sess.User() != nil {
		t.Error("a failed reconciliation must not authenticate the session")
	}
}

func TestCallback_WithdrawnUser_Returns403(t *testing.T) {
	h := newTestAuthHandler(&mockAuthCodeService{}, &mockReconciler{
		reconcileFn: func(ctx context.Context, claim *model.AuthClaim) (*identity.Result, error) {
			return nil, model.NewUserWithdrawnError()
		},
	})

	sess := &middleware.Session{ID: "s1", Data: &model.SessionData{}}
	req := httptest.NewRequest(http.MethodGet, "/callback?code=123456", nil)
	req.AddCookie(&http.Cookie{Name: challengeCookieName, Value: "challenge-xyz"})
	req = sessionContext(req, sess)

	w := httptest.NewRecorder()
	h.Callback(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Result().StatusCode)
	}
}

func TestResendCode_NoChallengeCookie_Returns401(t *testing.T) {
	h := newTestAuthHandler(&mockAuthCodeService{
		resendCodeFn: func(ctx context.Context, challengeID string) error {
			t.Error("resend should not be called without a challenge")
			return nil
		},
	}, &mockReconciler{})

	w := httptest.NewRecorder()
	h.ResendCode(w, httptest.NewRequest(http.MethodPost, "/authenticate/resend", nil))

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

func TestResendCode_Success(t *testing.T) {
	var resent string
	h := newTestAuthHandler(&mockAuthCodeService{
		resendCodeFn: func(ctx context.Context, challengeID string) error {
			resent = challengeID
			return nil
		},
	}, &mockReconciler{})

	req := httptest.NewRequest(http.MethodPost, "/authenticate/resend", nil)
	req.AddCookie(&http.Cookie{Name: challengeCookieName, Value: "challenge-xyz"})
	w := httptest.NewRecorder()
	h.ResendCode(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Result().StatusCode)
	}
	if resent != "challenge-xyz" {
		t.Errorf("resent challenge = %q, want challenge-xyz", resent)
	}
}

func TestSignout_ClearsSessionUser(t *testing.T) {
	h := newTestAuthHandler(&mockAuthCodeService{}, &mockReconciler{})

	sess := &middleware.Session{ID: "s1", Data: &model.SessionData{
		SessionUser: &model.SessionUser{UserID: "u1", Email: "u1@u.com", Role: model.UserTypeUser},
	}}
	req := sessionContext(httptest.NewRequest(http.MethodPost, "/signout", nil), sess)

	w := httptest.NewRecorder()
	h.Signout(w, req)

	if w.Result().StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", w.Result().StatusCode)
	}
	if sess.User() != nil {
		t.Error("signout should clear the session user")
	}
}

func TestMe_Authenticated_ReturnsSessionUser(t *testing.T) {
	h := newTestAuthHandler(&mockAuthCodeService{}, &mockReconciler{})

	sess := &middleware.Session{ID: "s1", Data: &model.SessionData{
		SessionUser: &model.SessionUser{UserID: "u1", Email: "u1@u.com", Role: model.UserTypeAdmin},
	}}
	req := sessionContext(httptest.NewRequest(http.MethodGet, "/auth/me", nil), sess)

	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Result().StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["userId"] != "u1" || body["email"] != "u1@u.com" || body["role"] != "admin" {
		t.Errorf("body = %v, want u1/u1@u.com/admin", body)
	}
}

func TestMe_Unauthenticated_Returns401(t *testing.T) {
	h := newTestAuthHandler(&mockAuthCodeService{}, &mockReconciler{})

	sess := &middleware.Session{ID: "s1", Data: &model.SessionData{}}
	req := sessionContext(httptest.NewRequest(http.MethodGet, "/auth/me", nil), sess)

	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

func TestDevCode_ReturnsIssuedCode(t *testing.T) {
	h := NewAuthHandler(&mockAuthCodeService{}, &mockReconciler{}, &mockDevLookup{code: "654321"}, nil, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/auth/dev/code?email=u1@u.com", nil)
	w := httptest.NewRecorder()
	h.DevCode(w, req)

	var body map[string]string
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["code"] != "654321" {
		t.Errorf("code = %q, want 654321", body["code"])
	}
}

// 保留中コードが無い場合は空コードの200ではなく404を返すこと
func TestDevCode_NoPendingCode_Returns404(t *testing.T) {
	h := NewAuthHandler(&mockAuthCodeService{}, &mockReconciler{},
		&mockDevLookup{err: authcode.ErrChallengeNotFound}, nil, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/auth/dev/code?email=u1@u.com", nil)
	w := httptest.NewRecorder()
	h.DevCode(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Result().StatusCode)
	}
	if body := w.Body.String(); strings.Contains(body, `"code":""`) {
		t.Errorf("body should not contain an empty code: %s", body)
	}
}

func TestDevCode_WithoutLookup_Returns404(t *testing.T) {
	h := newTestAuthHandler(&mockAuthCodeService{}, &mockReconciler{})

	w := httptest.NewRecorder()
	h.DevCode(w, httptest.NewRequest(http.MethodGet, "/auth/dev/code?email=u1@u.com", nil))

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Result().StatusCode)
	}
}
