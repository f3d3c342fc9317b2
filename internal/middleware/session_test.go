package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/teamgate/internal/model"
	"github.com/hitoshi/teamgate/internal/session"
)

func newSessionTestKit(t *testing.T) (*session.CookieCodec, *session.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	codec := session.NewCookieCodec("test-secret", session.CookieConfig{MaxAge: 5 * time.Minute})
	store := session.NewStore(client, 5*time.Minute)
	return codec, store, mr
}

func issuedCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("session cookie was not issued")
	return nil
}

func TestSessionMiddleware_NoCookie_SynthesizesSession(t *testing.T) {
	codec, store, _ := newSessionTestKit(t)
	mw := NewSessionMiddleware(codec, store, nil)

	var sessID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := SessionFromContext(r.Context())
		if err != nil {
			t.Fatalf("session not exposed to handler: %v", err)
		}
		sessID = sess.ID
		if sess.User() != nil {
			t.Error("fresh session should be unauthenticated")
		}
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if sessID == "" {
		t.Fatal("session ID should be synthesized for cookieless requests")
	}

	// 発行されたCookieから同じセッションIDが読み戻せること
	cookie := issuedCookie(t, w)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	gotID, ok := codec.Read(req)
	if !ok || gotID != sessID {
		t.Errorf("cookie round trip = (%q, %v), want (%q, true)", gotID, ok, sessID)
	}
}

func TestSessionMiddleware_CookieReissuedBeforeHandler(t *testing.T) {
	codec, store, _ := newSessionTestKit(t)
	mw := NewSessionMiddleware(codec, store, nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// ハンドラ実行時点で既にSet-Cookieが書き込まれていること
		if len(w.Header().Values("Set-Cookie")) == 0 {
			t.Error("cookie should be issued before the handler runs")
		}
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestSessionMiddleware_MutatedSession_PersistedOnce(t *testing.T) {
	codec, store, _ := newSessionTestKit(t)
	mw := NewSessionMiddleware(codec, store, nil)

	var sessID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := SessionFromContext(r.Context())
		sessID = sess.ID
		sess.SetUser(&model.SessionUser{UserID: "u1", Email: "u1@u.com", Role: model.UserTypeUser})
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	data, err := store.Get(context.Background(), sessID)
	if err != nil {
		t.Fatalf("store read failed: %v", err)
	}
	if !data.IsAuthenticated() || data.SessionUser.UserID != "u1" {
		t.Errorf("persisted session = %+v, want authenticated u1", data)
	}
}

func TestSessionMiddleware_UnchangedSession_NotWritten(t *testing.T) {
	codec, store, mr := newSessionTestKit(t)
	mw := NewSessionMiddleware(codec, store, nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	// 変更が無ければKVストアには何も書かれない
	if got := len(mr.Keys()); got != 0 {
		t.Errorf("store keys = %d, want 0 (unchanged session must not be written)", got)
	}
}

func TestSessionMiddleware_ExistingSession_LoadedAndExposed(t *testing.T) {
	codec, store, _ := newSessionTestKit(t)
	mw := NewSessionMiddleware(codec, store, nil)

	sessID, err := session.GenerateSessionID()
	if err != nil {
		t.Fatal(err)
	}
	seed := &model.SessionData{SessionUser: &model.SessionUser{UserID: "u1", Email: "u1@u.com", Role: model.UserTypeAdmin}}
	if err := store.Put(context.Background(), sessID, seed); err != nil {
		t.Fatal(err)
	}
	cookie, err := codec.Issue(sessID)
	if err != nil {
		t.Fatal(err)
	}

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := SessionFromContext(r.Context())
		if sess.ID != sessID {
			t.Errorf("session ID = %q, want %q", sess.ID, sessID)
		}
		if sess.User() == nil || sess.User().Role != model.UserTypeAdmin {
			t.Errorf("session user = %+v, want admin u1", sess.User())
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestSessionMiddleware_TamperedCookie_TreatedAsNewSession(t *testing.T) {
	codec, store, _ := newSessionTestKit(t)
	mw := NewSessionMiddleware(codec, store, nil)

	var sessID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := SessionFromContext(r.Context())
		sessID = sess.ID
		if sess.User() != nil {
			t.Error("tampered cookie must not yield an authenticated session")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "not-a-signed-token"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if sessID == "" {
		t.Error("a fresh session ID should replace the tampered cookie")
	}
}

func TestSessionMiddleware_StoreDown_FailsClosed(t *testing.T) {
	codec, store, mr := newSessionTestKit(t)
	mw := NewSessionMiddleware(codec, store, nil)

	sessID, _ := session.GenerateSessionID()
	seed := &model.SessionData{SessionUser: &model.SessionUser{UserID: "u1", Email: "u1@u.com", Role: model.UserTypeUser}}
	if err := store.Put(context.Background(), sessID, seed); err != nil {
		t.Fatal(err)
	}
	cookie, _ := codec.Issue(sessID)

	// ストアを落とすと認証済みCookieでも未認証として扱われること
	mr.Close()

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := SessionFromContext(r.Context())
		if sess.User() != nil {
			t.Error("store outage must fail closed to unauthenticated")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestSessionMiddleware_ClearUser_PersistsEmptySession(t *testing.T) {
	codec, store, _ := newSessionTestKit(t)
	mw := NewSessionMiddleware(codec, store, nil)

	sessID, _ := session.GenerateSessionID()
	seed := &model.SessionData{SessionUser: &model.SessionUser{UserID: "u1", Email: "u1@u.com", Role: model.UserTypeUser}}
	if err := store.Put(context.Background(), sessID, seed); err != nil {
		t.Fatal(err)
	}
	cookie, _ := codec.Issue(sessID)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := SessionFromContext(r.Context())
		sess.ClearUser()
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	data, err := store.Get(context.Background(), sessID)
	if err != nil {
		t.Fatal(err)
	}
	if data.IsAuthenticated() {
		t.Error("cleared session should be persisted without a user")
	}
}
