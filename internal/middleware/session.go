// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/teamgate/internal/model"
	"github.com/hitoshi/teamgate/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// Session はリクエストスコープの可変セッション。
// ハンドラはDataを書き換えることでセッション内容を変更でき、
// 変更はレスポンス確定後に一度だけKVストアへ書き込まれる。
type Session struct {
	ID   string
	Data *model.SessionData
}

// SetUser はセッションに認証済みユーザーを紐付ける。
func (s *Session) SetUser(user *model.SessionUser) {
	s.Data.SessionUser = user
}

// ClearUser はセッションから認証済みユーザーを外す。
func (s *Session) ClearUser() {
	s.Data.SessionUser = nil
}

// User は認証済みユーザーを返す。未認証の場合はnil。
func (s *Session) User() *model.SessionUser {
	if s == nil || s.Data == nil {
		return nil
	}
	return s.Data.SessionUser
}

// SessionMetrics はセッション書き込みのメトリクス記録インターフェース。
// nilを渡した場合は記録しない。
type SessionMetrics interface {
	RecordSessionWrite()
	RecordSessionWriteSkipped()
}

// NewSessionMiddleware はセッションのライフサイクルを管理するミドルウェアを返す。
//
// リクエストごとの処理:
//  1. 署名付きCookieからセッションIDを読み取る。無い・検証できない場合は新規発行する。
//  2. ハンドラ実行前に必ずCookieを再発行し、有効期限をスライドさせる。
//  3. KVストアからSessionDataを読み込む。無い場合は空から始める。
//     ストア障害時も空として扱う（フェイルクローズ: 未認証扱い）。
//  4. 可変セッションをコンテキスト経由でハンドラに公開する。
//  5. ハンドラ完了後、読み込み時のスナップショットと値比較し、
//     変化があった場合のみ一度だけ書き込む。
func NewSessionMiddleware(codec *session.CookieCodec, store *session.Store, collector SessionMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, ok := codec.Read(r)
			if !ok {
				var err error
				sessionID, err = session.GenerateSessionID()
				if err != nil {
					slog.Error("failed to generate session ID",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
			}

			// Cookieの再発行はハンドラ実行より先に行う。
			// ハンドラはセッションIDの存在を前提にできる。
			cookie, err := codec.Issue(sessionID)
			if err != nil {
				slog.Error("failed to issue session cookie",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			http.SetCookie(w, cookie)

			loaded, err := store.Get(r.Context(), sessionID)
			if err != nil {
				// ストア障害は「セッション無し」と同じ扱いにする
				slog.Warn("session store read failed, treating session as absent",
					slog.String("error", err.Error()),
				)
				loaded = nil
			}

			snapshot := loaded.Clone()
			sess := &Session{ID: sessionID, Data: loaded.Clone()}

			ctx := context.WithValue(r.Context(), sessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))

			// 変化が無ければ書き込まない
			if sess.Data.Equal(snapshot) {
				if collector != nil {
					collector.RecordSessionWriteSkipped()
				}
				return
			}
			if collector != nil {
				collector.RecordSessionWrite()
			}
			if err := store.Put(r.Context(), sessionID, sess.Data); err != nil {
				slog.Error("failed to persist session",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
		})
	}
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (*Session, error) {
	sess, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok || sess == nil {
		return nil, fmt.Errorf("session not found in context")
	}
	return sess, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}
