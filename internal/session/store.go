// Package session はセッションデータのKVストア永続化と署名付きCookieを提供する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/teamgate/internal/model"
)

// ErrStoreUnavailable はKVストアに到達できないことを表す。
// 読み取り側はフェイルクローズド（セッションなし扱い）、
// 書き込み側はこのエラーをそのまま呼び出し元へ伝播する。
var ErrStoreUnavailable = errors.New("session store unavailable")

const (
	keyPrefix = "session:"

	// maxAttempts は一時的なI/O失敗に対する試行回数の上限。
	maxAttempts = 2
	// initialBackoff はリトライ前の初回待機時間。以後2倍ずつ増加する。
	initialBackoff = time.Second
)

// Store はRedisをバックエンドとするセッションストア。
// 値はJSONシリアライズしたSessionDataで、書き込みは常に丸ごと置き換える。
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewStore はStoreを生成する。ttlはセッションエントリの固定有効期間。
func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// TTL はセッションエントリの有効期間を返す。
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func sessionKey(sessionID string) string {
	return keyPrefix + sessionID
}

// Get はセッションデータを取得する。TTL切れ・未登録の場合はnilを返す。
// ストア到達不能時はErrStoreUnavailableを返す。呼び出し側は
// エラー由来の不在とTTL由来の不在を同一に扱うこと（フェイルクローズド）。
func (s *Store) Get(ctx context.Context, sessionID string) (*model.SessionData, error) {
	raw, err := retry(ctx, func() (string, error) {
		return s.client.Get(ctx, sessionKey(sessionID)).Result()
	})
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	data := &model.SessionData{}
	if err := json.Unmarshal([]byte(raw), data); err != nil {
		// 壊れたエントリはセッションなしとして扱い、次の書き込みで上書きされる
		slog.Warn("corrupt session entry discarded",
			slog.String("session_id", sessionID),
		)
		return nil, nil
	}

	return data, nil
}

// Put はセッションデータを固定TTL付きで書き込む。
// 以前の値とのマージは行わず、常に丸ごと置き換える。
func (s *Store) Put(ctx context.Context, sessionID string, data *model.SessionData) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}

	_, err = retry(ctx, func() (string, error) {
		return s.client.Set(ctx, sessionKey(sessionID), encoded, s.ttl).Result()
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete はセッションエントリを削除する。存在しないIDに対しても成功する（冪等）。
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := retry(ctx, func() (string, error) {
		return "", s.client.Del(ctx, sessionKey(sessionID)).Err()
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// retry は一時的な失敗に対して上限付きの指数バックオフでリトライする。
// redis.Nil（キー不在）はリトライ対象外としてそのまま返す。
func retry(ctx context.Context, op func() (string, error)) (string, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		result, err := op()
		if err == nil || err == redis.Nil {
			return result, err
		}
		lastErr = err
	}

	return "", lastErr
}

// GenerateSessionID は暗号的に安全な不透明セッションIDを生成する。
func GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
