// Package authcode はワンタイムコードによるチャレンジ・レスポンス認証を提供する。
package authcode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrChallengeNotFound はチャレンジが存在しない（期限切れ・未発行）ことを表す。
	ErrChallengeNotFound = errors.New("auth challenge not found")
	// ErrChallengeConsumed は検証成功済みのチャレンジへの再提出を表す。
	ErrChallengeConsumed = errors.New("auth challenge already consumed")
	// ErrCodeMismatch は提出されたコードが一致しないことを表す。
	ErrCodeMismatch = errors.New("auth code mismatch")
	// ErrAttemptsExceeded は試行回数が上限に達したことを表す。
	ErrAttemptsExceeded = errors.New("auth code attempts exceeded")
	// ErrStoreUnavailable はKVストアに到達できないことを表す。
	ErrStoreUnavailable = errors.New("auth code store unavailable")
)

const challengeKeyPrefix = "authcode:"

// consumeChallengeLua はGET→照合→消費/試行加算をアトミックに行う。
// KEYS[1] = チャレンジキー
// ARGV[1] = 提出コードのハッシュ（hex）
// ARGV[2] = 試行回数上限
// ARGV[3] = 消費済みマーカーのTTL（秒）
//
// 戻り値: 成功時はemail、失敗時はエラー文字列
// {err='not_found'} / {err='consumed'} / {err='mismatch'} / {err='attempts_exceeded'}
//
// 照合成功時はemailとcode_hashを消費済みマーカーに置き換える。
// 再提出はconsumedになり、キーが自然失効した後はnot_foundになる。
var consumeChallengeLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
if redis.call('HGET', KEYS[1], 'consumed') then
  return {err='consumed'}
end

local stored = redis.call('HGET', KEYS[1], 'code_hash')
if stored == ARGV[1] then
  local email = redis.call('HGET', KEYS[1], 'email')
  redis.call('DEL', KEYS[1])
  redis.call('HSET', KEYS[1], 'consumed', 1)
  redis.call('EXPIRE', KEYS[1], ARGV[3])
  return email
end

local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if attempts >= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  return {err='attempts_exceeded'}
end
return {err='mismatch'}
`)

// CodeStore はRedisをバックエンドとする認証チャレンジストア。
// チャレンジIDごとにemailとコードのハッシュを保持し、TTLで自動失効する。
type CodeStore struct {
	client      redis.UniversalClient
	ttl         time.Duration
	maxAttempts int
}

// NewCodeStore はCodeStoreを生成する。
func NewCodeStore(client redis.UniversalClient, ttl time.Duration, maxAttempts int) *CodeStore {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &CodeStore{client: client, ttl: ttl, maxAttempts: maxAttempts}
}

func challengeKey(challengeID string) string {
	return challengeKeyPrefix + challengeID
}

// Save は新しいチャレンジをTTL付きで保存する。
func (s *CodeStore) Save(ctx context.Context, challengeID, email, codeHash string) error {
	key := challengeKey(challengeID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "email", email, "code_hash", codeHash, "attempts", 0)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Consume は提出コードを照合し、成功時はチャレンジを消費してemailを返す。
// コードはシングルユースで、照合成功後の再提出はErrChallengeConsumedになる。
// 消費済みマーカーは元のTTLと同じ寿命で残り、失効後はErrChallengeNotFoundに戻る。
func (s *CodeStore) Consume(ctx context.Context, challengeID, codeHash string) (string, error) {
	result, err := consumeChallengeLua.Run(ctx, s.client,
		[]string{challengeKey(challengeID)},
		codeHash, s.maxAttempts, int(s.ttl.Seconds()),
	).Result()

	if err != nil {
		switch err.Error() {
		case "not_found":
			return "", ErrChallengeNotFound
		case "consumed":
			return "", ErrChallengeConsumed
		case "mismatch":
			return "", ErrCodeMismatch
		case "attempts_exceeded":
			return "", ErrAttemptsExceeded
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	email, ok := result.(string)
	if !ok || email == "" {
		return "", ErrChallengeNotFound
	}
	return email, nil
}

// Rotate は保留中チャレンジのコードハッシュを差し替え、emailを返す。
// キーのTTLと試行回数はそのまま維持される（再送でコード寿命は延びない）。
func (s *CodeStore) Rotate(ctx context.Context, challengeID, newCodeHash string) (string, error) {
	key := challengeKey(challengeID)

	email, err := s.client.HGet(ctx, key, "email").Result()
	if err == redis.Nil {
		return "", ErrChallengeNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := s.client.HSet(ctx, key, "code_hash", newCodeHash).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return email, nil
}
