package authcode

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDevDispatcher(t *testing.T) (*DevKVDispatcher, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewDevKVDispatcher(client, 10*time.Minute), mr
}

func TestDevKVDispatcher_DispatchThenLookup(t *testing.T) {
	d, _ := newDevDispatcher(t)
	ctx := context.Background()

	if err := d.DispatchCode(ctx, "u1@u.com", "123456"); err != nil {
		t.Fatalf("DispatchCode failed: %v", err)
	}

	code, err := d.LookupCode(ctx, "u1@u.com")
	if err != nil {
		t.Fatalf("LookupCode failed: %v", err)
	}
	if code != "123456" {
		t.Errorf("code = %q, want 123456", code)
	}
}

// 保留中コードが無いemailの照会はErrChallengeNotFoundになること
func TestDevKVDispatcher_LookupWithoutPendingCode(t *testing.T) {
	d, _ := newDevDispatcher(t)

	_, err := d.LookupCode(context.Background(), "nobody@u.com")
	if err != ErrChallengeNotFound {
		t.Errorf("error = %v, want ErrChallengeNotFound", err)
	}
}

func TestDevKVDispatcher_LookupAfterExpiry(t *testing.T) {
	d, mr := newDevDispatcher(t)
	ctx := context.Background()

	if err := d.DispatchCode(ctx, "u1@u.com", "123456"); err != nil {
		t.Fatalf("DispatchCode failed: %v", err)
	}

	mr.FastForward(time.Hour)

	if _, err := d.LookupCode(ctx, "u1@u.com"); err != ErrChallengeNotFound {
		t.Errorf("error = %v, want ErrChallengeNotFound", err)
	}
}
