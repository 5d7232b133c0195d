package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"nexerp.io/internal/auth"
)

func setupStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func TestSaveAndOwner(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "user-1", "tokenA", time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	owner, err := store.Owner(ctx, "tokenA")
	if err != nil {
		t.Fatalf("Owner: %v", err)
	}
	if owner != "user-1" {
		t.Fatalf("unexpected owner: %s", owner)
	}
}

func TestOwnerUnknownToken(t *testing.T) {
	store, _ := setupStore(t)

	if _, err := store.Owner(context.Background(), "never-issued"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveSupersedesPreviousToken(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "user-1", "tokenA", time.Hour); err != nil {
		t.Fatalf("Save tokenA: %v", err)
	}
	if err := store.Save(ctx, "user-1", "tokenB", time.Hour); err != nil {
		t.Fatalf("Save tokenB: %v", err)
	}

	if _, err := store.Owner(ctx, "tokenA"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("superseded token still resolves, err=%v", err)
	}
	owner, err := store.Owner(ctx, "tokenB")
	if err != nil || owner != "user-1" {
		t.Fatalf("new token should resolve: owner=%s err=%v", owner, err)
	}
}

func TestTokenExpires(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "user-1", "tokenA", time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Owner(ctx, "tokenA"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected expired token to be unknown, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "user-1", "tokenA", time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Revoke(ctx, "user-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := store.Owner(ctx, "tokenA"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("revoked token still resolves, err=%v", err)
	}

	// Revoking again is a no-op.
	if err := store.Revoke(ctx, "user-1"); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New(Config{URL: "not-a-url"}); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}
