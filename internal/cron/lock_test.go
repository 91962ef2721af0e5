package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryLockStore) LockKey(name string) string {
	return "unitpay:lock:" + name
}

func TestRedisLockAcquireRelease(t *testing.T) {
	store := newMemoryLockStore()
	ctx := context.Background()
	first, err := NewRedisLock(store, "cron", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "cron", time.Minute)

	if first.Key() != "unitpay:lock:cron" {
		t.Fatalf("unexpected key %s", first.Key())
	}
	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to win, ok=%v err=%v", ok, err)
	}
	if store.ttls[first.Key()] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v", store.ttls[first.Key()])
	}
	if !strings.Contains(store.values[first.Key()], "/") {
		t.Fatalf("expected host-qualified owner, got %q", store.values[first.Key()])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("expected second acquire to lose")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release without ownership should be a no-op: %v", err)
	}
	if _, ok := store.values[first.Key()]; !ok {
		t.Fatal("non-owner release must not delete the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := store.values[first.Key()]; ok {
		t.Fatal("expected lock to be deleted")
	}
}

func TestRedisLockLeavesTakenOverLock(t *testing.T) {
	store := newMemoryLockStore()
	ctx := context.Background()
	lock, _ := NewRedisLock(store, "cron", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	store.values[lock.Key()] = "other-host/owner"

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values[lock.Key()] != "other-host/owner" {
		t.Fatal("lock owned by another replica must survive")
	}
}

func TestNewRedisLockValidation(t *testing.T) {
	if _, err := NewRedisLock(nil, "cron", 0); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := NewRedisLock(newMemoryLockStore(), "", 0); err == nil {
		t.Fatal("expected error without name")
	}
}
