package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pola2025/zipcheck-sub000/store"
	redisstore "github.com/pola2025/zipcheck-sub000/store/redis"
	"github.com/pola2025/zipcheck-sub000/store/storetest"
)

var _ store.Store = (*redisstore.Store)(nil)

func newStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.New(client), mr
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newStore(t)
		return s
	})
}

func TestIdemKeyReleasedOnCancel(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	j := storetest.NewJob("key-redis")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatal(err)
	}
	if got, err := mr.Get("zipcheck:idem:key-redis"); err != nil || got != j.ID.String() {
		t.Fatalf("idem holder = %q, %v; want %s", got, err, j.ID)
	}

	if _, err := s.RequestAbort(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("zipcheck:idem:key-redis") {
		t.Fatal("idem key still held after cancel")
	}
}

func TestPing(t *testing.T) {
	s, _ := newStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
