// Package participanttest provides a Redis-backed participant store for
// tests, running against an in-process miniredis.
package participanttest

import (
	"context"
	"testing"

	"participant-auth/internal/participant"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// NewStore returns an empty store that is torn down with the test.
func NewStore(t testing.TB) *participant.RedisStore {
	t.Helper()

	store, _ := NewStoreWithServer(t)
	return store
}

// NewStoreWithServer is NewStore that also hands back the miniredis
// server, for tests that inspect keys directly.
func NewStoreWithServer(t testing.TB) (*participant.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return participant.NewRedisStore(rdb), mr
}

// Make registers a participant or fails the test.
func Make(t testing.TB, s participant.Store, np participant.NewParticipant) *participant.Participant {
	t.Helper()

	p, err := s.Create(context.Background(), np)
	if err != nil {
		t.Fatalf("create participant %q: %v", np.Username, err)
	}
	return p
}
