package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequentialIDs returns auth-1, auth-2, ...
func sequentialIDs() func() (string, error) {
	var mu sync.Mutex
	n := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("auth-%d", n), nil
	}
}

func TestMemoryStore_Registration(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	t.Run("PutAndGet", func(t *testing.T) {
		require.NoError(t, store.PutRegistration("alice", []byte{1}, []byte{2}))

		reg, err := store.GetRegistration("alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", reg.User)
		assert.Equal(t, []byte{1}, reg.Y1)
		assert.Equal(t, []byte{2}, reg.Y2)
		assert.WithinDuration(t, time.Now(), reg.RegisteredAt, time.Second)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.PutRegistration("alice", []byte{3}, []byte{4}))
		require.NoError(t, store.PutRegistration("alice", []byte{3}, []byte{4}))

		reg, err := store.GetRegistration("alice")
		require.NoError(t, err)
		assert.Equal(t, []byte{3}, reg.Y1)
		assert.Equal(t, []byte{4}, reg.Y2)
		assert.Equal(t, 1, store.Stats().Users)
	})

	t.Run("CallerCannotMutateStoredCommitment", func(t *testing.T) {
		y1 := []byte{9}
		require.NoError(t, store.PutRegistration("carol", y1, []byte{9}))
		y1[0] = 0

		reg, err := store.GetRegistration("carol")
		require.NoError(t, err)
		assert.Equal(t, []byte{9}, reg.Y1)

		reg.Y1[0] = 0
		again, err := store.GetRegistration("carol")
		require.NoError(t, err)
		assert.Equal(t, []byte{9}, again.Y1)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := store.GetRegistration("nobody")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("ListUsers", func(t *testing.T) {
		users, err := store.ListUsers()
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "alice", users[0].User)
		assert.Equal(t, "carol", users[1].User)
	})
}

func TestMemoryStore_Challenges(t *testing.T) {
	store := NewMemoryStore(WithAuthIDGenerator(sequentialIDs()))
	defer store.Close()

	require.NoError(t, store.PutRegistration("alice", []byte{1}, []byte{2}))

	t.Run("UnregisteredUser", func(t *testing.T) {
		_, err := store.PutChallenge("nobody", []byte{1}, []byte{2}, []byte{3})
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.Equal(t, 0, store.Stats().AuthIDs)
	})

	t.Run("PutAndResolve", func(t *testing.T) {
		authID, err := store.PutChallenge("alice", []byte{5}, []byte{6}, []byte{7})
		require.NoError(t, err)
		assert.Equal(t, "auth-1", authID)

		user, err := store.ResolveAuthID(authID)
		require.NoError(t, err)
		assert.Equal(t, "alice", user)
	})

	t.Run("LatestChallengeWins", func(t *testing.T) {
		second, err := store.PutChallenge("alice", []byte{8}, []byte{9}, []byte{10})
		require.NoError(t, err)
		assert.Equal(t, "auth-2", second)

		_, err = store.ResolveAuthID("auth-1")
		assert.ErrorIs(t, err, ErrAuthIDNotFound)

		stats := store.Stats()
		assert.Equal(t, 1, stats.Challenges)
		assert.Equal(t, 1, stats.AuthIDs)

		ch, err := store.GetAndConsumeChallenge("alice")
		require.NoError(t, err)
		assert.Equal(t, "auth-2", ch.AuthID)
		assert.Equal(t, []byte{8}, ch.R1)
		assert.Equal(t, []byte{9}, ch.R2)
		assert.Equal(t, []byte{10}, ch.C)
	})

	t.Run("ConsumedChallengeIsGone", func(t *testing.T) {
		_, err := store.GetAndConsumeChallenge("alice")
		assert.ErrorIs(t, err, ErrChallengeNotFound)

		_, err = store.ResolveAuthID("auth-2")
		assert.ErrorIs(t, err, ErrAuthIDNotFound)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := store.GetAndConsumeChallenge("nobody")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("ReRegistrationKeepsChallenge", func(t *testing.T) {
		authID, err := store.PutChallenge("alice", []byte{1}, []byte{1}, []byte{1})
		require.NoError(t, err)
		require.NoError(t, store.PutRegistration("alice", []byte{7}, []byte{7}))

		user, err := store.ResolveAuthID(authID)
		require.NoError(t, err)
		assert.Equal(t, "alice", user)
	})
}

func TestMemoryStore_ConsumeAuthID(t *testing.T) {
	store := NewMemoryStore(WithAuthIDGenerator(sequentialIDs()))
	defer store.Close()

	require.NoError(t, store.PutRegistration("alice", []byte{1}, []byte{2}))
	authID, err := store.PutChallenge("alice", []byte{3}, []byte{4}, []byte{5})
	require.NoError(t, err)

	t.Run("Unknown", func(t *testing.T) {
		_, _, err := store.ConsumeAuthID("missing")
		assert.ErrorIs(t, err, ErrAuthIDNotFound)
		assert.Equal(t, 1, store.Stats().AuthIDs)
	})

	t.Run("Consume", func(t *testing.T) {
		reg, ch, err := store.ConsumeAuthID(authID)
		require.NoError(t, err)
		assert.Equal(t, []byte{1}, reg.Y1)
		assert.Equal(t, []byte{2}, reg.Y2)
		assert.Equal(t, authID, ch.AuthID)
		assert.Equal(t, "alice", ch.User)
		assert.Equal(t, []byte{5}, ch.C)

		stats := store.Stats()
		assert.Equal(t, 0, stats.Challenges)
		assert.Equal(t, 0, stats.AuthIDs)
	})

	t.Run("Replay", func(t *testing.T) {
		_, _, err := store.ConsumeAuthID(authID)
		assert.ErrorIs(t, err, ErrAuthIDNotFound)
	})

	t.Run("RegistrationSurvives", func(t *testing.T) {
		_, err := store.GetRegistration("alice")
		assert.NoError(t, err)
	})
}

func TestMemoryStore_Expiry(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(
		WithChallengeTTL(time.Minute),
		WithClock(clock.Now),
		WithAuthIDGenerator(sequentialIDs()),
	)
	defer store.Close()

	require.NoError(t, store.PutRegistration("alice", []byte{1}, []byte{2}))
	require.NoError(t, store.PutRegistration("bob", []byte{1}, []byte{2}))

	t.Run("ExpiredAuthIDActsUnknown", func(t *testing.T) {
		authID, err := store.PutChallenge("alice", []byte{1}, []byte{1}, []byte{1})
		require.NoError(t, err)

		clock.Advance(59 * time.Second)
		_, err = store.ResolveAuthID(authID)
		require.NoError(t, err)

		clock.Advance(time.Second)
		_, err = store.ResolveAuthID(authID)
		assert.ErrorIs(t, err, ErrAuthIDNotFound)
		assert.ErrorIs(t, err, ErrChallengeExpired)

		_, _, err = store.ConsumeAuthID(authID)
		assert.ErrorIs(t, err, ErrAuthIDNotFound)

		_, err = store.GetAndConsumeChallenge("alice")
		assert.ErrorIs(t, err, ErrChallengeNotFound)
	})

	t.Run("CleanupExpired", func(t *testing.T) {
		_, err := store.PutChallenge("alice", []byte{1}, []byte{1}, []byte{1})
		require.NoError(t, err)
		clock.Advance(30 * time.Second)
		fresh, err := store.PutChallenge("bob", []byte{1}, []byte{1}, []byte{1})
		require.NoError(t, err)
		clock.Advance(30 * time.Second)

		assert.Equal(t, 1, store.CleanupExpired())
		stats := store.Stats()
		assert.Equal(t, 1, stats.Challenges)
		assert.Equal(t, 1, stats.AuthIDs)

		user, err := store.ResolveAuthID(fresh)
		require.NoError(t, err)
		assert.Equal(t, "bob", user)
	})

	t.Run("ZeroTTLNeverExpires", func(t *testing.T) {
		forever := NewMemoryStore(WithChallengeTTL(0), WithClock(clock.Now))
		defer forever.Close()

		require.NoError(t, forever.PutRegistration("alice", []byte{1}, []byte{2}))
		authID, err := forever.PutChallenge("alice", []byte{1}, []byte{1}, []byte{1})
		require.NoError(t, err)

		clock.Advance(24 * time.Hour)
		assert.Equal(t, 0, forever.CleanupExpired())
		_, err = forever.ResolveAuthID(authID)
		assert.NoError(t, err)
	})
}

func TestMemoryStore_AuthIDGenerator(t *testing.T) {
	t.Run("DefaultIsUnique", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()
		require.NoError(t, store.PutRegistration("alice", []byte{1}, []byte{2}))

		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			id, err := store.PutChallenge("alice", []byte{1}, []byte{1}, []byte{1})
			require.NoError(t, err)
			require.False(t, seen[id])
			seen[id] = true
		}
	})

	t.Run("Collision", func(t *testing.T) {
		store := NewMemoryStore(WithAuthIDGenerator(func() (string, error) {
			return "same", nil
		}))
		defer store.Close()
		require.NoError(t, store.PutRegistration("alice", []byte{1}, []byte{2}))
		require.NoError(t, store.PutRegistration("bob", []byte{1}, []byte{2}))

		_, err := store.PutChallenge("alice", []byte{1}, []byte{1}, []byte{1})
		require.NoError(t, err)

		_, err = store.PutChallenge("bob", []byte{1}, []byte{1}, []byte{1})
		assert.ErrorIs(t, err, ErrAuthIDCollision)

		// alice's challenge is untouched
		user, err := store.ResolveAuthID("same")
		require.NoError(t, err)
		assert.Equal(t, "alice", user)
	})

	t.Run("GeneratorError", func(t *testing.T) {
		boom := errors.New("entropy exhausted")
		store := NewMemoryStore(WithAuthIDGenerator(func() (string, error) {
			return "", boom
		}))
		defer store.Close()
		require.NoError(t, store.PutRegistration("alice", []byte{1}, []byte{2}))

		_, err := store.PutChallenge("alice", []byte{1}, []byte{1}, []byte{1})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, store.Stats().Challenges)
	})
}

func TestMemoryStore_Concurrency(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	const users = 50
	var wg sync.WaitGroup

	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)

			if err := store.PutRegistration(user, []byte{byte(i)}, []byte{byte(i)}); err != nil {
				t.Errorf("register %s: %v", user, err)
				return
			}
			authID, err := store.PutChallenge(user, []byte{1}, []byte{2}, []byte{byte(i)})
			if err != nil {
				t.Errorf("challenge %s: %v", user, err)
				return
			}
			reg, ch, err := store.ConsumeAuthID(authID)
			if err != nil {
				t.Errorf("consume %s: %v", user, err)
				return
			}
			if reg.User != user || ch.User != user || ch.C[0] != byte(i) {
				t.Errorf("cross-talk for %s: got %s/%s", user, reg.User, ch.User)
			}
		}(i)
	}

	wg.Wait()

	stats := store.Stats()
	assert.Equal(t, users, stats.Users)
	assert.Equal(t, 0, stats.Challenges)
	assert.Equal(t, 0, stats.AuthIDs)
}

func TestMemoryStore_Run(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(WithChallengeTTL(20*time.Millisecond), WithClock(clock.Now))

	require.NoError(t, store.PutRegistration("alice", []byte{1}, []byte{2}))
	_, err := store.PutChallenge("alice", []byte{1}, []byte{1}, []byte{1})
	require.NoError(t, err)
	clock.Advance(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- store.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return store.Stats().Challenges == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after Close")
	}
}
