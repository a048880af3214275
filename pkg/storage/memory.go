package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultChallengeTTL bounds how long a challenge may stay pending.
const DefaultChallengeTTL = 2 * time.Minute

// maxAuthIDAttempts bounds retries when a generated auth id is already taken.
const maxAuthIDAttempts = 4

// userRecord is the registration of one user plus at most one pending challenge.
type userRecord struct {
	reg     Registration
	pending *Challenge
}

// MemoryStore implements SessionStore using in-memory maps guarded by one
// lock. This is suitable for a single instance; state is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*userRecord
	authIDs map[string]string // auth id -> user

	ttl     time.Duration
	now     func() time.Time
	newID   func() (string, error)
	closeMu sync.Once
	done    chan struct{}
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithChallengeTTL sets the pending challenge lifetime. Zero disables expiry.
func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *MemoryStore) {
		s.ttl = ttl
	}
}

// WithAuthIDGenerator sets the auth id source. It must return unguessable ids.
func WithAuthIDGenerator(gen func() (string, error)) Option {
	return func(s *MemoryStore) {
		s.newID = gen
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(opts ...Option) *MemoryStore {
	store := &MemoryStore{
		users:   make(map[string]*userRecord),
		authIDs: make(map[string]string),
		ttl:     DefaultChallengeTTL,
		now:     time.Now,
		newID:   randomUUID,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func randomUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Run removes expired challenges periodically until ctx is cancelled or the
// store is closed.
func (s *MemoryStore) Run(ctx context.Context) error {
	if s.ttl <= 0 {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		return nil
	}

	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-ticker.C:
			s.CleanupExpired()
		}
	}
}

// PutRegistration stores or replaces the commitment for user
func (s *MemoryStore) PutRegistration(user string, y1, y2 []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := Registration{
		User:         user,
		Y1:           cloneBytes(y1),
		Y2:           cloneBytes(y2),
		RegisteredAt: s.now(),
	}

	if rec, exists := s.users[user]; exists {
		rec.reg = reg
		return nil
	}
	s.users[user] = &userRecord{reg: reg}
	return nil
}

// GetRegistration retrieves the commitment for user
func (s *MemoryStore) GetRegistration(user string) (*Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.users[user]
	if !exists {
		return nil, ErrUserNotFound
	}
	return rec.reg.clone(), nil
}

// PutChallenge stores a pending challenge and returns its auth id
func (s *MemoryStore) PutChallenge(user string, r1, r2, c []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.users[user]
	if !exists {
		return "", ErrUserNotFound
	}

	authID, err := s.allocateAuthID()
	if err != nil {
		return "", err
	}

	// Latest challenge wins: unlink the previous one.
	if rec.pending != nil {
		delete(s.authIDs, rec.pending.AuthID)
	}

	now := s.now()
	ch := &Challenge{
		AuthID:    authID,
		User:      user,
		R1:        cloneBytes(r1),
		R2:        cloneBytes(r2),
		C:         cloneBytes(c),
		CreatedAt: now,
	}
	if s.ttl > 0 {
		ch.ExpiresAt = now.Add(s.ttl)
	}

	rec.pending = ch
	s.authIDs[authID] = user
	return authID, nil
}

// allocateAuthID must be called with the write lock held.
func (s *MemoryStore) allocateAuthID() (string, error) {
	for i := 0; i < maxAuthIDAttempts; i++ {
		id, err := s.newID()
		if err != nil {
			return "", fmt.Errorf("failed to generate auth id: %w", err)
		}
		if id == "" {
			continue
		}
		if _, taken := s.authIDs[id]; !taken {
			return id, nil
		}
	}
	return "", ErrAuthIDCollision
}

// ResolveAuthID returns the user an outstanding auth id belongs to
func (s *MemoryStore) ResolveAuthID(authID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.authIDs[authID]
	if !exists {
		return "", ErrAuthIDNotFound
	}
	if rec, ok := s.users[user]; ok && rec.pending != nil && rec.pending.Expired(s.now()) {
		return "", ErrChallengeExpired
	}
	return user, nil
}

// GetAndConsumeChallenge removes and returns the pending challenge of user
func (s *MemoryStore) GetAndConsumeChallenge(user string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.users[user]
	if !exists {
		return nil, ErrUserNotFound
	}
	ch := rec.pending
	if ch == nil {
		return nil, ErrChallengeNotFound
	}

	rec.pending = nil
	delete(s.authIDs, ch.AuthID)

	if ch.Expired(s.now()) {
		return nil, ErrChallengeNotFound
	}
	return ch.clone(), nil
}

// ConsumeAuthID resolves authID and consumes the challenge it refers to.
// The auth id is removed whatever the outcome, so it can be used only once.
func (s *MemoryStore) ConsumeAuthID(authID string) (*Registration, *Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.authIDs[authID]
	if !exists {
		return nil, nil, ErrAuthIDNotFound
	}
	delete(s.authIDs, authID)

	rec, exists := s.users[user]
	if !exists {
		return nil, nil, ErrUserNotFound
	}

	ch := rec.pending
	if ch == nil || ch.AuthID != authID {
		return nil, nil, ErrChallengeNotFound
	}
	rec.pending = nil

	if ch.Expired(s.now()) {
		return nil, nil, ErrChallengeExpired
	}
	return rec.reg.clone(), ch.clone(), nil
}

// CleanupExpired removes expired challenges and their auth ids
func (s *MemoryStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for _, rec := range s.users {
		if rec.pending != nil && rec.pending.Expired(now) {
			delete(s.authIDs, rec.pending.AuthID)
			rec.pending = nil
			removed++
		}
	}
	return removed
}

// ListUsers returns all registrations sorted by user
func (s *MemoryStore) ListUsers() ([]Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]Registration, 0, len(s.users))
	for _, rec := range s.users {
		users = append(users, *rec.reg.clone())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].User < users[j].User })

	return users, nil
}

// Stats returns storage statistics for monitoring
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Users: len(s.users), AuthIDs: len(s.authIDs)}
	for _, rec := range s.users {
		if rec.pending != nil {
			stats.Challenges++
		}
	}
	return stats
}

// Close stops Run. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeMu.Do(func() { close(s.done) })
	return nil
}

func (r *Registration) clone() *Registration {
	c := *r
	c.Y1 = cloneBytes(r.Y1)
	c.Y2 = cloneBytes(r.Y2)
	return &c
}

func (c *Challenge) clone() *Challenge {
	cp := *c
	cp.R1 = cloneBytes(c.R1)
	cp.R2 = cloneBytes(c.R2)
	cp.C = cloneBytes(c.C)
	return &cp
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
