package storage

import (
	"errors"
	"fmt"
	"time"
)

// Registration is a user's public commitment (y1, y2).
type Registration struct {
	User         string    `json:"user"`
	Y1           []byte    `json:"y1"` // alpha^x, group element encoding
	Y2           []byte    `json:"y2"` // beta^x, group element encoding
	RegisteredAt time.Time `json:"registered_at"`
}

// Challenge is a pending login attempt.
type Challenge struct {
	AuthID    string    `json:"auth_id"`
	User      string    `json:"user"`
	R1        []byte    `json:"r1"` // alpha^k
	R2        []byte    `json:"r2"` // beta^k
	C         []byte    `json:"c"`  // challenge scalar, big-endian
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"` // zero when challenges never expire
}

// Expired reports whether the challenge is past its deadline at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Stats are store counters for monitoring.
type Stats struct {
	Users      int `json:"users"`
	Challenges int `json:"challenges"`
	AuthIDs    int `json:"auth_ids"`
}

// SessionStore holds registrations, pending challenges and the auth-id
// index. Every method is atomic with respect to every other.
type SessionStore interface {
	// PutRegistration stores or replaces the commitment for user
	PutRegistration(user string, y1, y2 []byte) error

	// GetRegistration retrieves the commitment for user
	GetRegistration(user string) (*Registration, error)

	// PutChallenge stores a new pending challenge for a registered user and
	// returns its fresh auth id. Any earlier pending challenge of that user
	// is discarded together with its auth id.
	PutChallenge(user string, r1, r2, c []byte) (string, error)

	// ResolveAuthID returns the user an outstanding auth id belongs to
	ResolveAuthID(authID string) (string, error)

	// GetAndConsumeChallenge removes and returns the pending challenge of user
	GetAndConsumeChallenge(user string) (*Challenge, error)

	// ConsumeAuthID resolves authID, removes the pending challenge it
	// refers to and returns it with the user's registration, in one step.
	ConsumeAuthID(authID string) (*Registration, *Challenge, error)

	// CleanupExpired removes expired challenges and returns how many
	CleanupExpired() int

	// ListUsers returns all registrations (for admin purposes)
	ListUsers() ([]Registration, error)

	// Stats returns store counters
	Stats() Stats

	// Close releases the store
	Close() error
}

var (
	// ErrUserNotFound indicates no registration exists for the user
	ErrUserNotFound = errors.New("user not found")

	// ErrAuthIDNotFound indicates an unknown auth id
	ErrAuthIDNotFound = errors.New("auth id not found")

	// ErrChallengeNotFound indicates a registered user has no pending challenge
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrChallengeExpired indicates the auth id referred to an expired challenge
	ErrChallengeExpired = fmt.Errorf("%w: challenge expired", ErrAuthIDNotFound)

	// ErrAuthIDCollision indicates the generator kept returning ids in use
	ErrAuthIDCollision = errors.New("could not allocate unique auth id")
)
