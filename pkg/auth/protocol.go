// Package auth sequences the Chaum-Pedersen login:
//
//	Unregistered --Register--> Registered --CreateChallenge--> ChallengeIssued
//	ChallengeIssued --CreateChallenge--> ChallengeIssued (new auth id)
//	ChallengeIssued --VerifyAuthentication--> Registered (session or rejection)
//
// Register may be repeated in any state; it replaces the commitment and
// leaves a pending challenge in place.
package auth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/allsmog/zkcp-auth/pkg/crypto/chaumpedersen"
	"github.com/allsmog/zkcp-auth/pkg/crypto/group"
	"github.com/allsmog/zkcp-auth/pkg/storage"
)

// AuthIDLength is the number of alphanumeric characters in an auth id.
const AuthIDLength = 24

// Session is the result of a successful authentication.
type Session struct {
	ID       string    `json:"session_id"`
	User     string    `json:"user"`
	Group    string    `json:"group"`
	IssuedAt time.Time `json:"issued_at"`
}

// Protocol is the verifier side of the login. It is safe for concurrent use;
// all shared state lives in the store.
type Protocol struct {
	engine *chaumpedersen.Engine
	store  storage.SessionStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewProtocol creates a protocol over engine and store.
func NewProtocol(engine *chaumpedersen.Engine, store storage.SessionStore, logger zerolog.Logger) *Protocol {
	return &Protocol{
		engine: engine,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// NewAuthIDGenerator returns an auth id source backed by engine's randomness,
// for storage.WithAuthIDGenerator.
func NewAuthIDGenerator(engine *chaumpedersen.Engine) func() (string, error) {
	return func() (string, error) {
		return engine.RandomToken(AuthIDLength)
	}
}

// Engine returns the protocol's engine.
func (p *Protocol) Engine() *chaumpedersen.Engine {
	return p.engine
}

// Register stores (or replaces) the commitment y1 = alpha^x, y2 = beta^x
// for user. y1 and y2 are group element encodings.
func (p *Protocol) Register(ctx context.Context, user string, y1, y2 []byte) error {
	const op = "Register"

	if user == "" {
		return newError(op, KindInvalidInput, errors.New("user must not be empty"))
	}

	e1, e2, err := p.parsePair(y1, y2, "y1", "y2")
	if err != nil {
		return newError(op, KindInvalidInput, err)
	}

	if err := p.store.PutRegistration(user, e1.Bytes(), e2.Bytes()); err != nil {
		return newError(op, KindInternal, err)
	}

	p.log(ctx).Debug().Str("user", user).Msg("user registered")
	return nil
}

// CreateChallenge records the commitment r1 = alpha^k, r2 = beta^k for user
// and answers with a fresh auth id and a uniformly random challenge c in
// [0, q). A previous pending challenge of user is discarded.
func (p *Protocol) CreateChallenge(ctx context.Context, user string, r1, r2 []byte) (string, *big.Int, error) {
	const op = "CreateChallenge"

	if user == "" {
		return "", nil, newError(op, KindInvalidInput, errors.New("user must not be empty"))
	}

	e1, e2, err := p.parsePair(r1, r2, "r1", "r2")
	if err != nil {
		return "", nil, newError(op, KindInvalidInput, err)
	}

	c, err := p.engine.RandomExponentBelow(p.engine.Order())
	if err != nil {
		return "", nil, newError(op, KindInternal, err)
	}

	authID, err := p.store.PutChallenge(user, e1.Bytes(), e2.Bytes(), c.Bytes())
	if err != nil {
		return "", nil, newError(op, storeKind(err), err)
	}

	p.log(ctx).Debug().Str("user", user).Msg("challenge issued")
	return authID, c, nil
}

// VerifyAuthentication checks the response s for the challenge behind
// authID. The auth id is consumed whether or not the proof verifies. s must
// already be reduced into [0, q).
func (p *Protocol) VerifyAuthentication(ctx context.Context, authID string, s *big.Int) (*Session, error) {
	const op = "VerifyAuthentication"

	if s == nil || s.Sign() < 0 || s.Cmp(p.engine.Order()) >= 0 {
		return nil, newError(op, KindInvalidInput, group.ErrInvalidScalar)
	}

	reg, ch, err := p.store.ConsumeAuthID(authID)
	if err != nil {
		return nil, newError(op, storeKind(err), err)
	}

	logger := p.log(ctx).With().Str("user", reg.User).Logger()

	// Stored values were validated on the way in.
	y1, y2, err := p.parsePair(reg.Y1, reg.Y2, "y1", "y2")
	if err != nil {
		return nil, newError(op, KindInternal, err)
	}
	r1, r2, err := p.parsePair(ch.R1, ch.R2, "r1", "r2")
	if err != nil {
		return nil, newError(op, KindInternal, err)
	}
	c := new(big.Int).SetBytes(ch.C)

	if !p.engine.Verify(r1, r2, y1, y2, c, s) {
		logger.Warn().Msg("authentication failed")
		return nil, newError(op, KindAuthenticationFailed, nil)
	}

	id, err := uuid.NewRandomFromReader(p.engine.Random())
	if err != nil {
		return nil, newError(op, KindInternal, fmt.Errorf("failed to generate session id: %w", err))
	}

	session := &Session{
		ID:       id.String(),
		User:     reg.User,
		Group:    p.engine.Group().Name(),
		IssuedAt: p.now(),
	}

	logger.Info().Str("session_id", session.ID).Msg("authentication succeeded")
	return session, nil
}

func (p *Protocol) parsePair(a, b []byte, nameA, nameB string) (group.Element, group.Element, error) {
	grp := p.engine.Group()
	ea, err := grp.ParseElement(a)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", nameA, err)
	}
	eb, err := grp.ParseElement(b)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", nameB, err)
	}
	return ea, eb, nil
}

// log prefers the request-scoped logger installed by hlog.
func (p *Protocol) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &p.logger
}

func storeKind(err error) Kind {
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		return KindUserNotFound
	case errors.Is(err, storage.ErrAuthIDNotFound):
		return KindAuthIDNotFound
	case errors.Is(err, storage.ErrChallengeNotFound):
		return KindChallengeNotFound
	default:
		return KindInternal
	}
}
