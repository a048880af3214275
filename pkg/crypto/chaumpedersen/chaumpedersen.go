// Package chaumpedersen implements the Chaum-Pedersen interactive proof of
// equality of discrete logarithms, used as a password-less login.
//
// # Protocol Overview
//
// The prover knows a secret x. At registration it publishes
//
//	y1 = alpha^x    y2 = beta^x
//
// To log in:
//
//  1. COMMITMENT (Prover → Verifier):
//     - Prover picks a random k in [0, q)
//     - Prover sends r1 = alpha^k, r2 = beta^k
//
//  2. CHALLENGE (Verifier → Prover):
//     - Verifier picks a random c in [0, q) and sends it
//
//  3. RESPONSE (Prover → Verifier):
//     - Prover sends s = (k - c*x) mod q
//
//  4. VERIFICATION:
//     - Verifier accepts iff r1 == alpha^s * y1^c AND r2 == beta^s * y2^c
//
// # Why This Works
//
//	alpha^s * y1^c = alpha^(k - c*x) * alpha^(x*c) = alpha^k = r1
//
// and likewise for beta. Both equations must hold: a transcript satisfying
// only one of them does not prove the two logarithms are equal.
//
// # Security Notes
//
//   - k must be fresh for every login. Reusing k with two challenges c1, c2
//     reveals x = (s2 - s1) / (c1 - c2) mod q.
//   - c must come from a cryptographically secure source; a predictable c
//     lets a prover without x forge (r1, r2) after the fact.
//   - Exponentiation here uses math/big and is not constant time.
package chaumpedersen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/allsmog/zkcp-auth/pkg/crypto/group"
)

// tokenAlphabet is the character set of RandomToken.
const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var (
	// ErrInvalidBound indicates a non-positive bound
	ErrInvalidBound = errors.New("bound must be positive")

	// ErrInvalidLength indicates a non-positive token length
	ErrInvalidLength = errors.New("token length must be positive")
)

// Engine evaluates the Chaum-Pedersen operations over one group. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	grp    group.Group
	random io.Reader
}

// NewEngine creates an engine drawing randomness from crypto/rand.
func NewEngine(grp group.Group) *Engine {
	return NewEngineWithReader(grp, rand.Reader)
}

// NewEngineWithReader creates an engine drawing randomness from r. r must
// be a cryptographically secure source.
func NewEngineWithReader(grp group.Group, r io.Reader) *Engine {
	return &Engine{grp: grp, random: r}
}

// Group returns the engine's group.
func (e *Engine) Group() group.Group {
	return e.grp
}

// Order returns q.
func (e *Engine) Order() *big.Int {
	return e.grp.Order()
}

// Random returns the engine's randomness source.
func (e *Engine) Random() io.Reader {
	return e.random
}

// ComputePair returns (alpha^exponent, beta^exponent). It serves both the
// registration commitment (exponent = x) and the login commitment
// (exponent = k).
func (e *Engine) ComputePair(exponent *big.Int) (group.Element, group.Element) {
	alpha, beta := e.grp.Generators()
	return e.grp.Exp(alpha, exponent), e.grp.Exp(beta, exponent)
}

// RandomExponentBelow returns a uniform integer in [0, bound).
func (e *Engine) RandomExponentBelow(bound *big.Int) (*big.Int, error) {
	if bound == nil || bound.Sign() <= 0 {
		return nil, ErrInvalidBound
	}
	v, err := rand.Int(e.random, bound)
	if err != nil {
		return nil, fmt.Errorf("failed to sample exponent: %w", err)
	}
	return v, nil
}

// RandomToken returns length characters drawn uniformly from [A-Za-z0-9].
// Each character carries log2(62) ≈ 5.95 bits of entropy.
func (e *Engine) RandomToken(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}

	// Bytes >= 248 are rejected so every character is equally likely.
	const limit = 256 - 256%len(tokenAlphabet)

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)
	for len(out) < length {
		if _, err := io.ReadFull(e.random, buf); err != nil {
			return "", fmt.Errorf("failed to read randomness: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// Solve computes the response s = (k - c*x) mod q in [0, q).
func (e *Engine) Solve(k, c, x *big.Int) *big.Int {
	q := e.grp.Order()
	cx := new(big.Int).Mul(c, x)
	s := new(big.Int).Sub(k, cx)
	// Mod is Euclidean, so negative intermediates land in [0, q).
	return s.Mod(s, q)
}

// Verify reports whether r1 == alpha^s * y1^c and r2 == beta^s * y2^c.
func (e *Engine) Verify(r1, r2, y1, y2 group.Element, c, s *big.Int) bool {
	if r1 == nil || r2 == nil || y1 == nil || y2 == nil || c == nil || s == nil {
		return false
	}

	alpha, beta := e.grp.Generators()

	left1 := e.grp.Mul(e.grp.Exp(alpha, s), e.grp.Exp(y1, c))
	left2 := e.grp.Mul(e.grp.Exp(beta, s), e.grp.Exp(y2, c))
	if left1 == nil || left2 == nil {
		return false
	}

	ok1 := r1.Equal(left1)
	ok2 := r2.Equal(left2)
	return ok1 && ok2
}
