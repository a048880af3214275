// Package group provides the prime-order groups the Chaum-Pedersen protocol
// runs over.
//
// # Two generators, one secret
//
// A Chaum-Pedersen proof shows that two public values share the same
// discrete logarithm with respect to two different generators:
//
//	y1 = alpha^x    y2 = beta^x
//
// For the proof to be sound nobody may know log_alpha(beta). Every group in
// this package therefore takes its standard generator as alpha and derives
// beta by hashing a public seed into the group, so the relation between the
// two generators is unknown to everyone, including whoever picked the seed.
//
// # Supported groups
//
//   - rfc5114-1024-160: RFC 5114 section 2.1, a 1024-bit prime p with a
//     160-bit prime-order subgroup. The default.
//   - modp2048: RFC 3526 group 14, a 2048-bit safe prime with alpha = 2
//     generating the subgroup of order (p-1)/2.
//   - secp256k1: the Bitcoin curve (cofactor 1).
//   - ristretto255: the prime-order group built on Curve25519.
//
// The group is written multiplicatively throughout: Exp is scalar
// multiplication and Mul is point addition on the elliptic curve groups.
package group

import (
	"errors"
	"math/big"
)

// Element is a member of a Group.
type Element interface {
	// Bytes returns the canonical wire encoding of the element.
	// For the mod-p groups this is the minimal big-endian integer.
	Bytes() []byte

	// Equal reports whether both elements encode the same group member.
	Equal(other Element) bool

	// IsIdentity reports whether the element is the neutral element.
	IsIdentity() bool
}

// Group is a cyclic group of prime order q with two independent generators.
type Group interface {
	// Name returns the identifier accepted by FromName.
	Name() string

	// Order returns q. Exponents are reduced modulo q.
	Order() *big.Int

	// Generators returns (alpha, beta).
	Generators() (alpha, beta Element)

	// Exp returns base^k. k is reduced modulo q first, so negative and
	// oversized exponents are accepted.
	Exp(base Element, k *big.Int) Element

	// Mul returns the group operation a*b.
	Mul(a, b Element) Element

	// ParseElement decodes an element received from a peer. It rejects
	// malformed encodings, values outside the prime-order subgroup and the
	// identity.
	ParseElement(b []byte) (Element, error)

	// Validate checks the group description. A group that fails validation
	// must not be used.
	Validate() error
}

var (
	// ErrInvalidElement indicates a malformed element encoding
	ErrInvalidElement = errors.New("invalid group element")

	// ErrIdentityElement indicates the element is the identity
	ErrIdentityElement = errors.New("element is identity")

	// ErrNotInSubgroup indicates the element lies outside the order-q subgroup
	ErrNotInSubgroup = errors.New("element not in prime-order subgroup")

	// ErrInvalidScalar indicates a scalar outside [0, q)
	ErrInvalidScalar = errors.New("scalar out of range")

	// ErrInvalidParameters indicates a group description that fails validation
	ErrInvalidParameters = errors.New("invalid group parameters")
)

// ParseScalar decodes a big-endian unsigned integer and checks it lies in
// [0, q). Out-of-range values are rejected rather than reduced.
func ParseScalar(g Group, b []byte) (*big.Int, error) {
	v := new(big.Int).SetBytes(b)
	if v.Cmp(g.Order()) >= 0 {
		return nil, ErrInvalidScalar
	}
	return v, nil
}

// reduce returns k mod q in [0, q).
func reduce(k, q *big.Int) *big.Int {
	return new(big.Int).Mod(k, q)
}
