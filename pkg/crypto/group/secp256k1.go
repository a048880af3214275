package group

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Secp256k1Element is a point on secp256k1, kept in affine form.
type Secp256k1Element struct {
	point    btcec.JacobianPoint
	infinity bool
}

func newSecp256k1Element(j *btcec.JacobianPoint) *Secp256k1Element {
	if isInfinity(j) {
		return &Secp256k1Element{infinity: true}
	}
	var affine btcec.JacobianPoint
	affine.Set(j)
	affine.ToAffine()
	return &Secp256k1Element{point: affine}
}

// Bytes returns the 33-byte compressed encoding, or a single zero byte for
// the point at infinity.
func (e *Secp256k1Element) Bytes() []byte {
	if e.infinity {
		return []byte{0x00}
	}
	return btcec.NewPublicKey(&e.point.X, &e.point.Y).SerializeCompressed()
}

// Equal compares the encodings in constant time.
func (e *Secp256k1Element) Equal(other Element) bool {
	o, ok := other.(*Secp256k1Element)
	if !ok || o == nil {
		return false
	}
	return subtle.ConstantTimeCompare(e.Bytes(), o.Bytes()) == 1
}

// IsIdentity reports whether e is the point at infinity.
func (e *Secp256k1Element) IsIdentity() bool {
	return e.infinity
}

// Secp256k1Group implements Group over secp256k1 with alpha = G.
type Secp256k1Group struct {
	alpha *Secp256k1Element
	beta  *Secp256k1Element
}

// NewSecp256k1 creates the secp256k1 group.
func NewSecp256k1() *Secp256k1Group {
	var one btcec.ModNScalar
	one.SetInt(1)
	var g btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&one, &g)

	beta, err := hashToSecp256k1(generatorSeed(GroupSecp256k1))
	if err != nil {
		panic(fmt.Sprintf("group %s: %v", GroupSecp256k1, err))
	}

	return &Secp256k1Group{
		alpha: newSecp256k1Element(&g),
		beta:  beta,
	}
}

// Name returns the group identifier.
func (c *Secp256k1Group) Name() string {
	return GroupSecp256k1
}

// Order returns the curve order n.
func (c *Secp256k1Group) Order() *big.Int {
	return new(big.Int).Set(btcec.S256().N)
}

// Generators returns (G, beta).
func (c *Secp256k1Group) Generators() (Element, Element) {
	return c.alpha, c.beta
}

// Exp computes k*P.
func (c *Secp256k1Group) Exp(base Element, k *big.Int) Element {
	b, ok := base.(*Secp256k1Element)
	if !ok || b == nil {
		return nil
	}
	if b.infinity {
		return &Secp256k1Element{infinity: true}
	}

	var s btcec.ModNScalar
	s.SetByteSlice(reduce(k, btcec.S256().N).FillBytes(make([]byte, 32)))

	var result btcec.JacobianPoint
	btcec.ScalarMultNonConst(&s, &b.point, &result)
	return newSecp256k1Element(&result)
}

// Mul computes P + Q.
func (c *Secp256k1Group) Mul(a, b Element) Element {
	p, ok := a.(*Secp256k1Element)
	if !ok || p == nil {
		return nil
	}
	q, ok := b.(*Secp256k1Element)
	if !ok || q == nil {
		return nil
	}
	switch {
	case p.infinity:
		return q
	case q.infinity:
		return p
	}

	var result btcec.JacobianPoint
	btcec.AddNonConst(&p.point, &q.point, &result)
	return newSecp256k1Element(&result)
}

// ParseElement parses a compressed or uncompressed public key encoding.
func (c *Secp256k1Group) ParseElement(b []byte) (Element, error) {
	if len(b) == 1 && b[0] == 0x00 {
		return nil, ErrIdentityElement
	}
	pubKey, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidElement, err)
	}

	var j btcec.JacobianPoint
	pubKey.AsJacobian(&j)
	return newSecp256k1Element(&j), nil
}

// Validate checks both generators are distinct points on the curve.
func (c *Secp256k1Group) Validate() error {
	for name, gen := range map[string]*Secp256k1Element{"alpha": c.alpha, "beta": c.beta} {
		if gen == nil || gen.infinity {
			return fmt.Errorf("%w: %s is the point at infinity", ErrInvalidParameters, name)
		}
		pk := btcec.NewPublicKey(&gen.point.X, &gen.point.Y)
		if !btcec.S256().IsOnCurve(pk.X(), pk.Y()) {
			return fmt.Errorf("%w: %s is not on the curve", ErrInvalidParameters, name)
		}
	}
	if c.alpha.Equal(c.beta) {
		return fmt.Errorf("%w: alpha equals beta", ErrInvalidParameters)
	}
	return nil
}

// hashToSecp256k1 maps seed to a curve point by try-and-increment on the
// x-coordinate. The cofactor is 1, so every point generates the group.
func hashToSecp256k1(seed string) (*Secp256k1Element, error) {
	ctr := make([]byte, 4)
	for i := uint32(0); i < 1024; i++ {
		binary.BigEndian.PutUint32(ctr, i)
		h := sha256.New()
		h.Write([]byte(seed))
		h.Write(ctr)

		encoded := append([]byte{0x02}, h.Sum(nil)...)
		pubKey, err := btcec.ParsePubKey(encoded)
		if err != nil {
			continue
		}
		var j btcec.JacobianPoint
		pubKey.AsJacobian(&j)
		return newSecp256k1Element(&j), nil
	}
	return nil, fmt.Errorf("%w: hash to curve failed for seed %q", ErrInvalidParameters, seed)
}

func isInfinity(p *btcec.JacobianPoint) bool {
	x, y, z := p.X, p.Y, p.Z
	x.Normalize()
	y.Normalize()
	z.Normalize()
	return (x.IsZero() && y.IsZero()) || z.IsZero()
}
