package group

import (
	"crypto/sha512"
	"fmt"
	"math/big"

	"github.com/gtank/ristretto255"
)

// Ristretto255Element is a member of the ristretto255 group.
type Ristretto255Element struct {
	elem *ristretto255.Element
}

// Bytes returns the canonical 32-byte encoding.
func (e *Ristretto255Element) Bytes() []byte {
	if e == nil || e.elem == nil {
		return nil
	}
	return e.elem.Encode(nil)
}

// Equal reports whether both elements are identical.
func (e *Ristretto255Element) Equal(other Element) bool {
	o, ok := other.(*Ristretto255Element)
	if !ok || o == nil || o.elem == nil || e.elem == nil {
		return false
	}
	return e.elem.Equal(o.elem) == 1
}

// IsIdentity reports whether the element is the identity.
func (e *Ristretto255Element) IsIdentity() bool {
	if e == nil || e.elem == nil {
		return true
	}
	return e.elem.Equal(ristretto255.NewIdentityElement()) == 1
}

// Ristretto255Group implements Group over ristretto255.
type Ristretto255Group struct {
	order *big.Int
	alpha *Ristretto255Element
	beta  *Ristretto255Element
}

// NewRistretto255 creates the ristretto255 group with the canonical
// generator as alpha and a hash-derived beta.
func NewRistretto255() *Ristretto255Group {
	// l = 2^252 + 27742317777372353535851937790883648493
	order := new(big.Int).Lsh(big.NewInt(1), 252)
	addend, _ := new(big.Int).SetString("27742317777372353535851937790883648493", 10)
	order.Add(order, addend)

	g := &Ristretto255Group{order: order}

	one, err := g.scalar(big.NewInt(1))
	if err != nil {
		panic(fmt.Sprintf("group %s: %v", GroupRistretto255, err))
	}
	g.alpha = &Ristretto255Element{elem: ristretto255.NewIdentityElement().ScalarBaseMult(one)}

	digest := sha512.Sum512([]byte(generatorSeed(GroupRistretto255)))
	beta, err := ristretto255.NewIdentityElement().SetUniformBytes(digest[:])
	if err != nil {
		panic(fmt.Sprintf("group %s: %v", GroupRistretto255, err))
	}
	g.beta = &Ristretto255Element{elem: beta}

	return g
}

// Name returns the group identifier.
func (g *Ristretto255Group) Name() string {
	return GroupRistretto255
}

// Order returns l.
func (g *Ristretto255Group) Order() *big.Int {
	return new(big.Int).Set(g.order)
}

// Generators returns (B, beta).
func (g *Ristretto255Group) Generators() (Element, Element) {
	return g.alpha, g.beta
}

// Exp computes k*P.
func (g *Ristretto255Group) Exp(base Element, k *big.Int) Element {
	b, ok := base.(*Ristretto255Element)
	if !ok || b == nil || b.elem == nil {
		return nil
	}
	sc, err := g.scalar(k)
	if err != nil {
		return nil
	}
	return &Ristretto255Element{elem: ristretto255.NewIdentityElement().ScalarMult(sc, b.elem)}
}

// Mul computes P + Q.
func (g *Ristretto255Group) Mul(a, b Element) Element {
	p, ok := a.(*Ristretto255Element)
	if !ok || p == nil || p.elem == nil {
		return nil
	}
	q, ok := b.(*Ristretto255Element)
	if !ok || q == nil || q.elem == nil {
		return nil
	}
	return &Ristretto255Element{elem: ristretto255.NewIdentityElement().Add(p.elem, q.elem)}
}

// ParseElement decodes a canonical 32-byte encoding.
func (g *Ristretto255Group) ParseElement(b []byte) (Element, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidElement, len(b))
	}
	elem := ristretto255.NewIdentityElement()
	if _, err := elem.SetCanonicalBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidElement, err)
	}
	e := &Ristretto255Element{elem: elem}
	if e.IsIdentity() {
		return nil, ErrIdentityElement
	}
	return e, nil
}

// Validate checks both generators are distinct non-identity elements.
func (g *Ristretto255Group) Validate() error {
	if g.alpha.IsIdentity() || g.beta.IsIdentity() {
		return fmt.Errorf("%w: generator is identity", ErrInvalidParameters)
	}
	if g.alpha.Equal(g.beta) {
		return fmt.Errorf("%w: alpha equals beta", ErrInvalidParameters)
	}
	return nil
}

// scalar converts k mod l to the little-endian canonical scalar encoding.
func (g *Ristretto255Group) scalar(k *big.Int) (*ristretto255.Scalar, error) {
	be := reduce(k, g.order).FillBytes(make([]byte, 32))
	le := make([]byte, 32)
	for i := range be {
		le[i] = be[len(be)-1-i]
	}
	sc := ristretto255.NewScalar()
	if _, err := sc.SetCanonicalBytes(le); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScalar, err)
	}
	return sc, nil
}
