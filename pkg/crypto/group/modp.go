package group

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/hkdf"
)

// primalityRounds is the Miller-Rabin round count used by Validate.
const primalityRounds = 32

// RFC 5114 section 2.1: 1024-bit MODP group with 160-bit prime order subgroup.
const (
	rfc5114P = "B10B8F96A080E01DDE92DE5EAE5D54EC52C99FBCFB06A3C69A6A9DCA52D23B61" +
		"6073E28675A23D189838EF1E2EE652C013ECB4AEA906112324975C3CD49B83BF" +
		"ACCBDD7D90C4BD7098488E9C219A73724EFFD6FAE5644738FAA31A4FF55BCCC0" +
		"A151AF5F0DC8B4BD45BF37DF365C1A65E68CFDA76D4DA708DF1FB2BC2E4A4371"
	rfc5114G = "A4D1CBD5C3FD34126765A442EFB99905F8104DD258AC507FD6406CFF14266D31" +
		"266FEA1E5C41564B777E690F5504F213160217B4B01B886A5E91547F9E2749F4" +
		"D7FBD7D3B9A92EE1909D0D2263F80A76A6A24C087A091F531DBF0A0169B6A28A" +
		"D662A4D18E73AFA32D779D5918D08BC8858F4DCEF97C2A24855E6EEB22B3B2E5"
	rfc5114Q = "F518AA8781A8DF278ABA4E7D64B7CB9D49462353"
)

// RFC 3526 group 14: 2048-bit safe prime.
const modp2048P = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74" +
	"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437" +
	"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF05" +
	"98DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB" +
	"9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF695581718" +
	"3995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF"

// modpElement is an integer in [1, p).
type modpElement struct {
	v *big.Int
}

// Bytes returns the minimal big-endian encoding.
func (e *modpElement) Bytes() []byte {
	return e.v.Bytes()
}

// Equal compares the encodings in constant time.
func (e *modpElement) Equal(other Element) bool {
	o, ok := other.(*modpElement)
	if !ok || o == nil {
		return false
	}
	return subtle.ConstantTimeCompare(e.v.Bytes(), o.v.Bytes()) == 1
}

// IsIdentity reports whether e == 1.
func (e *modpElement) IsIdentity() bool {
	return e.v.Cmp(big.NewInt(1)) == 0
}

// ModP is the subgroup of order q of the multiplicative group modulo p,
// described by {p, q, alpha, beta}. Values are immutable after construction.
type ModP struct {
	name  string
	p     *big.Int
	q     *big.Int
	alpha *big.Int
	beta  *big.Int
}

// NewModP builds a group from p, q and alpha. beta is derived from seed by
// hashing into the order-q subgroup.
func NewModP(name string, p, q, alpha *big.Int, seed string) (*ModP, error) {
	if p == nil || q == nil || alpha == nil || q.Sign() <= 0 || p.Cmp(q) <= 0 {
		return nil, fmt.Errorf("%w: missing or inconsistent p, q, alpha", ErrInvalidParameters)
	}
	beta, err := deriveSubgroupGenerator(p, q, seed)
	if err != nil {
		return nil, err
	}
	return NewModPWithGenerators(name, p, q, alpha, beta), nil
}

// NewModPWithGenerators builds a group from explicit constants. The caller
// is responsible for running Validate.
func NewModPWithGenerators(name string, p, q, alpha, beta *big.Int) *ModP {
	return &ModP{
		name:  name,
		p:     new(big.Int).Set(p),
		q:     new(big.Int).Set(q),
		alpha: new(big.Int).Set(alpha),
		beta:  new(big.Int).Set(beta),
	}
}

// NewRFC5114 returns the RFC 5114 1024-bit group with a 160-bit subgroup.
func NewRFC5114() *ModP {
	return mustModP(GroupRFC5114, hexInt(rfc5114P), hexInt(rfc5114Q), hexInt(rfc5114G))
}

// NewModP2048 returns RFC 3526 group 14 with alpha = 2 and q = (p-1)/2.
func NewModP2048() *ModP {
	p := hexInt(modp2048P)
	q := new(big.Int).Rsh(new(big.Int).Sub(p, big.NewInt(1)), 1)
	return mustModP(GroupModP2048, p, q, big.NewInt(2))
}

func mustModP(name string, p, q, alpha *big.Int) *ModP {
	g, err := NewModP(name, p, q, alpha, generatorSeed(name))
	if err != nil {
		panic(fmt.Sprintf("group %s: %v", name, err))
	}
	return g
}

// Name returns the group identifier.
func (g *ModP) Name() string {
	return g.name
}

// Constants returns copies of (alpha, beta, p, q).
func (g *ModP) Constants() (alpha, beta, p, q *big.Int) {
	return new(big.Int).Set(g.alpha), new(big.Int).Set(g.beta), new(big.Int).Set(g.p), new(big.Int).Set(g.q)
}

// Modulus returns a copy of p.
func (g *ModP) Modulus() *big.Int {
	return new(big.Int).Set(g.p)
}

// Order returns a copy of q.
func (g *ModP) Order() *big.Int {
	return new(big.Int).Set(g.q)
}

// Generators returns (alpha, beta) as elements.
func (g *ModP) Generators() (Element, Element) {
	return &modpElement{v: new(big.Int).Set(g.alpha)}, &modpElement{v: new(big.Int).Set(g.beta)}
}

// Exp returns base^k mod p.
func (g *ModP) Exp(base Element, k *big.Int) Element {
	b, ok := base.(*modpElement)
	if !ok || b == nil {
		return nil
	}
	return &modpElement{v: new(big.Int).Exp(b.v, reduce(k, g.q), g.p)}
}

// Mul returns a*b mod p.
func (g *ModP) Mul(a, b Element) Element {
	x, ok := a.(*modpElement)
	if !ok || x == nil {
		return nil
	}
	y, ok := b.(*modpElement)
	if !ok || y == nil {
		return nil
	}
	v := new(big.Int).Mul(x.v, y.v)
	return &modpElement{v: v.Mod(v, g.p)}
}

// ParseElement decodes a big-endian integer and checks 1 < v < p and
// v^q == 1 mod p.
func (g *ModP) ParseElement(b []byte) (Element, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty encoding", ErrInvalidElement)
	}
	v := new(big.Int).SetBytes(b)
	if v.Sign() == 0 || v.Cmp(g.p) >= 0 {
		return nil, fmt.Errorf("%w: value outside [1, p)", ErrInvalidElement)
	}
	e := &modpElement{v: v}
	if e.IsIdentity() {
		return nil, ErrIdentityElement
	}
	if new(big.Int).Exp(v, g.q, g.p).Cmp(big.NewInt(1)) != 0 {
		return nil, ErrNotInSubgroup
	}
	return e, nil
}

// Validate checks that p and q are prime, q divides p-1, and alpha and beta
// are distinct elements of order q.
func (g *ModP) Validate() error {
	one := big.NewInt(1)
	if !g.p.ProbablyPrime(primalityRounds) {
		return fmt.Errorf("%w: p is not prime", ErrInvalidParameters)
	}
	if !g.q.ProbablyPrime(primalityRounds) {
		return fmt.Errorf("%w: q is not prime", ErrInvalidParameters)
	}
	pm1 := new(big.Int).Sub(g.p, one)
	if new(big.Int).Mod(pm1, g.q).Sign() != 0 {
		return fmt.Errorf("%w: q does not divide p-1", ErrInvalidParameters)
	}
	for name, gen := range map[string]*big.Int{"alpha": g.alpha, "beta": g.beta} {
		if gen.Cmp(one) <= 0 || gen.Cmp(g.p) >= 0 {
			return fmt.Errorf("%w: %s outside (1, p)", ErrInvalidParameters, name)
		}
		if new(big.Int).Exp(gen, g.q, g.p).Cmp(one) != 0 {
			return fmt.Errorf("%w: %s does not have order q", ErrInvalidParameters, name)
		}
	}
	if g.alpha.Cmp(g.beta) == 0 {
		return fmt.Errorf("%w: alpha equals beta", ErrInvalidParameters)
	}
	return nil
}

// deriveSubgroupGenerator hashes seed into Z_p and raises the result to the
// cofactor (p-1)/q, retrying with an incremented counter until the result
// is not 1.
func deriveSubgroupGenerator(p, q *big.Int, seed string) (*big.Int, error) {
	one := big.NewInt(1)
	cofactor := new(big.Int).Sub(p, one)
	if new(big.Int).Mod(cofactor, q).Sign() != 0 {
		return nil, fmt.Errorf("%w: q does not divide p-1", ErrInvalidParameters)
	}
	cofactor.Div(cofactor, q)

	// 128 extra bits keep the reduction mod p close to uniform.
	buf := make([]byte, (p.BitLen()+7)/8+16)
	info := make([]byte, 4)
	for ctr := uint32(0); ctr < 256; ctr++ {
		binary.BigEndian.PutUint32(info, ctr)
		if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(seed), nil, info), buf); err != nil {
			return nil, fmt.Errorf("hash to group: %w", err)
		}
		h := new(big.Int).SetBytes(buf)
		h.Mod(h, p)
		gen := new(big.Int).Exp(h, cofactor, p)
		if gen.Cmp(one) > 0 {
			return gen, nil
		}
	}
	return nil, fmt.Errorf("%w: no generator found for seed %q", ErrInvalidParameters, seed)
}

func hexInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("invalid hex constant")
	}
	return v
}
