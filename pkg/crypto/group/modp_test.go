package group

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRFC5114Parameters(t *testing.T) {
	g := NewRFC5114()

	t.Run("Validate", func(t *testing.T) {
		require.NoError(t, g.Validate())
	})

	t.Run("Constants", func(t *testing.T) {
		alpha, beta, p, q := g.Constants()
		assert.Equal(t, 1024, p.BitLen())
		assert.Equal(t, 160, q.BitLen())
		assert.Equal(t, 0, new(big.Int).Exp(alpha, q, p).Cmp(big.NewInt(1)))
		assert.Equal(t, 0, new(big.Int).Exp(beta, q, p).Cmp(big.NewInt(1)))
		assert.NotEqual(t, 0, alpha.Cmp(beta))
	})

	t.Run("ConstantsAreCopies", func(t *testing.T) {
		alpha, _, _, _ := g.Constants()
		alpha.SetInt64(5)
		again, _, _, _ := g.Constants()
		assert.NotEqual(t, 0, again.Cmp(big.NewInt(5)))
	})

	t.Run("BetaIsDeterministic", func(t *testing.T) {
		_, b1, _, _ := g.Constants()
		_, b2, _, _ := NewRFC5114().Constants()
		assert.Equal(t, 0, b1.Cmp(b2))
	})
}

func TestModP2048Parameters(t *testing.T) {
	g := NewModP2048()
	require.NoError(t, g.Validate())

	_, _, p, q := g.Constants()
	assert.Equal(t, 2048, p.BitLen())
	assert.Equal(t, 2047, q.BitLen())
}

func TestModPValidateRejectsBadParameters(t *testing.T) {
	good := NewRFC5114()
	alpha, beta, p, q := good.Constants()

	t.Run("CompositeModulus", func(t *testing.T) {
		bad := NewModPWithGenerators("bad", new(big.Int).Add(p, big.NewInt(2)), q, alpha, beta)
		assert.ErrorIs(t, bad.Validate(), ErrInvalidParameters)
	})

	t.Run("WrongOrderGenerator", func(t *testing.T) {
		// p-1 has order 2
		pm1 := new(big.Int).Sub(p, big.NewInt(1))
		bad := NewModPWithGenerators("bad", p, q, alpha, pm1)
		assert.ErrorIs(t, bad.Validate(), ErrInvalidParameters)
	})

	t.Run("EqualGenerators", func(t *testing.T) {
		bad := NewModPWithGenerators("bad", p, q, alpha, alpha)
		assert.ErrorIs(t, bad.Validate(), ErrInvalidParameters)
	})

	t.Run("OrderDoesNotDivide", func(t *testing.T) {
		_, err := NewModP("bad", p, big.NewInt(7), alpha, "seed")
		assert.ErrorIs(t, err, ErrInvalidParameters)
	})
}

func TestModPExp(t *testing.T) {
	g := NewRFC5114()
	alpha, _ := g.Generators()
	q := g.Order()

	t.Run("ReducesExponent", func(t *testing.T) {
		k := big.NewInt(12345)
		kq := new(big.Int).Add(k, q)
		assert.True(t, g.Exp(alpha, k).Equal(g.Exp(alpha, kq)))
	})

	t.Run("NegativeExponent", func(t *testing.T) {
		// alpha^-1 * alpha^1 == 1
		inv := g.Exp(alpha, big.NewInt(-1))
		prod := g.Mul(inv, g.Exp(alpha, big.NewInt(1)))
		assert.True(t, prod.IsIdentity())
	})

	t.Run("OrderGivesIdentity", func(t *testing.T) {
		assert.True(t, g.Exp(alpha, q).IsIdentity())
	})
}

func TestModPParseElement(t *testing.T) {
	g := NewRFC5114()
	alpha, beta := g.Generators()
	_, _, p, _ := g.Constants()

	t.Run("RoundTrip", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			k, err := rand.Int(rand.Reader, g.Order())
			require.NoError(t, err)
			if k.Sign() == 0 {
				continue
			}
			e := g.Exp(beta, k)
			parsed, err := g.ParseElement(e.Bytes())
			require.NoError(t, err)
			assert.True(t, parsed.Equal(e))
			assert.Equal(t, e.Bytes(), parsed.Bytes())
		}
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := g.ParseElement(nil)
		assert.ErrorIs(t, err, ErrInvalidElement)
	})

	t.Run("Zero", func(t *testing.T) {
		_, err := g.ParseElement([]byte{0x00})
		assert.ErrorIs(t, err, ErrInvalidElement)
	})

	t.Run("OutOfRange", func(t *testing.T) {
		_, err := g.ParseElement(p.Bytes())
		assert.ErrorIs(t, err, ErrInvalidElement)
	})

	t.Run("Identity", func(t *testing.T) {
		_, err := g.ParseElement([]byte{0x01})
		assert.ErrorIs(t, err, ErrIdentityElement)
	})

	t.Run("NotInSubgroup", func(t *testing.T) {
		pm1 := new(big.Int).Sub(p, big.NewInt(1))
		_, err := g.ParseElement(pm1.Bytes())
		assert.ErrorIs(t, err, ErrNotInSubgroup)
	})

	t.Run("Generator", func(t *testing.T) {
		parsed, err := g.ParseElement(alpha.Bytes())
		require.NoError(t, err)
		assert.True(t, parsed.Equal(alpha))
	})
}

func TestIntegerEncodingRoundTrip(t *testing.T) {
	g := NewRFC5114()
	_, _, p, _ := g.Constants()

	values := []*big.Int{big.NewInt(0), big.NewInt(1), big.NewInt(255), big.NewInt(256), new(big.Int).Sub(p, big.NewInt(1))}
	for i := 0; i < 50; i++ {
		v, err := rand.Int(rand.Reader, p)
		require.NoError(t, err)
		values = append(values, v)
	}

	for _, v := range values {
		decoded := new(big.Int).SetBytes(v.Bytes())
		assert.Equal(t, 0, v.Cmp(decoded), "round trip of %s", v)
	}
}

func TestParseScalar(t *testing.T) {
	g := NewRFC5114()
	q := g.Order()

	t.Run("Zero", func(t *testing.T) {
		v, err := ParseScalar(g, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, v.Sign())
	})

	t.Run("Max", func(t *testing.T) {
		qm1 := new(big.Int).Sub(q, big.NewInt(1))
		v, err := ParseScalar(g, qm1.Bytes())
		require.NoError(t, err)
		assert.Equal(t, 0, v.Cmp(qm1))
	})

	t.Run("Order", func(t *testing.T) {
		_, err := ParseScalar(g, q.Bytes())
		assert.ErrorIs(t, err, ErrInvalidScalar)
	})
}
