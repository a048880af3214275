package chaumpedersen

import (
	"crypto/sha256"
	"errors"
	"math/big"

	"golang.org/x/crypto/argon2"
)

// DomainSecret is the domain separator for password-derived secrets.
const DomainSecret = "zkcp-auth/1/secret"

// ErrEmptyPassword indicates an empty password
var ErrEmptyPassword = errors.New("password must not be empty")

// KDFParams are the Argon2id cost parameters used by DeriveSecret.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams follows the OWASP minimum for Argon2id.
var DefaultKDFParams = KDFParams{Time: 2, Memory: 19 * 1024, Threads: 1}

// DeriveSecret maps a password to the secret exponent x in [1, q).
//
// The salt binds the result to the group and the user, so equal passwords
// of different users give unrelated commitments. The 64-byte Argon2id output
// is reduced mod q; the bias is negligible for every supported q.
func (e *Engine) DeriveSecret(user, password string, params KDFParams) (*big.Int, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	h := sha256.New()
	h.Write([]byte(DomainSecret))
	h.Write([]byte(e.grp.Name()))
	h.Write([]byte{0})
	h.Write([]byte(user))
	salt := h.Sum(nil)

	key := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, 64)

	// Reduce into [1, q) so x is never zero.
	q := e.grp.Order()
	qm1 := new(big.Int).Sub(q, big.NewInt(1))
	x := new(big.Int).SetBytes(key)
	x.Mod(x, qm1)
	return x.Add(x, big.NewInt(1)), nil
}
