package jwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// SchemeChaumPedersen is the zk.scheme claim of tokens minted after a
// Chaum-Pedersen login.
const SchemeChaumPedersen = "chaum-pedersen"

var (
	// ErrInvalidToken indicates a token that failed parsing or validation
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnknownKey indicates a kid missing from the issuer's JWKS
	ErrUnknownKey = errors.New("signing key not found")
)

// TokenSigner defines the interface for JWT signing
type TokenSigner interface {
	// Sign creates a signed JWT carrying claims
	Sign(claims jwt.Claims) (string, error)

	// JWKS returns the public keys for JWT verification
	JWKS() jwk.Set

	// Algorithm returns the signing algorithm
	Algorithm() string
}

// Claims are the claims of a session token.
type Claims struct {
	SessionID string    `json:"sid"`
	ZK        *ZKClaims `json:"zk,omitempty"`
	jwt.RegisteredClaims
}

// ZKClaims describe how the subject authenticated.
type ZKClaims struct {
	Scheme string `json:"scheme"` // "chaum-pedersen"
	Group  string `json:"grp"`    // group name, e.g. "rfc5114-1024-160"
}

// Session is what a successful login produced; MintSessionToken wraps it.
type Session struct {
	ID       string
	User     string
	Group    string
	IssuedAt time.Time
}

// ES256Signer implements JWT signing using ECDSA P-256
type ES256Signer struct {
	privateKey *ecdsa.PrivateKey
	keyID      string
	issuer     string
	jwks       jwk.Set
}

// NewES256Signer creates a new ES256 JWT signer
func NewES256Signer(privateKey *ecdsa.PrivateKey, keyID, issuer string) (*ES256Signer, error) {
	publicJWK, err := jwk.FromRaw(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK from public key: %w", err)
	}

	if keyID == "" {
		keyID, err = thumbprintKeyID(publicJWK)
		if err != nil {
			return nil, err
		}
	}

	if err := publicJWK.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, fmt.Errorf("failed to set key ID: %w", err)
	}
	if err := publicJWK.Set(jwk.AlgorithmKey, "ES256"); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}
	if err := publicJWK.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("failed to set key usage: %w", err)
	}

	jwks := jwk.NewSet()
	if err := jwks.AddKey(publicJWK); err != nil {
		return nil, fmt.Errorf("failed to build JWKS: %w", err)
	}

	return &ES256Signer{
		privateKey: privateKey,
		keyID:      keyID,
		issuer:     issuer,
		jwks:       jwks,
	}, nil
}

// Sign creates a JWT with the given claims
func (s *ES256Signer) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.keyID

	tokenString, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return tokenString, nil
}

// JWKS returns the public keys for JWT verification
func (s *ES256Signer) JWKS() jwk.Set {
	return s.jwks
}

// Algorithm returns the signing algorithm
func (s *ES256Signer) Algorithm() string {
	return "ES256"
}

// KeyID returns the kid placed in token headers
func (s *ES256Signer) KeyID() string {
	return s.keyID
}

// Issuer returns the issuer the signer was configured with
func (s *ES256Signer) Issuer() string {
	return s.issuer
}

// MintSessionToken wraps a session in a signed JWT valid for ttl.
func MintSessionToken(signer TokenSigner, issuer, audience string, session Session, ttl time.Duration) (string, error) {
	issued := session.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}

	claims := &Claims{
		SessionID: session.ID,
		ZK: &ZKClaims{
			Scheme: SchemeChaumPedersen,
			Group:  session.Group,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   session.User,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
			ID:        session.ID,
		},
	}

	return signer.Sign(claims)
}

// Verifier checks session tokens against an issuer's JWKS.
type Verifier struct {
	jwks     jwk.Set
	issuer   string
	audience string
}

// NewVerifier creates a verifier. An empty issuer skips the iss check.
func NewVerifier(jwks jwk.Set, issuer, audience string) *Verifier {
	return &Verifier{jwks: jwks, issuer: issuer, audience: audience}
}

// Verify parses tokenString, checks its signature, expiry, audience and
// issuer, and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("missing key ID")
	}

	key, ok := v.jwks.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
	}

	var publicKey interface{}
	if err := key.Raw(&publicKey); err != nil {
		return nil, fmt.Errorf("failed to extract public key: %w", err)
	}
	return publicKey, nil
}

// FetchJWKS downloads the issuer's key set.
func FetchJWKS(ctx context.Context, url string) (jwk.Set, error) {
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", url, err)
	}
	return set, nil
}

func thumbprintKeyID(key jwk.Key) (string, error) {
	tp, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}
