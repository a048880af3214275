package auth

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/allsmog/zkcp-auth/pkg/jwt"
	"github.com/allsmog/zkcp-auth/pkg/storage"
)

// maxBodyBytes bounds request bodies; the largest element is a 2048-bit integer.
const maxBodyBytes = 64 << 10

// Config contains configuration for auth handlers
type Config struct {
	Issuer   string        // JWT issuer
	Audience string        // JWT audience
	TokenTTL time.Duration // JWT lifetime

	// AdminToken guards /admin. Admin routes are not mounted when empty.
	AdminToken string
}

// Handlers exposes the Protocol over HTTP/JSON.
type Handlers struct {
	protocol    *Protocol
	store       storage.SessionStore
	tokenSigner jwt.TokenSigner
	config      Config
}

// NewHandlers creates new authentication handlers
func NewHandlers(protocol *Protocol, store storage.SessionStore, tokenSigner jwt.TokenSigner, config Config) *Handlers {
	return &Handlers{
		protocol:    protocol,
		store:       store,
		tokenSigner: tokenSigner,
		config:      config,
	}
}

// Mount registers the protocol routes on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Post("/register", h.Register)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/challenge", h.Challenge)
		r.Post("/verify", h.Verify)
	})
	r.Get("/params", h.Params)
	r.Get("/.well-known/jwks.json", h.JWKS)

	if h.config.AdminToken == "" {
		return
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/users", h.Users)
		r.Get("/stats", h.Stats)
	})
}

// requireAdmin checks the bearer token against Config.AdminToken.
func (h *Handlers) requireAdmin(next http.Handler) http.Handler {
	want := []byte("Bearer " + h.config.AdminToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "admin token required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RegisterRequest carries the commitment (y1, y2) as hex
type RegisterRequest struct {
	User string `json:"user"`
	Y1   string `json:"y1"`
	Y2   string `json:"y2"`
}

// ChallengeRequest carries the login commitment (r1, r2) as hex
type ChallengeRequest struct {
	User string `json:"user"`
	R1   string `json:"r1"`
	R2   string `json:"r2"`
}

// ChallengeResponse is the verifier's challenge
type ChallengeResponse struct {
	AuthID string `json:"auth_id"`
	C      string `json:"c"` // hex, big-endian
}

// VerifyRequest carries the response scalar s
type VerifyRequest struct {
	AuthID string `json:"auth_id"`
	S      string `json:"s"` // hex, big-endian
}

// VerifyResponse is returned after a successful login
type VerifyResponse struct {
	SessionID   string `json:"session_id"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ParamsResponse publishes the group so clients can check they match
type ParamsResponse struct {
	Group string `json:"group"`
	Q     string `json:"q"`
	Alpha string `json:"alpha"`
	Beta  string `json:"beta"`
	P     string `json:"p,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Register handles POST /register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	y1, err1 := decodeBytes(req.Y1)
	y2, err2 := decodeBytes(req.Y2)
	if err := errors.Join(err1, err2); err != nil {
		writeError(w, r, newError("Register", KindInvalidInput, err))
		return
	}

	if err := h.protocol.Register(r.Context(), req.User, y1, y2); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// Challenge handles POST /auth/challenge
func (h *Handlers) Challenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	r1, err1 := decodeBytes(req.R1)
	r2, err2 := decodeBytes(req.R2)
	if err := errors.Join(err1, err2); err != nil {
		writeError(w, r, newError("CreateChallenge", KindInvalidInput, err))
		return
	}

	authID, c, err := h.protocol.CreateChallenge(r.Context(), req.User, r1, r2)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ChallengeResponse{AuthID: authID, C: EncodeScalar(c)})
}

// Verify handles POST /auth/verify
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := DecodeScalar(req.S)
	if err != nil {
		writeError(w, r, newError("VerifyAuthentication", KindInvalidInput, err))
		return
	}

	session, err := h.protocol.VerifyAuthentication(r.Context(), req.AuthID, s)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := jwt.MintSessionToken(h.tokenSigner, h.config.Issuer, h.config.Audience, jwt.Session{
		ID:       session.ID,
		User:     session.User,
		Group:    session.Group,
		IssuedAt: session.IssuedAt,
	}, h.config.TokenTTL)
	if err != nil {
		writeError(w, r, newError("MintSessionToken", KindInternal, err))
		return
	}

	writeJSON(w, http.StatusOK, VerifyResponse{
		SessionID:   session.ID,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.config.TokenTTL.Seconds()),
	})
}

// Params handles GET /params
func (h *Handlers) Params(w http.ResponseWriter, r *http.Request) {
	grp := h.protocol.Engine().Group()
	alpha, beta := grp.Generators()

	resp := ParamsResponse{
		Group: grp.Name(),
		Q:     EncodeScalar(grp.Order()),
		Alpha: hex.EncodeToString(alpha.Bytes()),
		Beta:  hex.EncodeToString(beta.Bytes()),
	}
	if m, ok := grp.(interface{ Modulus() *big.Int }); ok {
		resp.P = EncodeScalar(m.Modulus())
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, resp)
}

// JWKS returns the public keys for JWT verification
func (h *Handlers) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, h.tokenSigner.JWKS())
}

// UserSummary is one entry of GET /admin/users
type UserSummary struct {
	User         string    `json:"user"`
	Y1           string    `json:"y1"`
	Y2           string    `json:"y2"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Users handles GET /admin/users
func (h *Handlers) Users(w http.ResponseWriter, r *http.Request) {
	regs, err := h.store.ListUsers()
	if err != nil {
		writeError(w, r, newError("ListUsers", KindInternal, err))
		return
	}

	users := make([]UserSummary, 0, len(regs))
	for _, reg := range regs {
		users = append(users, UserSummary{
			User:         reg.User,
			Y1:           hex.EncodeToString(reg.Y1),
			Y2:           hex.EncodeToString(reg.Y2),
			RegisteredAt: reg.RegisteredAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(users),
		"users": users,
	})
}

// Stats handles GET /admin/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"group":   h.protocol.Engine().Group().Name(),
		"storage": h.store.Stats(),
	})
}

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUserNotFound, KindAuthIDNotFound:
		return http.StatusNotFound
	case KindChallengeNotFound:
		return http.StatusConflict
	case KindAuthenticationFailed:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

var kindMessages = map[Kind]string{
	KindInternal:             "internal error",
	KindUserNotFound:         "user is not registered",
	KindAuthIDNotFound:       "unknown or expired auth id",
	KindChallengeNotFound:    "no pending challenge",
	KindAuthenticationFailed: "proof did not verify",
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := KindOf(err)
	status := StatusFor(kind)

	msg, ok := kindMessages[kind]
	if !ok {
		// Invalid input: the cause is safe and useful to echo.
		msg = err.Error()
		var e *Error
		if errors.As(err, &e) && e.Err != nil {
			msg = e.Err.Error()
		}
	}

	if kind == KindInternal {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}

	writeJSON(w, status, ErrorResponse{Error: kind.String(), Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   KindInvalidInput.String(),
			Message: "invalid JSON",
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// EncodeScalar renders v as big-endian hex; zero is "00".
func EncodeScalar(v *big.Int) string {
	b := v.Bytes()
	if len(b) == 0 {
		return "00"
	}
	return hex.EncodeToString(b)
}

// DecodeScalar parses a big-endian hex scalar.
func DecodeScalar(s string) (*big.Int, error) {
	b, err := decodeBytes(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

var (
	errEmptyField = errors.New("empty field")
	errOddHex     = errors.New("odd-length hex")
	errNotHex     = errors.New("field is not hex")
)

// decodeBytes accepts big-endian hex with an optional 0x prefix. Odd-length
// input is rejected, never padded or reinterpreted.
func decodeBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, errEmptyField
	}
	if len(s)%2 != 0 {
		return nil, errOddHex
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errNotHex
	}
	return b, nil
}
