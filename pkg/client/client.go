// Package client is the prover side of the login: it derives the secret from
// a password, registers the commitment and answers challenges over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/allsmog/zkcp-auth/pkg/auth"
	"github.com/allsmog/zkcp-auth/pkg/crypto/chaumpedersen"
	"github.com/allsmog/zkcp-auth/pkg/crypto/group"
)

// ErrGroupMismatch indicates the server runs a different group than the client.
var ErrGroupMismatch = errors.New("server group does not match client group")

// APIError is a non-2xx answer of the auth server.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s: %s", e.Status, e.Kind, e.Message)
}

// Client talks to one auth server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	engine     *chaumpedersen.Engine
	kdf        chaumpedersen.KDFParams
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithKDFParams sets the Argon2id cost. Server and client do not share it;
// it only has to be stable for a given user.
func WithKDFParams(p chaumpedersen.KDFParams) Option {
	return func(c *Client) {
		c.kdf = p
	}
}

// New creates a client for the server at baseURL using grp.
func New(baseURL string, grp group.Group, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		engine:     chaumpedersen.NewEngine(grp),
		kdf:        chaumpedersen.DefaultKDFParams,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Params fetches the server's group description.
func (c *Client) Params(ctx context.Context) (*auth.ParamsResponse, error) {
	var params auth.ParamsResponse
	if err := c.do(ctx, http.MethodGet, "/params", nil, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

// CheckGroup verifies the server uses the same group and generators.
func (c *Client) CheckGroup(ctx context.Context) error {
	params, err := c.Params(ctx)
	if err != nil {
		return err
	}

	grp := c.engine.Group()
	alpha, beta := grp.Generators()
	if params.Group != grp.Name() ||
		params.Alpha != hex.EncodeToString(alpha.Bytes()) ||
		params.Beta != hex.EncodeToString(beta.Bytes()) {
		return fmt.Errorf("%w: server %s, client %s", ErrGroupMismatch, params.Group, grp.Name())
	}
	return nil
}

// Register derives the secret from password and publishes its commitment.
func (c *Client) Register(ctx context.Context, user, password string) error {
	x, err := c.engine.DeriveSecret(user, password, c.kdf)
	if err != nil {
		return err
	}

	y1, y2 := c.engine.ComputePair(x)
	req := auth.RegisterRequest{
		User: user,
		Y1:   hex.EncodeToString(y1.Bytes()),
		Y2:   hex.EncodeToString(y2.Bytes()),
	}
	return c.do(ctx, http.MethodPost, "/register", req, nil)
}

// Login runs commitment, challenge and response and returns the session.
func (c *Client) Login(ctx context.Context, user, password string) (*auth.VerifyResponse, error) {
	x, err := c.engine.DeriveSecret(user, password, c.kdf)
	if err != nil {
		return nil, err
	}

	// k must be non-zero: alpha^0 is the identity, which the server rejects.
	k, err := c.nonZeroExponent()
	if err != nil {
		return nil, err
	}
	r1, r2 := c.engine.ComputePair(k)

	var challenge auth.ChallengeResponse
	err = c.do(ctx, http.MethodPost, "/auth/challenge", auth.ChallengeRequest{
		User: user,
		R1:   hex.EncodeToString(r1.Bytes()),
		R2:   hex.EncodeToString(r2.Bytes()),
	}, &challenge)
	if err != nil {
		return nil, err
	}

	cval, err := auth.DecodeScalar(challenge.C)
	if err != nil {
		return nil, fmt.Errorf("invalid challenge from server: %w", err)
	}

	s := c.engine.Solve(k, cval, x)

	var session auth.VerifyResponse
	err = c.do(ctx, http.MethodPost, "/auth/verify", auth.VerifyRequest{
		AuthID: challenge.AuthID,
		S:      auth.EncodeScalar(s),
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) nonZeroExponent() (*big.Int, error) {
	qm1 := new(big.Int).Sub(c.engine.Order(), big.NewInt(1))
	k, err := c.engine.RandomExponentBelow(qm1)
	if err != nil {
		return nil, err
	}
	return k.Add(k, big.NewInt(1)), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errResp auth.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil {
			apiErr.Kind = errResp.Error
			apiErr.Message = errResp.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
