package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allsmog/zkcp-auth/pkg/auth"
	"github.com/allsmog/zkcp-auth/pkg/crypto/chaumpedersen"
	"github.com/allsmog/zkcp-auth/pkg/crypto/group"
	"github.com/allsmog/zkcp-auth/pkg/jwt"
	"github.com/allsmog/zkcp-auth/pkg/storage"
)

var testKDF = chaumpedersen.KDFParams{Time: 1, Memory: 1024, Threads: 1}

func newServer(t *testing.T, groupName string) (*httptest.Server, *jwt.ES256Signer) {
	t.Helper()
	grp, err := group.FromName(groupName)
	require.NoError(t, err)

	engine := chaumpedersen.NewEngine(grp)
	store := storage.NewMemoryStore(storage.WithAuthIDGenerator(auth.NewAuthIDGenerator(engine)))
	t.Cleanup(func() { store.Close() })

	key, err := jwt.GenerateES256KeyPair()
	require.NoError(t, err)
	signer, err := jwt.NewES256Signer(key, "", "https://auth.test")
	require.NoError(t, err)

	protocol := auth.NewProtocol(engine, store, zerolog.Nop())
	handlers := auth.NewHandlers(protocol, store, signer, auth.Config{
		Issuer:   "https://auth.test",
		Audience: "zkcp-api",
		TokenTTL: time.Minute,
	})

	r := chi.NewRouter()
	handlers.Mount(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, signer
}

func newClient(t *testing.T, url, groupName string) *Client {
	t.Helper()
	grp, err := group.FromName(groupName)
	require.NoError(t, err)
	return New(url, grp, WithKDFParams(testKDF), WithHTTPClient(&http.Client{Timeout: 10 * time.Second}))
}

func TestClient_RegisterAndLogin(t *testing.T) {
	for _, name := range group.SupportedGroups() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			srv, signer := newServer(t, name)
			c := newClient(t, srv.URL+"/", name)

			require.NoError(t, c.CheckGroup(ctx))
			require.NoError(t, c.Register(ctx, "alice", "correct horse battery staple"))

			session, err := c.Login(ctx, "alice", "correct horse battery staple")
			require.NoError(t, err)
			assert.NotEmpty(t, session.SessionID)

			claims, err := jwt.NewVerifier(signer.JWKS(), "https://auth.test", "zkcp-api").Verify(session.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, "alice", claims.Subject)
			assert.Equal(t, name, claims.ZK.Group)
		})
	}
}

func TestClient_Failures(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t, group.GroupRFC5114)
	c := newClient(t, srv.URL, group.GroupRFC5114)

	require.NoError(t, c.Register(ctx, "bob", "s3cret"))

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := c.Login(ctx, "bob", "guess")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
		assert.Equal(t, "authentication_failed", apiErr.Kind)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := c.Login(ctx, "carol", "s3cret")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
		assert.Equal(t, "user_not_found", apiErr.Kind)
	})

	t.Run("EmptyPassword", func(t *testing.T) {
		err := c.Register(ctx, "dave", "")
		assert.ErrorIs(t, err, chaumpedersen.ErrEmptyPassword)
	})

	t.Run("GroupMismatch", func(t *testing.T) {
		other := newClient(t, srv.URL, group.GroupModP2048)
		assert.ErrorIs(t, other.CheckGroup(ctx), ErrGroupMismatch)
	})

	t.Run("ServerDown", func(t *testing.T) {
		down := newClient(t, "http://127.0.0.1:1", group.GroupRFC5114)
		_, err := down.Params(ctx)
		assert.Error(t, err)
	})
}

func TestAPIError(t *testing.T) {
	assert.Equal(t, "server returned 502", (&APIError{Status: 502}).Error())
	assert.Equal(t, "server returned 404: user_not_found: user is not registered",
		(&APIError{Status: 404, Kind: "user_not_found", Message: "user is not registered"}).Error())
}
