package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allsmog/zkcp-auth/internal/config"
	"github.com/allsmog/zkcp-auth/pkg/client"
	"github.com/allsmog/zkcp-auth/pkg/crypto/chaumpedersen"
	"github.com/allsmog/zkcp-auth/pkg/crypto/group"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:         "0",
		AppName:      "test",
		Env:          config.EnvDev,
		Group:        group.GroupRFC5114,
		Issuer:       "https://auth.test",
		Audience:     "zkcp-api",
		TokenTTL:     time.Minute,
		ChallengeTTL: time.Minute,
		RateLimit:    1000,
		AdminToken:   "admin",
	}
}

func TestApp(t *testing.T) {
	a, err := newApp(testConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { a.store.Close() })

	srv := httptest.NewServer(a.router)
	t.Cleanup(srv.Close)

	t.Run("Health", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"status":"ok"`)
	})

	t.Run("Login", func(t *testing.T) {
		grp, err := group.FromName(group.GroupRFC5114)
		require.NoError(t, err)
		c := client.New(srv.URL, grp, client.WithKDFParams(chaumpedersen.KDFParams{Time: 1, Memory: 1024, Threads: 1}))

		ctx := context.Background()
		require.NoError(t, c.CheckGroup(ctx))
		require.NoError(t, c.Register(ctx, "alice", "pw"))
		session, err := c.Login(ctx, "alice", "pw")
		require.NoError(t, err)
		assert.NotEmpty(t, session.AccessToken)
		assert.Equal(t, 1, a.store.Stats().Users)
	})

	t.Run("AdminUsers", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/admin/users", nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		req.Header.Set("Authorization", "Bearer admin")
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"user":"alice"`)
	})
}

func TestNewAppRejectsUnknownGroup(t *testing.T) {
	cfg := testConfig()
	cfg.Group = "p-256"
	_, err := newApp(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Port = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zerolog.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
