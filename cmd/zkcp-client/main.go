package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/allsmog/zkcp-auth/internal/logging"
	"github.com/allsmog/zkcp-auth/pkg/client"
	"github.com/allsmog/zkcp-auth/pkg/crypto/group"
)

func main() {
	var (
		authServer = flag.String("auth-server", "http://localhost:8080", "Auth server base URL")
		apiServer  = flag.String("api-server", "", "Demo API base URL to call with the token (optional)")
		groupName  = flag.String("group", group.DefaultGroup, fmt.Sprintf("Group to use %v", group.SupportedGroups()))
		skipReg    = flag.Bool("login-only", false, "Skip registration")
		logLevel   = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger := logging.Default(*logLevel, true)

	if err := run(context.Background(), os.Stdin, os.Stdout, logger, options{
		authServer: *authServer,
		apiServer:  *apiServer,
		groupName:  *groupName,
		loginOnly:  *skipReg,
	}); err != nil {
		logger.Fatal().Err(err).Msg("client failed")
	}
}

type options struct {
	authServer string
	apiServer  string
	groupName  string
	loginOnly  bool
}

func run(ctx context.Context, in io.Reader, out io.Writer, logger zerolog.Logger, opts options) error {
	grp, err := group.FromName(opts.groupName)
	if err != nil {
		return err
	}

	c := client.New(opts.authServer, grp)
	if err := c.CheckGroup(ctx); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	prompt := func(msg string) (string, error) {
		fmt.Fprintln(out, msg)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		return strings.TrimSpace(scanner.Text()), nil
	}

	user, err := prompt("Please provide username")
	if err != nil {
		return err
	}

	if !opts.loginOnly {
		password, err := prompt("Please provide password")
		if err != nil {
			return err
		}
		if err := c.Register(ctx, user, password); err != nil {
			return fmt.Errorf("register: %w", err)
		}
		logger.Info().Str("user", user).Msg("registered")
	}

	password, err := prompt("Please provide the password (to login)")
	if err != nil {
		return err
	}

	session, err := c.Login(ctx, user, password)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return errors.New("login rejected: wrong password")
		}
		return fmt.Errorf("login: %w", err)
	}

	logger.Info().Str("session_id", session.SessionID).Int64("expires_in", session.ExpiresIn).Msg("logged in")
	fmt.Fprintln(out, session.SessionID)

	if opts.apiServer != "" {
		return callAPI(ctx, out, opts.apiServer, session.AccessToken)
	}
	return nil
}

func callAPI(ctx context.Context, out io.Writer, apiServer, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(apiServer, "/")+"/api/profile", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api returned %d", resp.StatusCode)
	}
	_, err = io.Copy(out, resp.Body)
	return err
}
