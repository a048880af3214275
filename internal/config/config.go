package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allsmog/zkcp-auth/pkg/crypto/group"
)

// Environments
const (
	EnvDev  = "DEV"
	EnvProd = "PROD"
)

// Config is the auth server configuration.
type Config struct {
	Port          string
	AppName       string
	Env           string
	LogLevel      string
	Group         string
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	ChallengeTTL  time.Duration
	RateLimit     int // requests per minute per client IP
	KeyFile       string
	KeyConfigFile string
	AdminToken    string // bearer token for /admin; empty disables the admin routes
}

// Load reads the configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	c := &Config{
		Port:          GetEnv(portEnvVar, "8080"),
		AppName:       GetEnv(appNameEnvVar, "zkcp auth"),
		Env:           strings.ToUpper(GetEnv(envEnvVar, EnvDev)),
		LogLevel:      GetEnv(logLevelEnvVar, "info"),
		Group:         GetEnv(groupEnvVar, group.DefaultGroup),
		Issuer:        GetEnv(issuerEnvVar, "https://auth.zkcp.example"),
		Audience:      GetEnv(audienceEnvVar, "zkcp-api"),
		KeyFile:       GetEnv(keyFileEnvVar, ""),
		KeyConfigFile: GetEnv(keyConfigFileEnvVar, ""),
		AdminToken:    GetEnv(adminTokenEnvVar, ""),
	}

	var errs []error
	var err error

	if c.TokenTTL, err = getDuration(tokenTTLEnvVar, 5*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if c.ChallengeTTL, err = getDuration(challengeTTLEnvVar, 2*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit, err = getInt(rateLimitEnvVar, 120); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Addr returns the listen address for Port, which may be a bare port.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// IsDev reports whether the server runs in the development environment.
func (c *Config) IsDev() bool {
	return c.Env == EnvDev
}

// Validate checks value ranges after flags were applied.
func (c *Config) Validate() error {
	switch {
	case c.TokenTTL <= 0:
		return fmt.Errorf("token TTL must be positive, got %v", c.TokenTTL)
	case c.ChallengeTTL < 0:
		return fmt.Errorf("challenge TTL must not be negative, got %v", c.ChallengeTTL)
	case c.RateLimit <= 0:
		return fmt.Errorf("rate limit must be positive, got %d", c.RateLimit)
	case c.Audience == "":
		return errors.New("audience must not be empty")
	}
	return nil
}
