package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	portEnvVar          = "PORT"
	appNameEnvVar       = "APP_NAME"
	envEnvVar           = "ENV"
	logLevelEnvVar      = "LOG_LEVEL"
	groupEnvVar         = "ZKCP_GROUP"
	issuerEnvVar        = "ISSUER"
	audienceEnvVar      = "AUDIENCE"
	tokenTTLEnvVar      = "TOKEN_TTL"
	challengeTTLEnvVar  = "CHALLENGE_TTL"
	rateLimitEnvVar     = "RATE_LIMIT"
	keyFileEnvVar       = "KEY_FILE"
	keyConfigFileEnvVar = "KEY_CONFIG_FILE"
	adminTokenEnvVar    = "ADMIN_TOKEN"
)

// GetEnv returns the value of envVar, or defaultValue when unset or empty.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(envVar string, defaultValue time.Duration) (time.Duration, error) {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", envVar, err)
	}
	return d, nil
}

func getInt(envVar string, defaultValue int) (int, error) {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", envVar, err)
	}
	return n, nil
}
