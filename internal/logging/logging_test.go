package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, "warn", false)
		assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

		logger.Info().Msg("dropped")
		assert.Zero(t, buf.Len())

		logger.Warn().Str("user", "alice").Msg("kept")
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "kept", line["message"])
		assert.Equal(t, "alice", line["user"])
		assert.Contains(t, line, "time")
	})

	t.Run("Console", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, "debug", true)
		logger.Debug().Msg("hello")
		assert.Contains(t, buf.String(), "hello")
		assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
	})

	t.Run("UnknownLevel", func(t *testing.T) {
		assert.Equal(t, zerolog.InfoLevel, New(&bytes.Buffer{}, "loud", false).GetLevel())
		assert.Equal(t, zerolog.InfoLevel, New(&bytes.Buffer{}, "", false).GetLevel())
	})
}
