package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithWriterWritesServiceField(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug", "api-server")
	log.Debug().Str("slot_id", "abc").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "api-server", line["service"])
	require.Equal(t, "abc", line["slot_id"])
	require.Equal(t, "hello", line["message"])
}

func TestNewWithWriterFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "worker")
	log.Info().Msg("dropped")
	require.Zero(t, buf.Len())

	var fallback bytes.Buffer
	log = NewWithWriter(&fallback, "nonsense", "worker")
	log.Debug().Msg("dropped")
	log.Info().Msg("kept")
	require.Contains(t, fallback.String(), "kept")
	require.NotContains(t, fallback.String(), "dropped")
}
