package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	require.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{ServiceName: "sorting-api", Level: zerolog.InfoLevel, Output: &buf})

	log.Debug().Msg("hidden")
	log.Info().Str("bag_id", "BAG_000001").Msg("bag created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "sorting-api", entry["service"])
	require.Equal(t, "BAG_000001", entry["bag_id"])
	require.Equal(t, "bag created", entry["message"])
}
