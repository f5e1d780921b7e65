package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New().FromBuffer(&buf).Service("press").Make()

	log.Info().Str("postId", "p1").Msg("created")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "press", entry["service"])
	assert.Equal(t, "p1", entry["postId"])
	assert.Equal(t, "created", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New().FromBuffer(&buf).Level("warn").Make()

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestUnknownLevelKeepsDefault(t *testing.T) {
	var buf bytes.Buffer
	log := New().FromBuffer(&buf).Level("loud").Make()

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestConsoleWriter(t *testing.T) {
	var buf bytes.Buffer
	log := New().FromBuffer(&buf).Console(true).Make()

	log.Info().Msg("readable")
	assert.Contains(t, buf.String(), "readable")
	assert.False(t, json.Valid(buf.Bytes()))
}
