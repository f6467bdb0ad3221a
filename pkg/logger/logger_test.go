package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "levellist.log")

	log := New("info", "json", path).Component("engine")
	log.Info().Uint("level_id", 7).Msg("Level added")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.True(t, strings.Contains(line, `"component":"engine"`))
	assert.True(t, strings.Contains(line, `"level_id":7`))
	assert.True(t, strings.Contains(line, "Level added"))
}

func TestNop(t *testing.T) {
	log := Nop()
	assert.False(t, log.IsDebug())
	assert.NotNil(t, log.Zerolog())
	log.Error().Msg("discarded")
}
