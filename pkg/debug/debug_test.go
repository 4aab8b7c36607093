package debug_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/tokenhints/pkg/debug"
)

func TestSplitFuncName(t *testing.T) {
	tests := []struct {
		in, pkg, fn string
	}{
		{"github.com/walteh/tokenhints/pkg/engine.(*Engine).Edit", "github.com/walteh/tokenhints/pkg/engine", "(*Engine).Edit"},
		{"main.main", "main", "main"},
		{"runtime", "runtime", ""},
	}
	for _, tt := range tests {
		pkg, fn := debug.SplitFuncName(tt.in)
		assert.Equal(t, tt.pkg, pkg, tt.in)
		assert.Equal(t, tt.fn, fn, tt.in)
	}
}

func TestFormatCaller(t *testing.T) {
	assert.Equal(t, "pkg/engine:engine.go:12", debug.FormatCaller("pkg/engine", "/src/pkg/engine/engine.go", 12, false))
}

func TestJSONLoggerHooks(t *testing.T) {
	var buf bytes.Buffer
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	logger := zerolog.New(&buf).Hook(debug.CustomTimeHook{Now: func() time.Time { return fixed }}).Hook(debug.CustomCallerHook{})

	logger.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "2024-03-01T10:00:00.0000Z", line["time"])
	assert.Contains(t, line["caller"], "debug_test.go")
}

func TestLevel(t *testing.T) {
	assert.Equal(t, zerolog.TraceLevel, debug.Level(true))
	assert.Equal(t, zerolog.InfoLevel, debug.Level(false))
}
