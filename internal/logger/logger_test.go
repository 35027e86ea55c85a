package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"WARN", LogLevelWarn},
		{" error ", LogLevelError},
		{"info", LogLevelInfo},
		{"", LogLevelInfo},
		{"verbose", LogLevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSlogLogger_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, nil).Module("syncengine")

	log.Info("sync completed",
		Int("successful", 2),
		String("operation", "create-recipe"),
		Error(errors.New("boom")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "sync completed", rec["msg"])
	assert.Equal(t, "syncengine", rec["module"])
	assert.EqualValues(t, 2, rec["successful"])
	assert.Equal(t, "create-recipe", rec["operation"])
	assert.Equal(t, "boom", rec["error"])
}

func TestSlogLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelWarn, nil)

	log.Debug("hidden")
	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}
