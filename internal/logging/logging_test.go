package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	cases := []struct {
		raw  string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tc := range cases {
		log, err := New(tc.raw, false)
		require.NoError(t, err, tc.raw)
		assert.True(t, log.Core().Enabled(tc.want), tc.raw)
		if tc.want > zapcore.DebugLevel {
			assert.False(t, log.Core().Enabled(tc.want-1), tc.raw)
		}
	}
}

func TestNew_UnknownLevel(t *testing.T) {
	_, err := New("loud", true)
	assert.Error(t, err)
}
