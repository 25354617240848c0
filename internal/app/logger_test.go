package app

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLogger_JSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "shutterspot-api", "1.2.3", "production")

	log.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"service":"shutterspot-api"`)
	assert.Contains(t, buf.String(), `"version":"1.2.3"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestNewLogger_ConsoleInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "shutterspot-worker", "dev", "development")

	log.Info().Msg("hello")

	assert.NotContains(t, buf.String(), `"message"`)
	assert.Contains(t, buf.String(), "hello")
}

func TestWithLevel(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"verbose", zerolog.TraceLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, WithLevel(base, tt.level).GetLevel())
		})
	}
}
