package logging

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		appName string
		want    string
	}{
		{
			name:    "basic path",
			logsDir: "logs",
			appName: "projector",
			want:    filepath.Join("logs", "projector.20260212_213836.log"),
		},
		{
			name:    "relative path with dot",
			logsDir: "./logs",
			appName: "projector",
			want:    filepath.Join(".", "logs", "projector.20260212_213836.log"),
		},
		{
			name:    "absolute path",
			logsDir: filepath.Join("/var", "log", "projector"),
			appName: "projector",
			want:    filepath.Join("/var", "log", "projector", "projector.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.appName, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.TraceLevel, zerologLevel("trace"))
	assert.Equal(t, zerolog.DebugLevel, zerologLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, zerologLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, zerologLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, zerologLevel("bogus"))
}

func TestNewZerolog(t *testing.T) {
	var console, file bytes.Buffer
	logger := NewZerolog("warn", &console, nil, &file)

	logger.Info().Msg("quiet")
	logger.Warn().Str("sink", "influx").Msg("backup opened")

	assert.NotContains(t, file.String(), "quiet")
	assert.Contains(t, file.String(), "backup opened")
	assert.Contains(t, file.String(), "sink=influx")
	assert.Contains(t, console.String(), "backup opened")
}

func TestNewZerolog_NoWriters(t *testing.T) {
	logger := NewZerolog("info")
	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
}
