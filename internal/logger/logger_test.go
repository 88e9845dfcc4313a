package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level    string
		expected []string
		excluded []string
	}{
		{"error", []string{"ERROR"}, []string{"WARN", "INFO", "DEBUG"}},
		{"warn", []string{"ERROR", "WARN"}, []string{"INFO", "DEBUG"}},
		{"info", []string{"ERROR", "WARN", "INFO"}, []string{"DEBUG"}},
		{"debug", []string{"ERROR", "WARN", "INFO", "DEBUG"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.level+".log")
			require.NoError(t, InitWithFileConfig(tt.level, FileConfig{Path: path, MaxSizeMB: 1}, false))

			Log.Debug("debug message")
			Log.Info("info message", zap.String("file", "model.ply"))
			Log.Warn("warn message")
			Log.Error("error message")
			Sync()

			content, err := os.ReadFile(path)
			require.NoError(t, err)
			for _, exp := range tt.expected {
				assert.Contains(t, string(content), `"level":"`+exp+`"`)
			}
			for _, exc := range tt.excluded {
				assert.NotContains(t, string(content), `"level":"`+exc+`"`)
			}
		})
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, InitWithFileConfig("loud", FileConfig{}, false))
}

func TestDefaultFileConfig(t *testing.T) {
	cfg := DefaultFileConfig("/tmp/modelconv.log")
	assert.Equal(t, "/tmp/modelconv.log", cfg.Path)
	assert.Equal(t, 20, cfg.MaxSizeMB)
	assert.Equal(t, 3, cfg.MaxBackups)
	assert.True(t, cfg.Compress)
}
