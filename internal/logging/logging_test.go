package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	dev, err := New(true, "")
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	prod, err := New(false, "")
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, prod.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "finqa.log")
	log, err := New(false, path)
	require.NoError(t, err)
	log.Info("ingestion finished", zap.Int("chunks", 3))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ingestion finished")
	assert.Contains(t, string(data), `"chunks":3`)
}

func TestForTerminalUI_NoFileIsSilent(t *testing.T) {
	log, err := ForTerminalUI(true, "")
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.ErrorLevel))
}
