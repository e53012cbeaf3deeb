package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pdfchat.log")
	log, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)

	log.Info("registry refreshed")
	log.Debug("hidden below info")
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"message":"registry refreshed"`)
	require.NotContains(t, string(raw), "hidden below info")
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	require.Error(t, err)
}
