package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, "8083", cfg.Port)
	require.Equal(t, 300*time.Millisecond, cfg.ScrollDebounce)
	require.Equal(t, 10*time.Second, cfg.SendTimeout)
	require.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("JWT_SECRET=from-env-file-123456\nSCROLL_DEBOUNCE=150ms\n"), 0o600))
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	t.Setenv("SCROLL_DEBOUNCE", "")
	os.Unsetenv("SCROLL_DEBOUNCE")

	cfg, err := Load(file)

	require.NoError(t, err)
	require.Equal(t, "from-env-file-123456", cfg.JWTSecret)
	require.Equal(t, 150*time.Millisecond, cfg.ScrollDebounce)
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()

	require.Error(t, err)
}

func TestLoadRejectsInvertedReconnectRange(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("LISTENER_MIN_RECONNECT", "10s")
	t.Setenv("LISTENER_MAX_RECONNECT", "1s")

	_, err := Load()

	require.Error(t, err)
}
