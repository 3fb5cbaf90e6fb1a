package engine

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "offlinesync", cfg.ServiceName)
	require.Equal(t, DefaultAPIOrigin, cfg.APIOrigin)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout)
	require.Equal(t, 1, cfg.ReplayAttempts)
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, 8, cfg.BackgroundLimit)
	require.Equal(t, 16, cfg.MaxConcurrentRequests)
	require.True(t, cfg.LogEnabled)
	require.Empty(t, cfg.DBPath)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("OFFLINESYNC_DB_PATH", "/var/lib/offlinesync/offline.db")
	t.Setenv("OFFLINESYNC_API_ORIGIN", "https://api.example.com")
	t.Setenv("OFFLINESYNC_REQUEST_TIMEOUT", "5s")
	t.Setenv("OFFLINESYNC_DRAIN_DEBOUNCE", "250ms")
	t.Setenv("OFFLINESYNC_MAX_RETRIES", "9")
	t.Setenv("OFFLINESYNC_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "/var/lib/offlinesync/offline.db", cfg.DBPath)
	require.Equal(t, "https://api.example.com", cfg.APIOrigin)
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)
	require.Equal(t, 250*time.Millisecond, cfg.DrainDebounce)
	require.Equal(t, 9, cfg.MaxRetries)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("OFFLINESYNC_REQUEST_TIMEOUT", "soon")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"relative origin", Config{APIOrigin: "/api"}},
		{"negative timeout", Config{RequestTimeout: -time.Second}},
		{"negative request cap", Config{MaxConcurrentRequests: -1}},
		{"negative retries", Config{MaxRetries: -1}},
		{"bad log level", Config{LogEnabled: true, LogLevel: "loud"}},
		{"bad exporter", Config{TracingExporter: "zipkin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.cfg.Validate(), ErrInvalidConfig)
		})
	}
	require.NoError(t, Config{}.Validate())
}
