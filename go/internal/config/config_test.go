package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BUZZER_CONFIG", "PORT", "ALLOWED_ORIGINS", "LOG_LEVEL", "NATS_URL", "NATS_SUBJECT_PREFIX",
		"GAME_DEFAULT_TIME_LIMIT_SEC", "GAME_DEFAULT_COUNTDOWN_SEC", "GAME_SWEEP_INTERVAL_MS",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buzzer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, time.Second, cfg.Game.SweepInterval())
	assert.Empty(t, cfg.NATS.URL, "event mirror is off by default")
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
server:
  port: "9090"
  allowed_origins: ["https://quiz.example.com"]
  shutdown_timeout: 5s
log:
  level: debug
  console: false
game:
  default_time_limit_sec: 45
  sweep_interval_ms: 250
nats:
  url: nats://broker:4222
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://quiz.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Console)
	assert.Equal(t, 45, cfg.Game.DefaultTimeLimitSec)
	assert.Equal(t, 3, cfg.Game.DefaultCountdownSec, "unset keys keep their default")
	assert.Equal(t, 250*time.Millisecond, cfg.Game.SweepInterval())
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "buzzer.sessions", cfg.NATS.SubjectPrefix)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "server:\n  port: \"9090\"\ngame:\n  default_time_limit_sec: 45\n")

	t.Setenv("BUZZER_CONFIG", path)
	t.Setenv("PORT", "7000")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("GAME_DEFAULT_TIME_LIMIT_SEC", "20")
	t.Setenv("GAME_DEFAULT_COUNTDOWN_SEC", "0")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("NATS_SUBJECT_PREFIX", "quiz.events")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 20, cfg.Game.DefaultTimeLimitSec)
	assert.Equal(t, 0, cfg.Game.DefaultCountdownSec)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "quiz.events", cfg.NATS.SubjectPrefix)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "non-numeric env", env: map[string]string{"GAME_SWEEP_INTERVAL_MS": "fast"}},
		{name: "zero time limit", env: map[string]string{"GAME_DEFAULT_TIME_LIMIT_SEC": "0"}},
		{name: "negative countdown", env: map[string]string{"GAME_DEFAULT_COUNTDOWN_SEC": "-1"}},
		{name: "bad yaml", file: "server: [unclosed"},
		{name: "missing prefix with nats", file: "nats:\n  url: nats://x:4222\n  subject_prefix: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}

			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
