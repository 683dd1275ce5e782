package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, "http://localhost:8000", cfg.Backend.URL)
	assert.Equal(t, "live", cfg.Backend.Mode)
	assert.False(t, cfg.Backend.FallbackSimulation)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 400*time.Millisecond, cfg.Backend.SimulationInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("BACKEND_MODE", "simulation")
	t.Setenv("BACKEND_FALLBACK_CAPABILITIES", "transcription, speakerSplit")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("BACKEND_SIMULATION_INTERVAL", "50ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "simulation", cfg.Backend.Mode)
	assert.Equal(t, []string{"transcription", "speakerSplit"}, cfg.Backend.FallbackCapabilities)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 50*time.Millisecond, cfg.Backend.SimulationInterval)
}

func TestLoad_InvalidMode(t *testing.T) {
	t.Setenv("BACKEND_MODE", "pretend")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidBackendURL(t *testing.T) {
	t.Setenv("BACKEND_URL", "localhost:8000")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_NoSimulationInProduction(t *testing.T) {
	t.Setenv("SERVER_ENV", "production")
	t.Setenv("BACKEND_MODE", "simulation")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_StreamTimeouts(t *testing.T) {
	t.Setenv("BACKEND_TIMEOUT", "2m")
	t.Setenv("BACKEND_STREAM_TIMEOUTS", "speakerSplit=20m, document=3m, bogus, voiceClone=-1s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Backend.Timeout)
	assert.Equal(t, map[string]time.Duration{
		"speakerSplit": 20 * time.Minute,
		"document":     3 * time.Minute,
	}, cfg.Backend.StreamTimeouts, "malformed and non-positive entries are dropped")
}

func TestEnvDuration_Invalid(t *testing.T) {
	t.Setenv("SERVER_READ_TIMEOUT", "a while")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout, "bad values fall back to the default")
}
