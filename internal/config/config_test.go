package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(envCfgFile, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.API.Addr)
	assert.Equal(t, []string{"*"}, cfg.API.AllowedOrigins)
	assert.Equal(t, "u2net", cfg.Rembg.Model)
	assert.True(t, cfg.Rembg.AlphaMatting)
	assert.Equal(t, 255, cfg.Rembg.ForegroundThreshold)
	assert.Equal(t, 5, cfg.Rembg.ErodeSize)
	assert.Equal(t, 1, cfg.Rembg.Concurrency)
	assert.False(t, cfg.Rembg.Passthrough)
	assert.Empty(t, cfg.API.TrustedProxies)
	assert.Equal(t, "lanczos", cfg.Pipeline.Filter)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "/app/input", cfg.Batch.InputDir)
	assert.Equal(t, "/app/output", cfg.Batch.OutputDir)
	assert.GreaterOrEqual(t, cfg.Worker.MaxActiveJobs, 1)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(envCfgFile, "")
	t.Setenv("PIXELCUT_API_ADDR", ":9090")
	t.Setenv("PIXELCUT_REMBG_ENDPOINT", "http://rembg:7000")
	t.Setenv("PIXELCUT_REMBG_CONCURRENCY", "4")
	t.Setenv("PIXELCUT_FETCH_TIMEOUT", "3s")
	t.Setenv("PIXELCUT_REMBG_PASSTHROUGH", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.API.Addr)
	assert.Equal(t, "http://rembg:7000", cfg.Rembg.Endpoint)
	assert.Equal(t, 4, cfg.Rembg.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
	assert.True(t, cfg.Rembg.Passthrough)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixelcut.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  addr: ":7070"
rembg:
  model: isnet-general-use
  erode_size: 11
`), 0o644))
	t.Setenv(envCfgFile, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.API.Addr)
	assert.Equal(t, "isnet-general-use", cfg.Rembg.Model)
	assert.Equal(t, 11, cfg.Rembg.ErodeSize)
	assert.Equal(t, 255, cfg.Rembg.ForegroundThreshold)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv(envCfgFile, filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
