package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 0.5, cfg.Router.ConfidenceThreshold)
	assert.Equal(t, 2, cfg.Verification.SearchAttempts)
	assert.Equal(t, 3, cfg.Newsletter.UpdateRetries)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	path := filepath.Join(t.TempDir(), "doorstep.yaml")
	body := `
server:
  addr: ":9001"
router:
  confidence_threshold: 0.7
store:
  backend: memory
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9001", cfg.Server.Addr)
	assert.Equal(t, 0.7, cfg.Router.ConfidenceThreshold)
	assert.Equal(t, "memory", cfg.Store.Backend)
	// Sections absent from the file keep defaults.
	assert.Equal(t, 2, cfg.Verification.SearchAttempts)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("OPENAI_API_KEY sets provider if empty", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("GEMINI_API_KEY", "")

		cfg := Default()
		cfg.LLM.Provider = ""
		cfg.applyEnvOverrides()

		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, "openai", cfg.LLM.Provider)
	})

	t.Run("GEMINI_API_KEY wins over OPENAI_API_KEY", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("GEMINI_API_KEY", "gm-key")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gm-key", cfg.LLM.APIKey)
		assert.Equal(t, "gemini", cfg.LLM.Provider)
	})

	t.Run("DOORSTEP_ADDR overrides listener", func(t *testing.T) {
		t.Setenv("DOORSTEP_ADDR", ":7777")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.Equal(t, ":7777", cfg.Server.Addr)
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Router.ConfidenceThreshold = 1.5
	assert.Error(t, cfg.validate())

	cfg = Default()
	cfg.Store.Backend = "mongodb"
	assert.Error(t, cfg.validate())

	cfg = Default()
	cfg.Verification.SearchAttempts = 0
	assert.Error(t, cfg.validate())
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, Duration("30s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("bogus", time.Minute))
}
