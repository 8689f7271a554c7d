package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerDefaultsWithoutFile(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	p := m.Pipeline()
	assert.Equal(t, DefaultThreads, p.Threads)
	assert.Equal(t, DefaultDPI, p.DPI)
	assert.Equal(t, DefaultSourceLang, p.SourceLang)
	assert.Equal(t, DefaultTargetLang, p.TargetLang)
}

func TestPipelineFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"pipeline": {"threads": 8, "dpi": 200, "target_lang": "ja"}
	}`), 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)
	p := m.Pipeline()
	assert.Equal(t, 8, p.Threads)
	assert.Equal(t, 200, p.DPI)
	assert.Equal(t, "ja", p.TargetLang)
}

func TestServiceParamsEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"services": {"openai": {"model": "gpt-4o-mini", "api_key": "from-file"}}
	}`), 0o644))

	t.Setenv("PDFTRANSLATOR_OPENAI_API_KEY", "from-env")

	m, err := NewManager(path)
	require.NoError(t, err)
	params := m.ServiceParams("openai")
	assert.Equal(t, "gpt-4o-mini", params["model"])
	// Environment wins over the persisted value.
	assert.Equal(t, "from-env", params["api_key"])
}

func TestSetServiceParamSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	m, err := NewManager(path)
	require.NoError(t, err)

	m.SetServiceParam("google", "endpoint", "https://example.test/m")
	require.NoError(t, m.Save())

	reloaded, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/m", reloaded.ServiceParams("google")["endpoint"])
}

func TestMalformedConfigFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewManager(path)
	assert.Error(t, err)
}
