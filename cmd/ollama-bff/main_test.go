package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Ltamann/tbg-ollama-bff/proxy/config"
	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseCLI(t *testing.T, args ...string) (CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("ollama-bff"))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return cli, kctx
}

func TestParse_ServeFromEnvironment(t *testing.T) {
	t.Setenv("OLLAMA_BASE", "127.0.0.1:11434/")
	t.Setenv("ALLOWED_MODELS", "llama3.1:latest, mistral ,")
	t.Setenv("API_KEYS", "k1,k2")
	t.Setenv("BOUNDED_TIMEOUT", "5")

	cli, kctx := parseCLI(t, "serve")
	assert.Equal(t, "serve", kctx.Command())
	assert.Equal(t, ":8000", cli.Serve.ListenAddr)

	cfg, err := cli.Serve.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:11434", cfg.OllamaBase)
	assert.Equal(t, config.DefaultModel, cfg.DefaultModel)
	assert.Equal(t, []string{"llama3.1:latest", "mistral"}, cfg.AllowedModels)
	assert.Equal(t, []string{"k1", "k2"}, cfg.RequiredAPIKeys)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 5, cfg.BoundedTimeout)
	assert.Equal(t, config.DefaultSystemDirective, cfg.SystemDirective)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := ServeCommand{}.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultOllamaBase, cfg.OllamaBase)
	assert.Equal(t, config.DefaultBoundedTimeout, cfg.BoundedTimeout)
	assert.Empty(t, cfg.AllowedModels)
	assert.True(t, cfg.Policy().Unrestricted())
}

func TestLoadConfig_FileThenOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ollamaBase: http://from-file:11434
defaultModel: mistral
allowedModels: [mistral, llama3.1:latest]
systemDirective: from file
boundedTimeout: 12
`), 0o644))

	directivePath := filepath.Join(dir, "directive.txt")
	require.NoError(t, os.WriteFile(directivePath, []byte("from directive file\n"), 0o644))

	cmd := ServeCommand{
		Config:              path,
		DefaultModel:        "llama3.1:latest",
		SystemDirectiveFile: directivePath,
	}
	cfg, err := cmd.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://from-file:11434", cfg.OllamaBase)
	assert.Equal(t, "llama3.1:latest", cfg.DefaultModel)
	assert.Equal(t, []string{"mistral", "llama3.1:latest"}, cfg.AllowedModels)
	assert.Equal(t, "from directive file", cfg.SystemDirective)
	assert.Equal(t, 12, cfg.BoundedTimeout)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := ServeCommand{Config: filepath.Join(t.TempDir(), "missing.yaml")}.loadConfig()
	assert.Error(t, err)

	_, err = ServeCommand{SystemDirectiveFile: filepath.Join(t.TempDir(), "missing.txt")}.loadConfig()
	assert.Error(t, err)

	_, err = ServeCommand{OllamaBase: "http://"}.loadConfig()
	assert.Error(t, err)
}

func TestNewProxyManager_CarriesVersion(t *testing.T) {
	cfg, err := ServeCommand{LogLevel: "error"}.loadConfig()
	require.NoError(t, err)
	pm := newProxyManager(cfg)
	assert.Equal(t, cfg.Policy().DefaultModel, pm.Policy().DefaultModel)
}
