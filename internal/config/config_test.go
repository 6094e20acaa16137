package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "butido.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
repository = "/repo"
releases = "/releases"
release_stores = ["main"]
staging = "/staging"
source_cache = "/cache"
log_dir = "/logs"
available_phases = ["unpack", "build", "install"]

[database]
host = "localhost"
port = 5432
user = "butido"
password = "secret"
name = "butido"

[docker]
images = ["debian:bookworm"]

[docker.endpoints]
  [docker.endpoints.local]
  uri = "unix:///var/run/docker.sock"
  endpoint_type = "socket"
  speed = 10
  maxjobs = 2

[containers]
allowed_env = ["PATH"]
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.StrictInterpolation)
	assert.Equal(t, "#!/bin/bash", cfg.Shebang)
	assert.True(t, cfg.Docker.VerifyImagesPresent)
	assert.True(t, cfg.Docker.KeepFailedContainers)
}

func TestLoadRejectsMissingRequiredKeys(t *testing.T) {
	path := writeConfig(t, `repository = "/repo"`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "releases")
}

func TestLoadRejectsUnknownHighlightTheme(t *testing.T) {
	path := writeConfig(t, minimalConfig+"\nscript_highlight_theme = \"not-a-real-theme\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script_highlight_theme")
}

func TestLoadRejectsBadEndpointType(t *testing.T) {
	bad := minimalConfig + "\n[docker.endpoints.local]\nendpoint_type = \"carrier-pigeon\"\n"
	path := writeConfig(t, bad)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint_type")
}

func TestEnvOverridesConfigValue(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	t.Setenv("BUTIDO_REPOSITORY", "/overridden")
	t.Setenv("BUTIDO_DATABASE_HOST", "db.internal")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/overridden", cfg.Repository)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestEndpointConfigsTranslatesMap(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	eps := cfg.EndpointConfigs()
	require.Len(t, eps, 1)
	assert.Equal(t, "local", eps[0].Name)
	assert.Equal(t, "unix:///var/run/docker.sock", eps[0].URI)
	assert.Equal(t, []string{"debian:bookworm"}, eps[0].RequiredImages)
	assert.True(t, eps[0].KeepFailedContainers)
}
