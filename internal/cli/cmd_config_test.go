package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/okr/internal/config"
)

func TestConfigShow_OutputsValidYAML(t *testing.T) {
	isolate(t)

	out, err := runCLI(t, "config", "show")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, *config.Default(), cfg)
}

func TestConfigShow_WithSource(t *testing.T) {
	isolate(t)
	t.Setenv("OKR_CASCADE_WORKERS", "7")

	out, err := runCLI(t, "config", "show", "--source")
	require.NoError(t, err)
	assert.Contains(t, out, "cascade.workers = 7 (env)\n")
	assert.Contains(t, out, "cascade.queue_size = 256 (default)\n")
}

func TestConfigSetThenGet(t *testing.T) {
	isolate(t)

	out, err := runCLI(t, "config", "set", "--project", "snapshot.top_priorities", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Set snapshot.top_priorities = 5")
	assert.FileExists(t, filepath.Join(config.OkrDir, config.ConfigFileName))

	out, err = runCLI(t, "config", "get", "snapshot.top_priorities", "--source")
	require.NoError(t, err)
	assert.Equal(t, "5 (from project: .okr/config.yaml)\n", out)

	_, err = runCLI(t, "config", "set", "log_level", "debug")
	require.NoError(t, err)
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, config.OkrDir, config.ConfigFileName))
}

func TestConfigSet_RejectsInvalid(t *testing.T) {
	isolate(t)

	_, err := runCLI(t, "config", "set", "--project", "snapshot.risky_threshold", "2")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.NoFileExists(t, filepath.Join(config.OkrDir, config.ConfigFileName))

	_, err = runCLI(t, "config", "set", "cascade.workers", "many")
	assert.Error(t, err)
}

func TestConfigFlags(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "alt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("snapshot:\n  top_priorities: 3\n"), 0644))

	out, err := runCLI(t, "--config", path, "config", "get", "snapshot.top_priorities", "--source")
	require.NoError(t, err)
	assert.Equal(t, "3 (from flag: "+path+")\n", out)

	out, err = runCLI(t, "--log-level", "warn", "config", "get", "log_level", "--source")
	require.NoError(t, err)
	assert.Equal(t, "warn (from flag)\n", out)

	out, err = runCLI(t, "--verbose", "config", "get", "log_level")
	require.NoError(t, err)
	assert.Equal(t, "debug\n", out)

	t.Setenv("OKR_SNAPSHOT_TOP_PRIORITIES", "8")
	out, err = runCLI(t, "--config", path, "config", "get", "snapshot.top_priorities")
	require.NoError(t, err)
	assert.Equal(t, "8\n", out, "environment wins over --config")
}
