package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func write(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestReadConfigMergesLocalOverrides(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "fanarchive.json5"), `{
		// defaults checked into the repo
		base_url: "https://archive.example.org",
		username: "placeholder",
	}`)
	write(t, filepath.Join(dir, "fanarchive.local.json5"), `{
		username: "alice",
		password: "hunter2",
	}`)

	config, err := ReadConfig[testConfig](filepath.Join(dir, "fanarchive.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://archive.example.org", config.BaseUrl)
	require.Equal(t, "alice", config.Username)
	require.Equal(t, "hunter2", config.Password)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "fanarchive.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadConfigLocalOnly(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "fanarchive.local.json5"), `{ username: "bob" }`)

	config, err := ReadConfig[testConfig](filepath.Join(dir, "fanarchive.json5"))
	require.NoError(t, err)
	require.Equal(t, "bob", config.Username)
}
