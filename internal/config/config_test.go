package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at an empty directory so no user config is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CONTENTSYNC_CONFIG", "")
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".local", "share", "contentsync", "content.db"), c.Database.Path)
	assert.Equal(t, "127.0.0.1:8081", c.HTTP.Addr())
	assert.Equal(t, "cmgr", c.HTTP.Namespace)
	assert.Equal(t, 8, c.Listing.Concurrency)
	assert.Equal(t, 20, c.Listing.PageSize)
	assert.Equal(t, 4, c.Homescreen.GridWidth)
	assert.Equal(t, 30*time.Second, c.Fetch.Timeout)
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "contentsync.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "/tmp/content.db"

[http]
port = 9000

[listing]
page_size = 5

[fetch]
timeout = "2s"
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/content.db", c.Database.Path)
	assert.Equal(t, 9000, c.HTTP.Port)
	assert.Equal(t, 5, c.Listing.PageSize)
	assert.Equal(t, 2*time.Second, c.Fetch.Timeout)
	assert.Equal(t, 8, c.Listing.Concurrency)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "contentsync.toml")
	require.NoError(t, os.WriteFile(path, []byte("[http]\nport = 9000\n"), 0o644))
	t.Setenv("CONTENTSYNC_HTTP_PORT", "9100")
	t.Setenv("CONTENTSYNC_HOMESCREEN_GRID_WIDTH", "6")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, c.HTTP.Port)
	assert.Equal(t, 6, c.Homescreen.GridWidth)
}

func TestLoad_ConfigEnvVar(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "env.toml")
	require.NoError(t, os.WriteFile(path, []byte("[http]\nnamespace = \"content\"\n"), 0o644))
	t.Setenv("CONTENTSYNC_CONFIG", path)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "content", c.HTTP.Namespace)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	isolate(t)
	t.Setenv("CONTENTSYNC_LISTING_CONCURRENCY", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing.concurrency")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	err := Config{HTTP: HTTPConfig{Port: 70000, Namespace: "a/b"}}.Validate()
	require.Error(t, err)

	for _, key := range []string{"database.path", "http.port", "http.namespace", "listing.page_size", "fetch.timeout"} {
		assert.Contains(t, err.Error(), key)
	}
}
