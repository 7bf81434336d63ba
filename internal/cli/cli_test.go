package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
	"github.com/roach88/contentsync/internal/store"
	"github.com/roach88/contentsync/internal/testutil"
)

// cliHarness runs commands against one database with predictable ids and
// http key, the way separate invocations of the binary would.
type cliHarness struct {
	t       *testing.T
	db      string
	ids     *testutil.SequenceIDs
	remote  *testutil.FakeFetcher
	lastErr string
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CONTENTSYNC_CONFIG", "")
	return &cliHarness{
		t:      t,
		db:     filepath.Join(t.TempDir(), "content.db"),
		ids:    testutil.NewSequenceIDs("res"),
		remote: testutil.NewFakeFetcher(nil),
	}
}

func (h *cliHarness) run(args ...string) (string, error) {
	h.t.Helper()
	opts := &RootOptions{
		StoreOptions: []store.Option{
			store.WithIDGenerator(h.ids),
			store.WithHTTPKey("test-key"),
		},
		Fetcher: service.FileFetcher{Remote: h.remote},
	}
	cmd := NewRootCommandWithOptions(opts)

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--db", h.db}, args...))

	err := cmd.ExecuteContext(context.Background())
	h.lastErr = errOut.String()
	return out.String(), err
}

func (h *cliHarness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "args %v\nstdout: %s\nstderr: %s", args, out, h.lastErr)
	return out
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestActionsList_SeedsDefaults(t *testing.T) {
	h := newCLIHarness(t)

	out := h.mustRun("actions", "list")
	newGoldie(t).Assert(t, "actions_list", []byte(out))

	// The second run loads what the first one stored.
	assert.Equal(t, out, h.mustRun("actions", "list"))
}

func TestActionsAdd_JSON(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("actions", "list")

	icon := filepath.Join(t.TempDir(), "notes.svg")
	require.NoError(t, os.WriteFile(icon, []byte("<svg/>"), 0o644))

	out := h.mustRun("--format", "json", "actions", "add",
		"--id", "notes",
		"--title", "Notes",
		"--url", "http://notes.localhost/index.html",
		"--icon", icon,
	)
	newGoldie(t).Assert(t, "actions_add", []byte(out))

	var resp struct {
		Data []actionView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("--format", "json", "actions", "list")), &resp))
	require.Len(t, resp.Data, 4)
	assert.Equal(t, "notes", resp.Data[3].ID)
	assert.Equal(t, "3,0", resp.Data[3].Position)
}

func TestActionsAdd_GeneratesID(t *testing.T) {
	h := newCLIHarness(t)

	var resp struct {
		Data actionView `json:"data"`
	}
	out := h.mustRun("--format", "json", "actions", "add", "--url", "http://x.localhost/", "--position", "0,4")
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Data.ID, 36)
	assert.Equal(t, "0,4", resp.Data.Position)
	assert.Empty(t, resp.Data.Icon)
}

func TestActionsAdd_Duplicate(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("actions", "add", "--id", "settings", "--url", "http://x.localhost/")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestActionsMove_YAML(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("actions", "list")

	out := h.mustRun("--format", "yaml", "actions", "move", "browser", "0,1")
	newGoldie(t).Assert(t, "actions_move", []byte(out))
}

func TestActionsMove_InvalidPosition(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run("actions", "move", "browser", "up")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestActionsRemove(t *testing.T) {
	h := newCLIHarness(t)

	assert.Equal(t, "removed media\n", h.mustRun("actions", "remove", "media"))

	out, err := h.run("--format", "json", "actions", "remove", "media")
	require.Error(t, err)
	assert.Contains(t, out, `"code":"E005"`)

	var resp struct {
		Data []actionView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("--format", "json", "actions", "list")), &resp))
	assert.Len(t, resp.Data, 2)
}

func TestActionsSlots(t *testing.T) {
	h := newCLIHarness(t)

	var resp struct {
		Data slotList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("--format", "json", "actions", "slots", "--width", "3")), &resp))
	assert.Equal(t, 3, resp.Data.Width)
	// 12 rows of 3 minus the three seeded actions on row 0.
	require.Len(t, resp.Data.Slots, 33)
	assert.Equal(t, "0,1", resp.Data.Slots[0])
}

func TestPlacesAndTop(t *testing.T) {
	h := newCLIHarness(t)

	h.mustRun("places", "upsert", "http://example.com/a#section", "--title", "Alpha")
	h.mustRun("places", "upsert", "http://example.com/b", "--title", "Beta")
	h.mustRun("visit", "http://example.com/a")
	h.mustRun("visit", "http://example.com/b", "--high")

	newGoldie(t).Assert(t, "top", []byte(h.mustRun("top")))

	var resp struct {
		Data []entryView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("--format", "json", "places", "search", "Alpha")), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "http://example.com/a", resp.Data[0].Name)
	assert.Equal(t, []string{"places"}, resp.Data[0].Tags)
	assert.JSONEq(t, `{"url":"http://example.com/a","title":"Alpha","icon":""}`, string(resp.Data[0].Content))
}

func TestPlacesUpsert_StoresIcon(t *testing.T) {
	h := newCLIHarness(t)
	h.remote.Set("http://example.com/favicon.png", resource.Blob{MimeType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}})

	var resp struct {
		Data resourceView `json:"data"`
	}
	out := h.mustRun("--format", "json", "places", "upsert", "http://example.com/", "--icon", "http://example.com/favicon.png")
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "image/png (4 B)", resp.Data.Variants["icon"])

	// Same icon again: not refetched.
	h.mustRun("places", "upsert", "http://example.com/", "--title", "Example", "--icon", "http://example.com/favicon.png")
	assert.Len(t, h.remote.Requests(), 1)
}

func TestPlacesUpsert_InvalidURL(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("places", "upsert", "about:blank")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "invalid place url")
}

func TestRecent_ListsLastModifiedFirst(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("places", "upsert", "http://example.com/a", "--title", "Alpha")
	h.mustRun("places", "upsert", "http://example.com/b", "--title", "Beta")
	h.mustRun("places", "upsert", "http://example.com/a", "--title", "Alpha again")

	var resp struct {
		Data []entryView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("--format", "json", "recent", "-n", "2")), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "http://example.com/a", resp.Data[0].Name)
	assert.Equal(t, "http://example.com/b", resp.Data[1].Name)
}

func TestMediaSearch_Empty(t *testing.T) {
	h := newCLIHarness(t)
	assert.Equal(t, "No entries.\n", h.mustRun("media", "search"))
}

func TestPlugins(t *testing.T) {
	h := newCLIHarness(t)
	dir := t.TempDir()
	wasm := filepath.Join(dir, "hello.wasm")
	require.NoError(t, os.WriteFile(wasm, []byte{0x00, 'a', 's', 'm'}, 0o644))
	manifest := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(manifest, []byte(`{"name":"hello"}`), 0o644))

	assert.Equal(t, "No resources.\n", h.mustRun("plugins", "list"))

	h.mustRun("plugins", "add", wasm, "--manifest", manifest)

	var resp struct {
		Data []resourceView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("--format", "json", "plugins", "list")), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "application/wasm (4 B)", resp.Data[0].Variants["wasm"])
	assert.Contains(t, resp.Data[0].Variants["default"], "application/json")
}

func TestPluginsAdd_RejectsNonWasm(t *testing.T) {
	h := newCLIHarness(t)
	path := filepath.Join(t.TempDir(), "plugin.txt")
	require.NoError(t, os.WriteFile(path, []byte("text"), 0o644))

	out, err := h.run("plugins", "add", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E008]")
}

func TestConfigFileIsHonored(t *testing.T) {
	h := newCLIHarness(t)
	cfg := filepath.Join(t.TempDir(), "contentsync.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("[homescreen]\ngrid_width = 2\n"), 0o644))

	var resp struct {
		Data slotList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("--config", cfg, "--format", "json", "actions", "slots")), &resp))
	assert.Equal(t, 2, resp.Data.Width)
}

func TestUnreadableConfig(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run("--config", filepath.Join(t.TempDir(), "missing.toml"), "top")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
