package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxiofs/guardctl/internal/changeset"
	"github.com/maxiofs/guardctl/internal/pipeline"
	"github.com/maxiofs/guardctl/internal/settings"
	"github.com/maxiofs/guardctl/internal/value"
)

type harness struct {
	dir    string
	store  string
	out    bytes.Buffer
	errOut bytes.Buffer
}

func setupHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:   filepath.Join(dir, "data"),
		store: filepath.Join(dir, "app.db"),
	}

	store, err := settings.OpenSQLite(h.store, "app_settings", nil)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Seed(context.Background(), []settings.Setting{
		{Key: "loginsec.enabled", Value: "1", Type: settings.TypeBool},
		{Key: "loginsec.max_failures", Value: "20", Type: settings.TypeInt},
		{Key: "loginsec.lockout_mins", Value: "60", Type: settings.TypeInt},
		{Key: "alert.email", Value: "ops@example.com", Type: settings.TypeString},
		{Key: "internal.version", Value: "4.2.1", Type: settings.TypeString},
	}))
	return h
}

// run executes guardctl against the harness store. A nil confirmer keeps
// the terminal prompt, which refuses to ask on a non-terminal input.
func (h *harness) run(t *testing.T, confirmer pipeline.Confirmer, args ...string) int {
	t.Helper()
	h.out.Reset()
	h.errOut.Reset()

	c := New("test")
	c.SetIO(strings.NewReader(""), &h.out, &h.errOut)
	if confirmer != nil {
		c.SetConfirmer(confirmer)
	}
	args = append(args, "--store", h.store, "--data-dir", h.dir, "--color", "never")
	return c.Execute(args)
}

func (h *harness) value(t *testing.T, key string) value.Value {
	t.Helper()
	store, err := settings.OpenSQLite(h.store, "app_settings", nil)
	require.NoError(t, err)
	defer store.Close()
	v, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	return v
}

var backupIDPattern = regexp.MustCompile(`Backup created: (\S+)`)

func (h *harness) backupID(t *testing.T) string {
	t.Helper()
	m := backupIDPattern.FindStringSubmatch(h.out.String())
	require.Len(t, m, 2, "no backup ID in output: %s", h.out.String())
	return m[1]
}

func TestGet(t *testing.T) {
	h := setupHarness(t)

	assert.Equal(t, ExitOK, h.run(t, nil, "get", "loginsec.max_failures"))
	assert.Equal(t, "loginsec.max_failures = 20\n", h.out.String())

	assert.Equal(t, ExitOK, h.run(t, nil, "get", "nonexistent.key"))
	assert.Equal(t, "nonexistent.key: not found or empty\n", h.out.String())
}

func TestGet_JSON(t *testing.T) {
	h := setupHarness(t)

	require.Equal(t, ExitOK, h.run(t, nil, "get", "loginsec.lockout_mins", "--format", "json"))

	var view map[string]any
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &view))
	assert.Equal(t, float64(60), view["value"])
	assert.Equal(t, "int", view["type"])
	assert.Equal(t, true, view["managed"])
	assert.Equal(t, []any{"brute-force"}, view["categories"])
}

func TestSet_Force(t *testing.T) {
	h := setupHarness(t)

	code := h.run(t, nil, "set", "internal.version", "4.3.0", "--force")
	require.Equal(t, ExitOK, code, h.errOut.String())

	assert.Contains(t, h.out.String(), "internal.version: 4.2.1 -> 4.3.0")
	assert.Contains(t, h.out.String(), "Applied 1 change(s); all verified.")
	assert.Contains(t, h.backupID(t), "-internal.version")
	assert.Equal(t, "4.3.0", h.value(t, "internal.version").Text())
}

func TestSet_RequiresConfirmation(t *testing.T) {
	h := setupHarness(t)

	code := h.run(t, nil, "set", "alert.email", "sec@example.com")
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, h.errOut.String(), "confirmation required")
	assert.Equal(t, "ops@example.com", h.value(t, "alert.email").Text())
}

func TestSet_Declined(t *testing.T) {
	h := setupHarness(t)

	code := h.run(t, pipeline.Always(false), "set", "alert.email", "sec@example.com")
	assert.Equal(t, ExitAborted, code)
	assert.Contains(t, h.errOut.String(), "aborted by operator")
	assert.Equal(t, "ops@example.com", h.value(t, "alert.email").Text())
}

func TestSet_DryRun(t *testing.T) {
	h := setupHarness(t)

	code := h.run(t, nil, "set", "loginsec.max_failures", "5", "--dry-run")
	require.Equal(t, ExitOK, code, h.errOut.String())
	assert.Contains(t, h.out.String(), "loginsec.max_failures: 20 -> 5")
	assert.Contains(t, h.out.String(), "Dry run: no changes applied.")
	assert.Equal(t, int64(20), h.value(t, "loginsec.max_failures").AsInt())

	require.Equal(t, ExitOK, h.run(t, nil, "backup", "list", "--format", "json"))
	assert.JSONEq(t, "[]", emptyAsJSONArray(h.out.String()))
}

// emptyAsJSONArray normalises the encoding of an empty summary list
func emptyAsJSONArray(s string) string {
	if strings.TrimSpace(s) == "null" {
		return "[]"
	}
	return s
}

func TestSet_RuleStillApplies(t *testing.T) {
	h := setupHarness(t)

	code := h.run(t, nil, "set", "loginsec.max_failures", "1", "--force")
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, h.errOut.String(), "loginsec.max_failures must be between 2 and 500 (got 1)")
	assert.Equal(t, int64(20), h.value(t, "loginsec.max_failures").AsInt())
}

func TestConfigure_RejectsWholeBatch(t *testing.T) {
	h := setupHarness(t)

	code := h.run(t, nil, "configure", "brute-force",
		"--max-login-failures", "5", "--lockout-duration-mins", "999", "--force")
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, h.errOut.String(), "loginsec.lockout_mins must be one of")
	assert.Contains(t, h.errOut.String(), "(got 999)")
	assert.Equal(t, int64(20), h.value(t, "loginsec.max_failures").AsInt())
}

func TestConfigure_ConflictingToggles(t *testing.T) {
	h := setupHarness(t)

	code := h.run(t, nil, "configure", "brute-force", "--enable", "--disable", "--force")
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, h.errOut.String(), "--enable and --disable cannot be used together")
}

func TestConfigure_ToggleFlagValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want bool
	}{
		{"enable false", []string{"--enable=false"}, false},
		{"disable false", []string{"--disable=false"}, true},
		{"enable and disable false", []string{"--enable", "--disable=false"}, true},
		{"enable false and disable", []string{"--enable=false", "--disable"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupHarness(t)
			if tt.want {
				require.Equal(t, ExitOK, h.run(t, nil, "set", "loginsec.enabled", "false", "--force"))
			}

			args := append([]string{"configure", "brute-force"}, tt.args...)
			code := h.run(t, nil, append(args, "--force")...)
			require.Equal(t, ExitOK, code, h.errOut.String())
			assert.Equal(t, tt.want, h.value(t, "loginsec.enabled").AsBool())
		})
	}

	h := setupHarness(t)
	code := h.run(t, nil, "configure", "brute-force", "--enable=false", "--disable=false", "--force")
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, h.errOut.String(), "--enable and --disable cannot be used together")
}

func TestSet_NoBackupWarns(t *testing.T) {
	h := setupHarness(t)

	require.Equal(t, ExitOK, h.run(t, nil, "set", "alert.email", "x@example.com", "--no-backup", "--dry-run"))
	assert.NotContains(t, h.errOut.String(), "Backup skipped")

	require.Equal(t, ExitOK, h.run(t, nil, "set", "alert.email", "x@example.com", "--no-backup", "--force"))
	assert.Contains(t, h.errOut.String(), "Backup skipped with --no-backup")
	assert.NotContains(t, h.out.String(), "Backup created")

	require.Equal(t, ExitOK, h.run(t, nil, "configure", "brute-force", "--max-login-failures", "9", "--force"))
	assert.NotContains(t, h.errOut.String(), "Backup skipped")
	assert.Contains(t, h.out.String(), "Backup created")
}

func TestConfigure_Apply(t *testing.T) {
	h := setupHarness(t)

	code := h.run(t, nil, "configure", "brute-force",
		"--disable", "--max-login-failures", "5", "--lock-invalid-users", "true", "--force")
	require.Equal(t, ExitOK, code, h.errOut.String())

	assert.False(t, h.value(t, "loginsec.enabled").AsBool())
	assert.Equal(t, int64(5), h.value(t, "loginsec.max_failures").AsInt())
	assert.Equal(t, int64(1), h.value(t, "loginsec.lock_invalid_users").AsInt())
	assert.Contains(t, h.out.String(), "Applied 3 change(s); all verified.")
}

func TestConfigure_NoFlags(t *testing.T) {
	h := setupHarness(t)

	code := h.run(t, nil, "configure", "scan", "--force")
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, h.errOut.String(), "no changes specified")
}

func TestBackupAndRestore(t *testing.T) {
	h := setupHarness(t)

	require.Equal(t, ExitOK, h.run(t, nil, "backup", "create"))
	id := h.backupID(t)

	require.Equal(t, ExitOK, h.run(t, nil, "configure", "brute-force", "--max-login-failures", "9", "--force"))
	assert.Equal(t, int64(9), h.value(t, "loginsec.max_failures").AsInt())

	require.Equal(t, ExitOK, h.run(t, nil, "backup", "show", id, "--format", "json"))
	var shown map[string]any
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &shown))
	assert.Equal(t, id, shown["id"])
	assert.Equal(t, float64(20), shown["settings"].(map[string]any)["loginsec.max_failures"])

	code := h.run(t, nil, "restore", id, "--force", "--no-backup")
	require.Equal(t, ExitOK, code, h.errOut.String())
	assert.NotEqual(t, id, h.backupID(t), "restore takes its own safety backup")
	assert.Equal(t, int64(20), h.value(t, "loginsec.max_failures").AsInt())

	require.Equal(t, ExitOK, h.run(t, nil, "backup", "list", "--format", "json"))
	var list []map[string]any
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &list))
	assert.Len(t, list, 3)
}

func TestRestore_NotFound(t *testing.T) {
	h := setupHarness(t)

	code := h.run(t, nil, "restore", "20200101T000000.000000000Z", "--force")
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, h.errOut.String(), "backup not found")
}

func TestExportImport(t *testing.T) {
	h := setupHarness(t)
	path := filepath.Join(t.TempDir(), "brute-force.yaml")

	require.Equal(t, ExitOK, h.run(t, nil, "export", path, "--category", "brute-force"))
	assert.Contains(t, h.out.String(), "Exported 3 setting(s)")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "category: brute-force")

	require.Equal(t, ExitOK, h.run(t, nil, "set", "loginsec.max_failures", "7", "--force"))

	code := h.run(t, nil, "import", path, "--force")
	require.Equal(t, ExitOK, code, h.errOut.String())
	assert.Contains(t, h.out.String(), "Applied 3 change(s); all verified.")
	assert.Equal(t, int64(20), h.value(t, "loginsec.max_failures").AsInt())
	assert.NotContains(t, h.out.String(), "Backup created")
}

func TestExport_NothingToExport(t *testing.T) {
	h := setupHarness(t)
	path := filepath.Join(t.TempDir(), "empty.json")

	code := h.run(t, nil, "export", path, "--search", "no-such-key")
	assert.Equal(t, ExitFatal, code)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestImport_ManagedOnly(t *testing.T) {
	h := setupHarness(t)
	path := filepath.Join(t.TempDir(), "doc.json")
	doc := `{"exported_at":"2026-10-19T08:30:00Z","origin":"elsewhere","managed_only":false,"count":2,
"settings":{"alert.email":"sec@example.com","internal.version":"9.9.9"}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	code := h.run(t, nil, "import", path, "--managed-only", "--force", "--backup")
	require.Equal(t, ExitOK, code, h.errOut.String())
	assert.Contains(t, h.out.String(), "Skipping 1 unmanaged key(s).")
	assert.Contains(t, h.out.String(), "Backup created")
	assert.Equal(t, "sec@example.com", h.value(t, "alert.email").Text())
	assert.Equal(t, "4.2.1", h.value(t, "internal.version").Text())
}

func TestImport_InvalidDocument(t *testing.T) {
	h := setupHarness(t)
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"origin":"x"}`), 0o644))

	assert.Equal(t, ExitFatal, h.run(t, nil, "import", path, "--force"))
	assert.Equal(t, ExitFatal, h.run(t, nil, "import", filepath.Join(t.TempDir(), "missing.json"), "--force"))
	assert.Contains(t, h.errOut.String(), "does not exist")
}

func TestList(t *testing.T) {
	h := setupHarness(t)

	require.Equal(t, ExitOK, h.run(t, nil, "list", "--managed-only", "--format", "json"))
	var views []map[string]any
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &views))

	var keys []string
	for _, v := range views {
		keys = append(keys, v["key"].(string))
	}
	assert.Equal(t, []string{"alert.email", "loginsec.enabled", "loginsec.lockout_mins", "loginsec.max_failures"}, keys)

	require.Equal(t, ExitOK, h.run(t, nil, "list", "--search", "VERSION"))
	assert.Contains(t, h.out.String(), "internal.version")
	assert.NotContains(t, h.out.String(), "alert.email")
}

func TestHistory(t *testing.T) {
	h := setupHarness(t)

	require.Equal(t, ExitOK, h.run(t, nil, "set", "alert.email", "sec@example.com", "--force"))
	require.Equal(t, ExitOK, h.run(t, nil, "history", "--key", "alert.email", "--format", "json"))

	var records []map[string]any
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "set", records[0]["operation"])
	assert.Equal(t, "ops@example.com", records[0]["old"])
	assert.Equal(t, "sec@example.com", records[0]["new"])
	assert.Equal(t, "verified", records[0]["status"])
}

func TestMetricsTextfile(t *testing.T) {
	h := setupHarness(t)
	path := filepath.Join(t.TempDir(), "guardctl.prom")

	require.Equal(t, ExitOK, h.run(t, nil, "set", "alert.email", "x@example.com", "--force", "--metrics-textfile", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `guardctl_changes_applied_total{operation="set",status="verified"} 1`)
	assert.Contains(t, string(data), "guardctl_backups_created_total 1")
	assert.Contains(t, string(data), `result="success"`)
}

func TestCategories_NoStoreNeeded(t *testing.T) {
	var out, errOut bytes.Buffer
	c := New("test")
	c.SetIO(strings.NewReader(""), &out, &errOut)

	require.Equal(t, ExitOK, c.Execute([]string{"categories", "--format", "json"}), errOut.String())
	var views []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &views))
	require.Len(t, views, 5)
	assert.Equal(t, "alerts", views[0]["name"])
}

func TestPrecondition_MissingStore(t *testing.T) {
	var out, errOut bytes.Buffer
	c := New("test")
	c.SetIO(strings.NewReader(""), &out, &errOut)

	missing := filepath.Join(t.TempDir(), "absent.db")
	code := c.Execute([]string{"get", "alert.email", "--store", missing, "--data-dir", t.TempDir()})
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, errOut.String(), "precondition failed")
	_, err := os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.New("boom"), ExitFatal},
		{changeset.ErrEmptyChangeSet, ExitFatal},
		{pipeline.ErrConfirmationRequired, ExitFatal},
		{fmt.Errorf("%w: 1 of 3 entries", pipeline.ErrPartialSuccess), ExitPartial},
		{pipeline.ErrAborted, ExitAborted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}
