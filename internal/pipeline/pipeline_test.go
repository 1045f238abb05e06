package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxiofs/guardctl/internal/apply"
	"github.com/maxiofs/guardctl/internal/audit"
	"github.com/maxiofs/guardctl/internal/backup"
	"github.com/maxiofs/guardctl/internal/catalog"
	"github.com/maxiofs/guardctl/internal/changeset"
	"github.com/maxiofs/guardctl/internal/settings"
	"github.com/maxiofs/guardctl/internal/snapshot"
	"github.com/maxiofs/guardctl/internal/transfer"
	"github.com/maxiofs/guardctl/internal/validation"
	"github.com/maxiofs/guardctl/internal/value"
)

type fixture struct {
	store   *settings.MemoryStore
	backups *backup.Store
	audit   *audit.Manager
	out     *bytes.Buffer
	runner  *Runner
}

func initialValues() map[string]value.Value {
	return map[string]value.Value{
		"loginsec.enabled":      value.Bool(true),
		"loginsec.max_failures": value.Int(20),
		"loginsec.lockout_mins": value.Int(60),
		"scan.max_memory_mb":    value.Int(256),
		"alert.email":           value.String("ops@example.com"),
	}
}

func setupFixture(t *testing.T, confirmer Confirmer) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	ctx := context.Background()
	dir := t.TempDir()

	snaps, err := snapshot.Open(snapshot.Options{Engine: snapshot.EnginePebble, DataDir: dir, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { snaps.Close() })

	auditStore, err := audit.NewSQLiteStore(ctx, filepath.Join(dir, "audit.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { auditStore.Close() })

	cat := catalog.Default()
	f := &fixture{
		store: settings.NewMemoryStore(initialValues()),
		audit: audit.NewManager(auditStore, "run-test", "test-host", logger),
		out:   &bytes.Buffer{},
	}
	f.backups = backup.NewStore(snaps, f.store, cat, logger)
	f.runner = NewRunner(Deps{
		Store:     f.store,
		Validator: validation.NewValidator(cat),
		Backups:   f.backups,
		Confirmer: confirmer,
		Audit:     f.audit,
		Out:       f.out,
		Logger:    logger,
	})
	return f
}

func changes(pairs ...any) []changeset.Request {
	var reqs []changeset.Request
	for i := 0; i+1 < len(pairs); i += 2 {
		reqs = append(reqs, changeset.Request{Key: pairs[i].(string), Value: value.FromAny(pairs[i+1])})
	}
	return reqs
}

func TestRun_DryRunNeverMutates(t *testing.T) {
	f := setupFixture(t, Always(true))
	ctx := context.Background()

	res, err := f.runner.Run(ctx, Request{
		Operation: audit.OperationConfigure,
		Changes:   changes("loginsec.max_failures", 5, "scan.max_memory_mb", 512, "loginsec.enabled", false),
		DryRun:    true,
		Backup:    true,
	})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Nil(t, res.Report)
	assert.Nil(t, res.Backup)
	assert.Equal(t, []State{StateCollecting, StateValidating, StatePreviewing, StateDone}, res.Trace)
	assert.Equal(t, 0, f.store.Writes)
	assert.Equal(t, initialValues(), f.store.Snapshot())

	assert.Contains(t, f.out.String(), "loginsec.max_failures: 20 -> 5")
	assert.Contains(t, f.out.String(), "Dry run: no changes applied.")

	list, err := f.backups.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRun_EmptyRequest(t *testing.T) {
	f := setupFixture(t, Always(true))

	_, err := f.runner.Run(context.Background(), Request{Force: true})
	assert.ErrorIs(t, err, changeset.ErrEmptyChangeSet)
	assert.Equal(t, "no changes specified", err.Error())
}

func TestRun_ConflictingFlags(t *testing.T) {
	f := setupFixture(t, Always(true))

	_, err := f.runner.Run(context.Background(), Request{
		Operation: audit.OperationConfigure,
		Changes:   changes("loginsec.enabled", true, "loginsec.enabled", false, "loginsec.max_failures", 10),
		Flags: []string{
			catalog.ToggleFlagName("brute-force", "enable"),
			catalog.ToggleFlagName("brute-force", "disable"),
		},
		ManagedOnly: true,
		Force:       true,
	})

	var conflict *validation.ConflictingFlagsError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, validation.ErrInvalidInput)
	assert.Equal(t, 0, f.store.Writes)
}

func TestRun_RejectsWholeBatch(t *testing.T) {
	f := setupFixture(t, Always(true))
	ctx := context.Background()

	_, err := f.runner.Run(ctx, Request{
		Operation:   audit.OperationConfigure,
		Changes:     changes("loginsec.max_failures", 5, "loginsec.lockout_mins", 999),
		ManagedOnly: true,
		Force:       true,
	})

	var notAllowed *validation.NotInAllowedSetError
	require.ErrorAs(t, err, &notAllowed)
	assert.Equal(t, "loginsec.lockout_mins", notAllowed.Key)
	assert.Equal(t, 0, f.store.Writes)

	v, err := f.store.Get(ctx, "loginsec.max_failures")
	require.NoError(t, err)
	assert.Equal(t, int64(20), v.AsInt())
}

func TestRun_UnmanagedKeyOnTypedPath(t *testing.T) {
	f := setupFixture(t, Always(true))

	_, err := f.runner.Run(context.Background(), Request{
		Changes:     changes("custom.thing", 1),
		ManagedOnly: true,
		Force:       true,
	})
	var unmanaged *validation.UnmanagedKeyError
	assert.ErrorAs(t, err, &unmanaged)
}

func TestRun_ForceAppliesWithBackup(t *testing.T) {
	f := setupFixture(t, Always(false))
	ctx := context.Background()

	res, err := f.runner.Run(ctx, Request{
		Operation: audit.OperationSet,
		Changes:   changes("scan.max_memory_mb", 512, "loginsec.enabled", false),
		Force:     true,
		Backup:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateCollecting, StateValidating, StatePreviewing, StateConfirming,
		StateBackingUp, StateApplying, StateVerifying, StateApplying, StateVerifying, StateDone,
	}, res.Trace, "each entry is verified right after its write")
	require.NotNil(t, res.Backup)
	assert.Equal(t, []string{"loginsec.enabled", "scan.max_memory_mb"}, res.Backup.Keys())
	assert.Equal(t, int64(256), value.FromAny(res.Backup.Settings["scan.max_memory_mb"]).AsInt())
	assert.True(t, res.Report.OK())
	assert.Contains(t, f.out.String(), "Backup created: "+res.Backup.ID)

	v, err := f.store.Get(ctx, "scan.max_memory_mb")
	require.NoError(t, err)
	assert.Equal(t, int64(512), v.AsInt())

	records, err := f.audit.History(ctx, &audit.Filters{RunID: "run-test"})
	require.NoError(t, err)
	assert.Len(t, records, 3, "one backup event and two applied entries")
}

func TestRun_ConfirmationDeclined(t *testing.T) {
	f := setupFixture(t, Always(false))
	ctx := context.Background()

	res, err := f.runner.Run(ctx, Request{
		Operation: audit.OperationSet,
		Changes:   changes("scan.max_memory_mb", 512),
		Backup:    true,
	})
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, StateConfirming, res.Trace[len(res.Trace)-1])
	assert.Equal(t, 0, f.store.Writes)

	records, err := f.audit.History(ctx, &audit.Filters{Status: audit.StatusAborted})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRun_ConfirmationUnavailable(t *testing.T) {
	confirmer := &TerminalConfirmer{
		In:          strings.NewReader("y\n"),
		Out:         &bytes.Buffer{},
		Interactive: func() bool { return false },
	}
	f := setupFixture(t, confirmer)

	_, err := f.runner.Run(context.Background(), Request{Changes: changes("scan.max_memory_mb", 512)})
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Equal(t, 0, f.store.Writes)
}

func TestRun_ConfirmedInteractively(t *testing.T) {
	prompt := &bytes.Buffer{}
	confirmer := &TerminalConfirmer{
		In:          strings.NewReader("yes\n"),
		Out:         prompt,
		Interactive: func() bool { return true },
	}
	f := setupFixture(t, confirmer)

	res, err := f.runner.Run(context.Background(), Request{Changes: changes("scan.max_memory_mb", 512)})
	require.NoError(t, err)
	assert.True(t, res.Report.OK())
	assert.Equal(t, "Apply 1 change(s)? [y/N]: ", prompt.String())
}

func TestRun_JSONPreview(t *testing.T) {
	f := setupFixture(t, Always(true))
	ctx := context.Background()

	_, err := f.runner.Run(ctx, Request{
		Changes:       changes("loginsec.max_failures", 5),
		DryRun:        true,
		PreviewFormat: PreviewJSON,
	})
	require.NoError(t, err)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "loginsec.max_failures", entries[0]["key"])
	assert.Equal(t, float64(20), entries[0]["old"])
	assert.Equal(t, float64(5), entries[0]["new"])

	_, err = f.runner.Run(ctx, Request{
		Changes:       changes("loginsec.max_failures", 5),
		PreviewFormat: PreviewJSON,
	})
	assert.ErrorIs(t, err, ErrConfirmationRequired)
}

func TestRun_PartialSuccess(t *testing.T) {
	f := setupFixture(t, Always(true))
	ctx := context.Background()
	f.store.WriteHook = func(key string, v value.Value) (value.Value, error) {
		switch key {
		case "scan.max_memory_mb":
			return value.Int(128), nil
		case "alert.email":
			return v, errors.New("row locked")
		}
		return v, nil
	}

	res, err := f.runner.Run(ctx, Request{
		Changes: changes("scan.max_memory_mb", 512, "alert.email", "sec@example.com", "loginsec.max_failures", 9),
		Force:   true,
	})
	assert.ErrorIs(t, err, ErrPartialSuccess)
	require.NotNil(t, res.Report)
	assert.Equal(t, 1, res.Report.Count(apply.StatusMismatch))
	assert.Equal(t, 1, res.Report.Count(apply.StatusFailed))
	assert.Equal(t, 1, res.Report.Count(apply.StatusVerified))

	v, err := f.store.Get(ctx, "loginsec.max_failures")
	require.NoError(t, err)
	assert.Equal(t, int64(9), v.AsInt(), "keys after a failing one are still applied")
}

func TestRestore_Idempotence(t *testing.T) {
	f := setupFixture(t, Always(true))
	ctx := context.Background()

	before, err := f.backups.Capture(ctx, backup.ScopeAll())
	require.NoError(t, err)

	_, err = f.runner.Run(ctx, Request{
		Changes: changes("loginsec.max_failures", 3, "loginsec.enabled", false, "alert.email", "x@example.com"),
		Force:   true,
	})
	require.NoError(t, err)

	res, err := f.runner.Restore(ctx, before.ID, Request{Force: true})
	require.NoError(t, err)

	require.NotNil(t, res.Backup, "restore always takes a safety backup")
	assert.Equal(t, int64(3), value.FromAny(res.Backup.Settings["loginsec.max_failures"]).AsInt())
	assert.True(t, res.Report.OK())
	assert.Equal(t, len(before.Settings), res.Report.Count(apply.StatusVerified))

	for key, want := range initialValues() {
		got, err := f.store.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, value.Equivalent(want, got), key)
	}
}

func TestRestore_KeepsFloatKind(t *testing.T) {
	f := setupFixture(t, Always(true))
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, "scan.ratio", value.Float(3)))

	before, err := f.backups.Capture(ctx, backup.ScopeKeys([]string{"scan.ratio"}))
	require.NoError(t, err)
	require.NoError(t, f.store.Set(ctx, "scan.ratio", value.Float(7.5)))

	res, err := f.runner.Restore(ctx, before.ID, Request{Force: true})
	require.NoError(t, err)
	assert.True(t, res.Report.OK())

	got, err := f.store.Get(ctx, "scan.ratio")
	require.NoError(t, err)
	assert.Equal(t, value.Float(3), got)
}

func TestRestore_NotFound(t *testing.T) {
	f := setupFixture(t, Always(true))

	_, err := f.runner.Restore(context.Background(), "19990101T000000.000000000Z", Request{Force: true})
	assert.ErrorIs(t, err, backup.ErrBackupNotFound)
}

func TestImport_PreviewLimitAndGenericWrites(t *testing.T) {
	f := setupFixture(t, Always(true))
	ctx := context.Background()

	doc := &transfer.Document{Settings: map[string]any{}}
	for i := 0; i < 13; i++ {
		doc.Settings["custom.key"+string(rune('a'+i))] = int64(i)
	}
	doc.Settings["loginsec.lockout_mins"] = int64(999)

	res, err := f.runner.Import(ctx, doc, transfer.NewImporter(catalog.Default(), nil), Request{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, res.ChangeSet, 14)
	assert.Contains(t, f.out.String(), "... and 4 more")

	res, err = f.runner.Import(ctx, doc, transfer.NewImporter(catalog.Default(), nil), Request{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 14, res.Report.Count(apply.StatusVerified))

	v, err := f.store.Get(ctx, "loginsec.lockout_mins")
	require.NoError(t, err)
	assert.Equal(t, int64(999), v.AsInt(), "imports are not validated")
}

func TestTerminalConfirmer(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yes", true},
	}
	for _, tt := range tests {
		c := &TerminalConfirmer{In: strings.NewReader(tt.input), Out: &bytes.Buffer{}}
		got, err := c.Confirm("Apply?")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestRun_ConflictingFlagsWithoutChanges(t *testing.T) {
	f := setupFixture(t, Always(true))

	_, err := f.runner.Run(context.Background(), Request{
		Operation: audit.OperationConfigure,
		Flags: []string{
			catalog.ToggleFlagName("firewall", "learning"),
			catalog.ToggleFlagName("firewall", "enforcing"),
		},
	})

	var conflict *validation.ConflictingFlagsError
	require.ErrorAs(t, err, &conflict)
	assert.NotErrorIs(t, err, changeset.ErrEmptyChangeSet)
}
