package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxiofs/guardctl/internal/apply"
	"github.com/maxiofs/guardctl/internal/value"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "audit.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestManager_LogEvent(t *testing.T) {
	store := setupTestStore(t)
	mgr := NewManager(store, "run-1", "host-a", nil)
	ctx := context.Background()

	mgr.LogEvent(ctx, &Event{
		Operation: OperationBackup,
		Status:    StatusCaptured,
		Detail:    "20261019T083000.000000000Z",
	})

	records, err := mgr.History(ctx, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "run-1", records[0].RunID)
	assert.Equal(t, "host-a", records[0].Origin)
	assert.Equal(t, OperationBackup, records[0].Operation)
	assert.Equal(t, "20261019T083000.000000000Z", records[0].Detail)
	assert.NotZero(t, records[0].Timestamp)
}

func TestManager_LogEvent_MissingFields(t *testing.T) {
	store := setupTestStore(t)
	mgr := NewManager(store, "run-1", "host-a", nil)
	ctx := context.Background()

	mgr.LogEvent(ctx, &Event{Operation: OperationSet})
	mgr.LogEvent(ctx, nil)

	records, err := store.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestManager_NilIsNoop(t *testing.T) {
	var mgr *Manager
	mgr.LogEvent(context.Background(), &Event{Operation: OperationSet, Status: StatusVerified})
	mgr.LogReport(context.Background(), OperationSet, &apply.Report{})
	assert.NoError(t, mgr.Close())
}

func TestManager_LogReport(t *testing.T) {
	store := setupTestStore(t)
	mgr := NewManager(store, "run-2", "host-a", nil)
	ctx := context.Background()

	report := &apply.Report{Outcomes: []apply.Outcome{
		{Key: "a", Old: value.Int(1), Expected: value.Int(2), Actual: value.Int(2), Status: apply.StatusVerified},
		{Key: "b", Old: value.Null(), Expected: value.Bool(true), Actual: value.Bool(false), Status: apply.StatusMismatch},
		{Key: "c", Old: value.String(""), Expected: value.String("x"), Status: apply.StatusFailed, Err: errors.New("locked")},
	}}
	mgr.LogReport(ctx, OperationConfigure, report)

	records, err := mgr.History(ctx, &Filters{RunID: "run-2"})
	require.NoError(t, err)
	require.Len(t, records, 3)

	byKey := map[string]*Record{}
	for _, r := range records {
		byKey[r.Key] = r
	}
	assert.Equal(t, "1", byKey["a"].OldValue)
	assert.Equal(t, "2", byKey["a"].NewValue)
	assert.Equal(t, "null", byKey["b"].OldValue)
	assert.Equal(t, "read back false", byKey["b"].Detail)
	assert.Equal(t, "(empty)", byKey["c"].OldValue)
	assert.Equal(t, "locked", byKey["c"].Detail)
	assert.Equal(t, StatusFailed, byKey["c"].Status)
}

type brokenStore struct{ Store }

func (brokenStore) Record(ctx context.Context, event *Event) error { return errors.New("disk I/O error") }

func TestManager_StoreFailureIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	mgr := NewManager(brokenStore{}, "run-3", "host-a", logger)

	mgr.LogEvent(context.Background(), &Event{Operation: OperationSet, Key: "a", Status: StatusVerified})

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestSQLiteStore_ListFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	events := []*Event{
		{RunID: "r1", Operation: OperationSet, Key: "a", Status: StatusVerified},
		{RunID: "r1", Operation: OperationSet, Key: "b", Status: StatusMismatch},
		{RunID: "r2", Operation: OperationImport, Key: "a", Status: StatusVerified},
	}
	for _, e := range events {
		require.NoError(t, store.Record(ctx, e))
	}

	tests := []struct {
		name    string
		filters *Filters
		want    int
	}{
		{"all", nil, 3},
		{"by run", &Filters{RunID: "r1"}, 2},
		{"by key", &Filters{Key: "a"}, 2},
		{"by operation", &Filters{Operation: OperationImport}, 1},
		{"by status", &Filters{Status: StatusMismatch}, 1},
		{"combined", &Filters{RunID: "r1", Key: "a"}, 1},
		{"limit", &Filters{Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.List(ctx, tt.filters)
			require.NoError(t, err)
			assert.Len(t, records, tt.want)
		})
	}

	records, err := store.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "r2", records[0].RunID, "newest first")
}

func TestSQLiteStore_Purge(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	store.now = func() time.Time { return time.Now().AddDate(0, 0, -40) }
	require.NoError(t, store.Record(ctx, &Event{RunID: "old", Operation: OperationSet, Status: StatusVerified}))
	store.now = time.Now
	require.NoError(t, store.Record(ctx, &Event{RunID: "new", Operation: OperationSet, Status: StatusVerified}))

	deleted, err := store.Purge(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	records, err := store.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].RunID)
}
