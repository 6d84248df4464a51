package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watchdesk/watchdesk/internal/dispatch"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDB_CreatesDirectory(t *testing.T) {
	db := newTestDB(t)
	require.FileExists(t, db.Path())
}

func TestRecordAndRecent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	tick := 0
	db.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	require.NoError(t, db.RecordAlert(ctx, dispatch.AlertIntent{CallID: "c1", Priority: 1, Summary: "Fire - Elm St"}, false))
	require.NoError(t, db.RecordAlert(ctx, dispatch.AlertIntent{CallID: "c2", Priority: 3}, true))
	require.NoError(t, db.RecordAssignment(ctx, dispatch.Assignment{
		ID: "d1", IncidentID: "c1", UnitIDs: []string{"u1", "u2"}, Message: "Respond code 3",
	}))

	all, err := db.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, KindAssignment, all[0].Kind)
	require.Equal(t, []string{"u1", "u2"}, all[0].Units)
	require.Equal(t, "c1", all[0].CallID)
	require.True(t, all[1].Muted)
	require.Equal(t, "Fire - Elm St", all[2].Summary)
	require.Equal(t, base.Add(time.Second), all[2].CreatedAt)

	alerts, err := db.Recent(ctx, KindAlert, 1)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "c2", alerts[0].RefID)
}

func TestNewDB_ReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.RecordAlert(context.Background(), dispatch.AlertIntent{CallID: "c1", Priority: 2}, false))
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	entries, err := db.Recent(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
