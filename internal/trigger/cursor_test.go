package trigger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/database"
	"github.com/blakeyoung81/Curtain-Lights/migrations"
)

// openStore opens a migrated database in a temp directory.
func openStore(t *testing.T) *SQLiteCursorStore {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "trigger.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteCursorStore(db)
}

func TestSQLiteCursorStore_GetMissing(t *testing.T) {
	store := openStore(t)

	_, ok, err := store.Get(context.Background(), "acme", SourceCalendar)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true for a cursor never stored")
	}
}

func TestSQLiteCursorStore_PutGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	eventAt := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	polled := eventAt.Add(-5 * time.Minute)
	want := Cursor{
		TenantID:     "acme",
		Source:       SourceCalendar,
		LastEventID:  "evt-1",
		LastEventAt:  eventAt,
		LastPolledAt: polled,
	}
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := store.Get(ctx, "acme", SourceCalendar)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if got.LastEventID != "evt-1" || !got.LastEventAt.Equal(eventAt) || !got.LastPolledAt.Equal(polled) {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}

	// Upsert replaces the row and clears fields that became empty.
	if err := store.Put(ctx, Cursor{TenantID: "acme", Source: SourceCalendar, LastCount: 7}); err != nil {
		t.Fatalf("Put() update error = %v", err)
	}
	got, _, _ = store.Get(ctx, "acme", SourceCalendar)
	if got.LastCount != 7 || got.LastEventID != "" || !got.LastEventAt.IsZero() {
		t.Errorf("Get() after update = %+v", got)
	}

	// Other sources are independent.
	if _, ok, _ := store.Get(ctx, "acme", SourceSubscribers); ok {
		t.Error("subscriber cursor should not exist")
	}
}

func TestSQLiteCursorStore_PutRequiresKey(t *testing.T) {
	store := openStore(t)
	if err := store.Put(context.Background(), Cursor{Source: SourceCalendar}); err == nil {
		t.Error("Put() without tenant should fail")
	}
}

func TestSQLiteCursorStore_Pushes(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	acme := func(id string) PushKey { return PushKey{TenantID: "acme", EventID: id} }

	for i, id := range []string{"evt_a", "evt_b", "evt_c"} {
		fresh, err := store.RecordPush(ctx, acme(id), base.Add(time.Duration(i)*time.Second))
		if err != nil || !fresh {
			t.Fatalf("RecordPush(%s) = %v, %v; want fresh", id, fresh, err)
		}
	}

	fresh, err := store.RecordPush(ctx, acme("evt_b"), base.Add(time.Hour))
	if err != nil || fresh {
		t.Errorf("RecordPush(duplicate) = %v, %v; want not fresh", fresh, err)
	}

	// Another tenant's provider may reuse the id.
	other := PushKey{TenantID: "globex", EventID: "evt_b"}
	if fresh, err := store.RecordPush(ctx, other, base.Add(3*time.Second)); err != nil || !fresh {
		t.Errorf("RecordPush(other tenant) = %v, %v; want fresh", fresh, err)
	}

	keys, err := store.RecentPushes(ctx, 2)
	if err != nil {
		t.Fatalf("RecentPushes() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != other || keys[1] != acme("evt_c") {
		t.Errorf("RecentPushes() = %v, want [globex/evt_b acme/evt_c]", keys)
	}

	if err := store.ForgetPush(ctx, acme("evt_c")); err != nil {
		t.Fatalf("ForgetPush() error = %v", err)
	}
	if fresh, _ := store.RecordPush(ctx, acme("evt_c"), base); !fresh {
		t.Error("a forgotten push id should record as fresh")
	}
	if fresh, _ := store.RecordPush(ctx, other, base); fresh {
		t.Error("forgetting acme's id must not touch globex's")
	}

	n, err := store.PrunePushes(ctx, base.Add(1500*time.Millisecond))
	if err != nil {
		t.Fatalf("PrunePushes() error = %v", err)
	}
	// evt_a (0s), evt_b (1s) and the re-recorded evt_c (0s) are older.
	if n != 3 {
		t.Errorf("PrunePushes() removed %d, want 3", n)
	}
}
