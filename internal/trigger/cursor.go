package trigger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/database"
)

// Cursor is a tenant source's progress through its upstream events.
// Calendar sources use LastEventAt/LastEventID as a (start, id) high-water
// mark; subscriber sources use LastCount.
type Cursor struct {
	TenantID     string
	Source       string
	LastEventID  string
	LastEventAt  time.Time
	LastCount    int64
	LastPolledAt time.Time
}

// CursorStore persists cursors. Get reports false when no cursor exists yet.
type CursorStore interface {
	Get(ctx context.Context, tenantID, source string) (Cursor, bool, error)
	Put(ctx context.Context, c Cursor) error
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const cursorColumns = `tenant_id, source, last_event_id, last_event_at, last_count, last_polled_at`

// SQLiteCursorStore keeps cursors and recent push ids in SQLite so the
// scheduler resumes where it left off after a restart.
type SQLiteCursorStore struct {
	db *database.DB
}

// NewSQLiteCursorStore creates a store on a migrated database.
func NewSQLiteCursorStore(db *database.DB) *SQLiteCursorStore {
	return &SQLiteCursorStore{db: db}
}

// Get loads the cursor for a tenant source.
func (s *SQLiteCursorStore) Get(ctx context.Context, tenantID, source string) (Cursor, bool, error) {
	query := `SELECT ` + cursorColumns + ` FROM scheduler_cursors WHERE tenant_id = ? AND source = ?`

	var (
		c        Cursor
		eventID  sql.NullString
		eventAt  sql.NullString
		polledAt sql.NullString
		count    sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, tenantID, source).
		Scan(&c.TenantID, &c.Source, &eventID, &eventAt, &count, &polledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Cursor{}, false, nil
	}
	if err != nil {
		return Cursor{}, false, fmt.Errorf("querying cursor: %w", err)
	}

	c.LastEventID = eventID.String
	c.LastCount = count.Int64
	if c.LastEventAt, err = parseTime(eventAt); err != nil {
		return Cursor{}, false, fmt.Errorf("parsing last_event_at: %w", err)
	}
	if c.LastPolledAt, err = parseTime(polledAt); err != nil {
		return Cursor{}, false, fmt.Errorf("parsing last_polled_at: %w", err)
	}
	return c, true, nil
}

// Put inserts or replaces the cursor for c's tenant source.
func (s *SQLiteCursorStore) Put(ctx context.Context, c Cursor) error {
	if c.TenantID == "" || c.Source == "" {
		return fmt.Errorf("cursor requires tenant and source")
	}

	query := `
		INSERT INTO scheduler_cursors (` + cursorColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, source) DO UPDATE SET
			last_event_id  = excluded.last_event_id,
			last_event_at  = excluded.last_event_at,
			last_count     = excluded.last_count,
			last_polled_at = excluded.last_polled_at,
			updated_at     = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		c.TenantID,
		c.Source,
		nullString(c.LastEventID),
		formatTime(c.LastEventAt),
		c.LastCount,
		formatTime(c.LastPolledAt),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upserting cursor: %w", err)
	}
	return nil
}

// RecordPush stores a push event key. It reports false when the tenant
// already recorded that event id.
func (s *SQLiteCursorStore) RecordPush(ctx context.Context, key PushKey, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO push_events (tenant_id, event_id, received_at) VALUES (?, ?, ?)`,
		key.TenantID, key.EventID, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("recording push event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("recording push event: %w", err)
	}
	return n == 1, nil
}

// ForgetPush removes a push key so a redelivery can be processed again.
func (s *SQLiteCursorStore) ForgetPush(ctx context.Context, key PushKey) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM push_events WHERE tenant_id = ? AND event_id = ?`, key.TenantID, key.EventID); err != nil {
		return fmt.Errorf("forgetting push event: %w", err)
	}
	return nil
}

// RecentPushes returns up to limit push keys, newest first.
func (s *SQLiteCursorStore) RecentPushes(ctx context.Context, limit int) ([]PushKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, event_id FROM push_events ORDER BY received_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying push events: %w", err)
	}
	defer rows.Close()

	var keys []PushKey
	for rows.Next() {
		var k PushKey
		if err := rows.Scan(&k.TenantID, &k.EventID); err != nil {
			return nil, fmt.Errorf("scanning push event: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PrunePushes deletes push ids received before cutoff, keeping the table
// roughly the size of the in-memory window.
func (s *SQLiteCursorStore) PrunePushes(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM push_events WHERE received_at < ?`, cutoff.UTC().Format(timeLayout))
		if err != nil {
			return fmt.Errorf("pruning push events: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s.String)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
