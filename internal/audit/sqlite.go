package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/maxiofs/guardctl/internal/db/migrations"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
	now    func() time.Time
}

// NewSQLiteStore opens the audit database and migrates it to the current schema
func NewSQLiteStore(ctx context.Context, dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logrus.New()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrations.NewMigrationManager(db, logger).Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger, now: time.Now}, nil
}

// Record stores an audit event
func (s *SQLiteStore) Record(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO audit_events (
			timestamp, run_id, origin, operation, setting_key,
			old_value, new_value, status, detail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		s.now().Unix(),
		event.RunID,
		event.Origin,
		event.Operation,
		event.Key,
		event.OldValue,
		event.NewValue,
		event.Status,
		event.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// List retrieves events newest first
func (s *SQLiteStore) List(ctx context.Context, filters *Filters) ([]*Record, error) {
	if filters == nil {
		filters = &Filters{}
	}
	whereClause, args := buildWhereClause(filters)

	query := fmt.Sprintf(`
		SELECT id, timestamp, run_id, origin, operation, setting_key,
		       old_value, new_value, status, detail
		FROM audit_events %s
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, whereClause)

	limit := filters.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r := &Record{}
		var key, oldValue, newValue, detail sql.NullString
		if err := rows.Scan(
			&r.ID,
			&r.Timestamp,
			&r.RunID,
			&r.Origin,
			&r.Operation,
			&key,
			&oldValue,
			&newValue,
			&r.Status,
			&detail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		r.Key = key.String
		r.OldValue = oldValue.String
		r.NewValue = newValue.String
		r.Detail = detail.String
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return records, nil
}

// Purge deletes events older than the given number of days
func (s *SQLiteStore) Purge(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := s.now().AddDate(0, 0, -olderThanDays).Unix()

	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted rows count: %w", err)
	}
	return int(deleted), nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func buildWhereClause(filters *Filters) (string, []any) {
	var conditions []string
	var args []any

	if filters.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, filters.RunID)
	}
	if filters.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, filters.Operation)
	}
	if filters.Key != "" {
		conditions = append(conditions, "setting_key = ?")
		args = append(args, filters.Key)
	}
	if filters.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filters.Status)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
