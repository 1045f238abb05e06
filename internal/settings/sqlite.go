package settings

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/maxiofs/guardctl/internal/value"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore reads and writes the guarded application's settings table
type SQLiteStore struct {
	db     *sql.DB
	table  string
	logger *logrus.Logger
}

// OpenSQLite opens the settings database at path
func OpenSQLite(path, table string, logger *logrus.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	// single writer; the CLI never runs statements concurrently
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(db, table, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an open database handle
func NewSQLiteStore(db *sql.DB, table string, logger *logrus.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if table == "" {
		table = "app_settings"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid settings table name %q", table)
	}

	s := &SQLiteStore{
		db:     db,
		table:  table,
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the settings table when the application has not yet
func (s *SQLiteStore) initSchema() error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT 'string',
		autoload INTEGER DEFAULT 1,
		updated_at INTEGER NOT NULL DEFAULT 0
	);
	`, s.table)

	_, err := s.db.Exec(query)
	return err
}

// Close closes the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get retrieves a typed setting value; absent keys yield Null
func (s *SQLiteStore) Get(ctx context.Context, key string) (value.Value, error) {
	var raw, typ string
	query := fmt.Sprintf(`SELECT value, type FROM %s WHERE key = ?`, s.table)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&raw, &typ)
	if err == sql.ErrNoRows {
		return value.Null(), nil
	}
	if err != nil {
		return value.Null(), fmt.Errorf("%w: %s: %v", ErrRead, key, err)
	}
	return decode(raw, Type(typ)), nil
}

// GetSetting retrieves the raw row for key
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (*Setting, error) {
	var setting Setting
	var updatedAt int64
	query := fmt.Sprintf(`SELECT key, value, type, autoload, updated_at FROM %s WHERE key = ?`, s.table)
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&setting.Key,
		&setting.Value,
		&setting.Type,
		&setting.Autoload,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("setting not found: %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRead, key, err)
	}
	setting.UpdatedAt = time.Unix(updatedAt, 0)
	return &setting, nil
}

// GetInt retrieves a setting value as an integer
func (s *SQLiteStore) GetInt(ctx context.Context, key string) (int64, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return v.AsInt(), nil
}

// GetBool retrieves a setting value as a boolean
func (s *SQLiteStore) GetBool(ctx context.Context, key string) (bool, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return v.AsBool(), nil
}

// Set upserts a typed value
func (s *SQLiteStore) Set(ctx context.Context, key string, v value.Value) error {
	raw, typ := encode(v)
	return s.write(ctx, key, raw, typ)
}

// SetBool stores a boolean as 1/0
func (s *SQLiteStore) SetBool(ctx context.Context, key string, b bool) error {
	raw, typ := encode(value.Bool(b))
	return s.write(ctx, key, raw, typ)
}

func (s *SQLiteStore) write(ctx context.Context, key, raw string, typ Type) error {
	query := fmt.Sprintf(`
	INSERT INTO %s (key, value, type, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, type = excluded.type, updated_at = excluded.updated_at
	`, s.table)

	_, err := s.db.ExecContext(ctx, query, key, raw, string(typ), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, key, err)
	}

	s.logger.WithFields(logrus.Fields{
		"key":  key,
		"type": typ,
	}).Debug("Setting written")

	return nil
}

// Keys lists all keys in the settings table
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT key FROM %s ORDER BY key`, s.table))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list keys: %v", ErrRead, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%w: failed to scan key: %v", ErrRead, err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Seed inserts rows that do not exist yet, leaving existing values alone.
func (s *SQLiteStore) Seed(ctx context.Context, rows []Setting) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s (key, value, type, autoload, updated_at) VALUES (?, ?, ?, ?, ?)`, s.table)
	now := time.Now().Unix()
	for _, row := range rows {
		if row.Type == "" {
			row.Type = TypeString
		}
		if _, err := tx.ExecContext(ctx, query, row.Key, row.Value, string(row.Type), row.Autoload, now); err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", row.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.WithField("count", len(rows)).Debug("Settings seeded")
	return nil
}

var _ Store = (*SQLiteStore)(nil)
