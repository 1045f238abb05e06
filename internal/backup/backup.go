package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maxiofs/guardctl/internal/catalog"
	"github.com/maxiofs/guardctl/internal/changeset"
	"github.com/maxiofs/guardctl/internal/snapshot"
	"github.com/maxiofs/guardctl/internal/value"
)

var (
	// ErrBackupNotFound is returned when no snapshot matches an identifier
	ErrBackupNotFound = errors.New("backup not found")

	// ErrMalformedBackup is returned when a snapshot has no settings payload
	ErrMalformedBackup = errors.New("backup is malformed")
)

const (
	namePrefix = "backup/"
	idLayout   = "20060102T150405.000000000Z"
	dateLayout = "2006-01-02 15:04:05 MST"
)

// Scope selects what a capture reads. The zero Scope means every managed key.
type Scope struct {
	Key  string
	Keys []string
}

// ScopeAll captures every managed setting
func ScopeAll() Scope { return Scope{} }

// ScopeKey captures a single key; the key becomes part of the identifier
func ScopeKey(key string) Scope { return Scope{Key: key} }

// ScopeKeys captures an explicit list of keys
func ScopeKeys(keys []string) Scope { return Scope{Keys: keys} }

// Backup is a persisted snapshot of setting values
type Backup struct {
	ID        string         `json:"-"`
	Timestamp int64          `json:"timestamp"`
	Date      string         `json:"date"`
	Key       string         `json:"key,omitempty"`
	Settings  map[string]any `json:"settings"`
}

// Keys returns the captured keys sorted
func (b *Backup) Keys() []string {
	keys := make([]string, 0, len(b.Settings))
	for k := range b.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Requests turns the snapshot into change requests in key order
func (b *Backup) Requests() []changeset.Request {
	keys := b.Keys()
	reqs := make([]changeset.Request, 0, len(keys))
	for _, k := range keys {
		reqs = append(reqs, changeset.Request{Key: k, Value: value.FromAny(b.Settings[k])})
	}
	return reqs
}

// Summary describes a stored backup without its payload
type Summary struct {
	ID    string `json:"id"`
	Date  string `json:"date"`
	Key   string `json:"key,omitempty"`
	Count int    `json:"count"`
}

// Reader is the read side of the settings store
type Reader interface {
	Get(ctx context.Context, key string) (value.Value, error)
}

// Store captures and loads backups
type Store struct {
	snapshots snapshot.Store
	settings  Reader
	catalog   *catalog.Catalog
	logger    *logrus.Logger
	now       func() time.Time
}

// NewStore creates a backup store
func NewStore(snapshots snapshot.Store, settings Reader, cat *catalog.Catalog, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		snapshots: snapshots,
		settings:  settings,
		catalog:   cat,
		logger:    logger,
		now:       time.Now,
	}
}

// Capture reads the scoped keys fresh from the settings store and persists
// them under a new timestamp-derived identifier.
func (s *Store) Capture(ctx context.Context, scope Scope) (*Backup, error) {
	keys := scope.Keys
	switch {
	case scope.Key != "":
		keys = []string{scope.Key}
	case len(keys) == 0:
		keys = s.catalog.ManagedKeys()
	}

	captured := make(map[string]any, len(keys))
	for _, key := range keys {
		v, err := s.settings.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s for backup: %w", key, err)
		}
		captured[key] = v.Portable()
	}

	now := s.now().UTC()
	b := &Backup{
		Timestamp: now.Unix(),
		Date:      now.Format(dateLayout),
		Key:       scope.Key,
		Settings:  captured,
	}

	id, err := s.newID(ctx, now, scope.Key)
	if err != nil {
		return nil, err
	}
	b.ID = id

	payload, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := s.snapshots.Put(ctx, namePrefix+id, payload); err != nil {
		return nil, fmt.Errorf("failed to store backup: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"backup_id": id,
		"count":     len(captured),
	}).Info("Backup captured")

	return b, nil
}

// newID derives an identifier from the capture time (and key), adding a
// numeric suffix if a backup with the same name already exists.
func (s *Store) newID(ctx context.Context, at time.Time, key string) (string, error) {
	base := at.Format(idLayout)
	if key != "" {
		base += "-" + key
	}

	id := base
	for n := 2; ; n++ {
		_, err := s.snapshots.Get(ctx, namePrefix+id)
		if errors.Is(err, snapshot.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check backup name: %w", err)
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// Load fetches a backup by identifier
func (s *Store) Load(ctx context.Context, id string) (*Backup, error) {
	id = strings.TrimPrefix(id, namePrefix)
	if id == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrBackupNotFound)
	}

	payload, err := s.snapshots.Get(ctx, namePrefix+id)
	if errors.Is(err, snapshot.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup %s: %w", id, err)
	}

	b, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedBackup, id, err)
	}
	b.ID = id
	return b, nil
}

func decode(payload []byte) (*Backup, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	settingsRaw, ok := raw["settings"]
	if !ok || bytes.Equal(bytes.TrimSpace(settingsRaw), []byte("null")) {
		return nil, errors.New("missing settings payload")
	}

	var b Backup
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("settings payload is not a mapping: %v", err)
	}
	if b.Settings == nil {
		return nil, errors.New("missing settings payload")
	}
	return &b, nil
}

// List returns summaries of all backups, newest first
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	var out []Summary
	err := s.snapshots.Scan(ctx, namePrefix, func(name string, payload []byte) bool {
		id := strings.TrimPrefix(name, namePrefix)
		b, err := decode(payload)
		if err != nil {
			s.logger.WithError(err).WithField("backup_id", id).Warn("Skipping malformed backup")
			return true
		}
		out = append(out, Summary{ID: id, Date: b.Date, Key: b.Key, Count: len(b.Settings)})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
