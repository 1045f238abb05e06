package snapshot

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/sirupsen/logrus"
)

// PebbleStore implements Store on Pebble
type PebbleStore struct {
	db     *pebble.DB
	sync   bool
	logger *logrus.Logger
}

// NewPebbleStore opens (or creates) a Pebble database in its own directory under DataDir
func NewPebbleStore(opts Options) (*PebbleStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	dbPath := Dir(opts.DataDir, EnginePebble)
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	cache := pebble.NewCache(8 << 20)
	defer cache.Unref()

	db, err := pebble.Open(dbPath, &pebble.Options{
		Cache:  cache,
		Logger: &pebbleLogger{logger: opts.Logger},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	opts.Logger.WithField("path", dbPath).Debug("Pebble snapshot store opened")
	return &PebbleStore{db: db, sync: opts.SyncWrites, logger: opts.Logger}, nil
}

// prefixEnd returns the exclusive upper bound for a prefix scan.
// It increments the last byte of the prefix; returns nil if all bytes overflow.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Get retrieves a payload by name
func (s *PebbleStore) Get(ctx context.Context, name string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(name))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(val))
	copy(data, val)
	_ = closer.Close()
	return data, nil
}

// Put stores a payload
func (s *PebbleStore) Put(ctx context.Context, name string, payload []byte) error {
	opt := pebble.NoSync
	if s.sync {
		opt = pebble.Sync
	}
	return s.db.Set([]byte(name), payload, opt)
}

// Scan iterates names with the given prefix
func (s *PebbleStore) Scan(ctx context.Context, prefix string, fn func(name string, payload []byte) bool) error {
	lower := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixEnd(lower),
	})
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close() //nolint:errcheck

	for valid := iter.First(); valid; valid = iter.Next() {
		name := string(iter.Key())
		val := iter.Value()
		payload := make([]byte, len(val))
		copy(payload, val)
		if !fn(name, payload) {
			break
		}
	}
	return iter.Error()
}

// Close flushes and closes the database
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// pebbleLogger adapts logrus to pebble's Logger interface (Infof + Fatalf).
type pebbleLogger struct {
	logger *logrus.Logger
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Tracef("[Pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf("[Pebble] "+format, args...)
}

var _ Store = (*PebbleStore)(nil)
