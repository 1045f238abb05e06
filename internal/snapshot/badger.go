package snapshot

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// BadgerStore implements Store on BadgerDB
type BadgerStore struct {
	db     *badger.DB
	logger *logrus.Logger
}

// NewBadgerStore opens (or creates) a Badger database in its own directory under DataDir
func NewBadgerStore(opts Options) (*BadgerStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	dbPath := Dir(opts.DataDir, EngineBadger)

	badgerOpts := badger.DefaultOptions(dbPath).
		WithLogger(&badgerLogger{logger: opts.Logger}).
		WithSyncWrites(opts.SyncWrites).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	opts.Logger.WithField("path", dbPath).Debug("BadgerDB snapshot store opened")
	return &BadgerStore{db: db, logger: opts.Logger}, nil
}

// Get retrieves a payload by name
func (s *BadgerStore) Get(ctx context.Context, name string) ([]byte, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Put stores a payload
func (s *BadgerStore) Put(ctx context.Context, name string, payload []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(name), payload)
	})
}

// Scan iterates names with the given prefix
func (s *BadgerStore) Scan(ctx context.Context, prefix string, fn func(name string, payload []byte) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			name := string(item.KeyCopy(nil))
			payload, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(name, payload) {
				break
			}
		}
		return nil
	})
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

type badgerLogger struct {
	logger *logrus.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Tracef("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Tracef("[BadgerDB] "+format, args...)
}

var _ Store = (*BadgerStore)(nil)
