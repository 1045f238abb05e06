package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by Get when no payload is stored under a name
var ErrNotFound = errors.New("snapshot not found")

// Store is a named-value store for persisted payloads, independent of the
// settings store. Both engines implement it.
type Store interface {
	// Get retrieves a payload by exact name. Returns ErrNotFound if absent.
	Get(ctx context.Context, name string) ([]byte, error)

	// Put stores a payload, replacing any previous one.
	Put(ctx context.Context, name string, payload []byte) error

	// Scan iterates names sharing prefix in lexicographic order. fn receives
	// copies; returning false stops the scan early.
	Scan(ctx context.Context, prefix string, fn func(name string, payload []byte) bool) error

	io.Closer
}

// Engine names a storage engine
type Engine string

const (
	EnginePebble Engine = "pebble"
	EngineBadger Engine = "badger"
)

// Options configures Open
type Options struct {
	Engine     Engine
	DataDir    string
	SyncWrites bool
	Logger     *logrus.Logger
}

// Dir is the directory an engine keeps its files in. Each engine has its own
// so that switching engines never opens the other engine's files.
func Dir(dataDir string, engine Engine) string {
	if engine == "" {
		engine = EnginePebble
	}
	return filepath.Join(dataDir, "snapshots-"+string(engine))
}

// Open opens the configured engine under DataDir
func Open(opts Options) (Store, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	var other Engine
	switch opts.Engine {
	case "", EnginePebble:
		other = EngineBadger
	case EngineBadger:
		other = EnginePebble
	default:
		return nil, fmt.Errorf("unknown snapshot engine %q (expected pebble or badger)", opts.Engine)
	}

	if _, err := os.Stat(Dir(opts.DataDir, other)); err == nil {
		opts.Logger.WithFields(logrus.Fields{
			"engine": other,
			"path":   Dir(opts.DataDir, other),
		}).Warn("Backups taken with another snapshot engine are not visible to this one")
	}

	if other == EngineBadger {
		return NewPebbleStore(opts)
	}
	return NewBadgerStore(opts)
}
