package settings

import (
	"context"
	"errors"
	"time"

	"github.com/maxiofs/guardctl/internal/value"
)

var (
	// ErrRead wraps failures reading from the backing store
	ErrRead = errors.New("settings read failed")

	// ErrWrite wraps failures writing to the backing store
	ErrWrite = errors.New("settings write failed")
)

// Store is the guarded application's settings store. Components only ever
// reach settings through these accessors.
type Store interface {
	// Get returns the current value, or a Null value when the key is absent.
	Get(ctx context.Context, key string) (value.Value, error)

	// Set stores a value under key, creating the row if needed.
	Set(ctx context.Context, key string, v value.Value) error

	// SetBool stores a boolean using the store's boolean encoding.
	SetBool(ctx context.Context, key string, b bool) error

	// GetInt returns the value as an integer (0 when absent or non-numeric).
	GetInt(ctx context.Context, key string) (int64, error)

	// GetBool returns the value as a boolean (false when absent).
	GetBool(ctx context.Context, key string) (bool, error)

	// Keys lists every key currently held by the store, sorted.
	Keys(ctx context.Context) ([]string, error)
}

// Type is the storage type tag of a row
type Type string

const (
	TypeBool   Type = "bool"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeString Type = "string"
	TypeBlob   Type = "blob"
	TypeNull   Type = "null"
)

// Setting is a raw row of the settings table
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Type      Type      `json:"type"`
	Autoload  bool      `json:"autoload"`
	UpdatedAt time.Time `json:"updated_at"`
}

// encode maps a typed value onto the row representation
func encode(v value.Value) (string, Type) {
	switch v.Kind() {
	case value.KindBool:
		if v.AsBool() {
			return "1", TypeBool
		}
		return "0", TypeBool
	case value.KindInt:
		return v.Text(), TypeInt
	case value.KindFloat:
		return v.Text(), TypeFloat
	case value.KindString:
		return v.Text(), TypeString
	default:
		return "", TypeNull
	}
}

// decode maps a row back onto a typed value. Blob rows are handed out as
// text; callers that serialize them must tolerate invalid byte sequences.
func decode(raw string, t Type) value.Value {
	switch t {
	case TypeBool:
		return value.Bool(value.ParseBool(raw))
	case TypeInt:
		return value.Int(value.String(raw).AsInt())
	case TypeFloat:
		return value.Float(value.String(raw).AsFloat())
	case TypeString, TypeBlob:
		return value.String(raw)
	case TypeNull:
		return value.Null()
	default:
		return value.Coerce(raw, value.HintAuto)
	}
}
