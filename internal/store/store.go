// Package store defines the shared state store the game engines race on:
// keyed JSON records grouped in collections, merge updates, a conditional
// update used as compare-and-swap, and change subscriptions.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrBadKey   = errors.New("key must look like <collection>/<id>")
	ErrBadPath  = errors.New("path must be a collection or a <collection>/<id> key")
)

// Fields is a partial record. A nil value clears the field.
type Fields map[string]any

// Snapshot is the full value of one record at some point in time.
type Snapshot struct {
	Key    string
	ID     string
	Value  []byte
	Exists bool
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Update merges fields into the record, creating it if absent.
	Update(ctx context.Context, key string, fields Fields) error
	// UpdateIf merges fields only if the record exists and every cond field
	// currently holds the given value (nil matches an absent field).
	UpdateIf(ctx context.Context, key string, cond Fields, fields Fields) (bool, error)
	// Create stores a new record under a fresh, time-ordered id.
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	CreateIfAbsent(ctx context.Context, key string, fields Fields) (bool, error)
	Delete(ctx context.Context, key string) error
	DeleteIf(ctx context.Context, key string, cond Fields) (bool, error)
	// Subscribe delivers the current state of path (a key, or every record
	// of a collection) and then a snapshot after each change, in order, on a
	// goroutine owned by the subscription.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error)
	// Query returns up to limit records whose field equals the value,
	// ordered by id. limit <= 0 means no limit.
	Query(ctx context.Context, collection, field string, equals any, limit int) ([]Snapshot, error)
	List(ctx context.Context, collection string) ([]Snapshot, error)
	Ping(ctx context.Context) error
}

func Key(collection, id string) string {
	return collection + "/" + id
}

// Split parses a record key.
func Split(key string) (collection, id string, err error) {
	collection, id, ok := strings.Cut(key, "/")
	if !ok || collection == "" || id == "" || strings.Contains(id, "/") {
		return "", "", ErrBadKey
	}
	return collection, id, nil
}

// SplitPath accepts either a collection name or a record key.
func SplitPath(path string) (collection, id string, err error) {
	if path == "" {
		return "", "", ErrBadPath
	}
	if !strings.Contains(path, "/") {
		return path, "", nil
	}
	collection, id, err = Split(path)
	if err != nil {
		return "", "", ErrBadPath
	}
	return collection, id, nil
}

// NewID returns a UUIDv7 so that ids sort by creation time.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// EncodeFields turns every non-nil value into its JSON form.
func EncodeFields(fields Fields) (set map[string]json.RawMessage, unset []string, err error) {
	set = make(map[string]json.RawMessage, len(fields))
	for name, value := range fields {
		if value == nil {
			unset = append(unset, name)
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, nil, err
		}
		if bytes.Equal(raw, []byte("null")) {
			unset = append(unset, name)
			continue
		}
		set[name] = raw
	}
	return set, unset, nil
}

// Matches compares one stored field (nil when absent) to a condition value.
func Matches(stored json.RawMessage, want any) (bool, error) {
	if want == nil {
		return stored == nil || bytes.Equal(stored, []byte("null")), nil
	}
	if stored == nil {
		return false, nil
	}
	raw, err := json.Marshal(want)
	if err != nil {
		return false, err
	}
	var a, b any
	if err := json.Unmarshal(raw, &a); err != nil {
		return false, err
	}
	if err := json.Unmarshal(stored, &b); err != nil {
		return false, err
	}
	return reflect.DeepEqual(a, b), nil
}
